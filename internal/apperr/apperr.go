// Package apperr defines the sentinel error taxonomy shared across the
// gateway's components, so callers can switch on errors.Is instead of
// parsing error strings.
package apperr

import "errors"

var (
	// ErrAuthRejected is returned by the auth verifier when a bearer
	// token or signed challenge fails validation. Terminal: the caller
	// closes the connection, no retry.
	ErrAuthRejected = errors.New("auth rejected")

	// ErrNotConnected is returned by BusClient.Publish when no healthy
	// bus connection exists after the 5s bound.
	ErrNotConnected = errors.New("bus not connected")

	// ErrNotFound is returned by the connection registry when a record
	// has been reaped or never existed.
	ErrNotFound = errors.New("record not found")

	// ErrTenantQuotaExceeded is returned when a tenant's connection,
	// message, or subscription limit has been reached.
	ErrTenantQuotaExceeded = errors.New("tenant quota exceeded")

	// ErrSlowConsumer is returned when a session's outbound queue
	// overflows its bound.
	ErrSlowConsumer = errors.New("slow consumer")

	// ErrInvalidFrame is returned when an inbound frame fails to parse
	// or is missing required fields.
	ErrInvalidFrame = errors.New("invalid frame")

	// ErrInvalidSubject is returned when a client-supplied subject
	// resolves outside its tenant namespace, or a publish targets a
	// wildcard subject.
	ErrInvalidSubject = errors.New("invalid subject")

	// ErrChallengeExpired is returned when a challenge record is
	// absent or past its TTL at verification time.
	ErrChallengeExpired = errors.New("challenge expired or already used")
)
