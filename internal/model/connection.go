package model

import "time"

// ConnectionTTL is the registry row TTL; a record surviving past this
// with no refresh means the owning server is gone.
const ConnectionTTL = 24 * time.Hour

// ConnectionRecord is the registry's per-session view, used for
// cross-instance visibility and staleness detection. It has a distinct
// lifetime from the in-process Session it describes: a stale record
// must be cleanable without a live Session object to go with it.
type ConnectionRecord struct {
	SessionID       string    `json:"session_id"`
	PrincipalID     string    `json:"principal_id"`
	TenantID        string    `json:"tenant_id"`
	Role            Role      `json:"role"`
	ServerInstance  string    `json:"server_instance_id"`
	OpenedAt        time.Time `json:"opened_at"`
	LastHeartbeatAt time.Time `json:"last_heartbeat_at"`
}

// Stale reports whether the record's last heartbeat predates cutoff.
func (r ConnectionRecord) Stale(cutoff time.Time) bool {
	return r.LastHeartbeatAt.Before(cutoff)
}
