package model

import "strings"

const subjectSep = "."

// TenantPrefix returns the bus-level namespace prefix for a tenant,
// e.g. "tenant.acme.".
func TenantPrefix(tenantID string) string {
	return "tenant" + subjectSep + tenantID + subjectSep
}

// RewriteSubject prefixes a client-supplied subject into the tenant's
// namespace unless it already carries that prefix, per spec.md §4.6's
// subject rewriting rules. ok is false if the resulting subject would
// resolve outside the tenant's namespace.
func RewriteSubject(tenantID, subject string) (rewritten string, ok bool) {
	prefix := TenantPrefix(tenantID)
	if strings.HasPrefix(subject, prefix) {
		return subject, true
	}
	if strings.HasPrefix(subject, "tenant"+subjectSep) {
		// Already namespaced, but to a different tenant: reject.
		return "", false
	}
	return prefix + subject, true
}

// IsWildcard reports whether a subject contains the single-token "*"
// or rest-of-path ">" wildcard tokens.
func IsWildcard(subject string) bool {
	for _, tok := range strings.Split(subject, subjectSep) {
		if tok == "*" || tok == ">" {
			return true
		}
	}
	return false
}

// ChannelSubject builds the bus subject a dashboard subscribes to for
// a specific channel.
func ChannelSubject(tenantID, channelID string) string {
	return TenantPrefix(tenantID) + "channel" + subjectSep + channelID
}

// TopicPreviewSubject builds the wildcard subject a dashboard
// subscribes to for a tenant-wide preview.
func TopicPreviewSubject(tenantID string) string {
	return TenantPrefix(tenantID) + ">"
}
