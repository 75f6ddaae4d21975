package model

// TenantStatus is the lifecycle state of a tenant.
type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantSuspended TenantStatus = "suspended"
	TenantExpired   TenantStatus = "expired"
)

// TenantLimits holds the quota a tenant's billing tier grants it. The
// tier table itself is computed by an external collaborator (§6); this
// struct is the projection the gateway reads. Only MaxConnections is
// enforced (on upgrade); MaxMessagesPerDay and MaxSubjects are carried
// but not enforced.
type TenantLimits struct {
	MaxConnections    int `json:"max_connections" gorm:"column:max_connections"`
	MaxMessagesPerDay int `json:"max_messages_per_day" gorm:"column:max_messages_per_day"`
	MaxSubjects       int `json:"max_subjects" gorm:"column:max_subjects"`
}

// Tenant is the unit of isolation every other entity names exactly one
// of. The gateway only ever reads this row (tenant CRUD is an external
// collaborator per §6); Limits is embedded flat for that read path.
type Tenant struct {
	ID     string       `json:"id" gorm:"column:id;primaryKey"`
	Tier   string       `json:"tier" gorm:"column:tier"`
	Status TenantStatus `json:"status" gorm:"column:status"`
	Limits TenantLimits `json:"limits" gorm:"embedded"`
}

func (Tenant) TableName() string { return "tenants" }

// Active reports whether the tenant may open new connections or
// publish/subscribe.
func (t Tenant) Active() bool {
	return t.Status == TenantActive
}
