package model

// Role distinguishes the two kinds of persistent connection the
// gateway accepts.
type Role string

const (
	RoleAgent     Role = "agent"
	RoleDashboard Role = "dashboard"
)

// Principal is an authenticated identity. A connection's tenant is
// always the principal's tenant, fixed at creation.
type Principal struct {
	ID       string
	TenantID string
	Role     Role
}

// NewAgentPrincipal builds the Principal for an authenticated agent.
func NewAgentPrincipal(agentID, tenantID string) Principal {
	return Principal{ID: agentID, TenantID: tenantID, Role: RoleAgent}
}

// NewUserPrincipal builds the Principal for an authenticated dashboard
// user.
func NewUserPrincipal(userID, tenantID string) Principal {
	return Principal{ID: userID, TenantID: tenantID, Role: RoleDashboard}
}

// Agent is the durable record backing agent authentication: an agent
// id, its owning tenant, and its registered verification key.
type Agent struct {
	ID         string `gorm:"column:id;primaryKey"`
	TenantID   string `gorm:"column:tenant_id;index"`
	PublicKey  []byte `gorm:"column:public_key"`
	KeyAlgo    string `gorm:"column:key_algo"` // "ed25519" or "rsa-sha256"
}

func (Agent) TableName() string { return "agents" }
