// Package repository implements GORM-backed persistence for the
// durable records the gateway consults off the hot path: registered
// agents and closed daily usage aggregates.
package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/tesseract-nexus/pubsub-gateway/internal/apperr"
	"github.com/tesseract-nexus/pubsub-gateway/internal/model"
)

// AgentRepository is the persistence interface for registered agents.
type AgentRepository interface {
	GetAgent(ctx context.Context, agentID string) (model.Agent, error)
	Create(ctx context.Context, agent model.Agent) error
}

type agentRepository struct {
	db *gorm.DB
}

// NewAgentRepository builds the GORM-backed AgentRepository. It also
// satisfies auth.AgentKeyLookup.
func NewAgentRepository(db *gorm.DB) AgentRepository {
	return &agentRepository{db: db}
}

func (r *agentRepository) GetAgent(ctx context.Context, agentID string) (model.Agent, error) {
	var agent model.Agent
	err := r.db.WithContext(ctx).Where("id = ?", agentID).First(&agent).Error
	if err == gorm.ErrRecordNotFound {
		return model.Agent{}, apperr.ErrNotFound
	}
	if err != nil {
		return model.Agent{}, fmt.Errorf("failed to get agent: %w", err)
	}
	return agent, nil
}

func (r *agentRepository) Create(ctx context.Context, agent model.Agent) error {
	if err := r.db.WithContext(ctx).Create(&agent).Error; err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}
	return nil
}
