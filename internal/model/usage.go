package model

import "time"

// DailyUsage is the durable per-tenant, per-day usage aggregate.
// Immutable once the day is closed.
type DailyUsage struct {
	TenantID       string    `gorm:"column:tenant_id;primaryKey"`
	Date           string    `gorm:"column:date;primaryKey"` // YYYY-MM-DD, UTC
	MessagesIn     int64     `gorm:"column:messages_in"`
	MessagesOut    int64     `gorm:"column:messages_out"`
	BytesIn        int64     `gorm:"column:bytes_in"`
	BytesOut       int64     `gorm:"column:bytes_out"`
	ActiveAgents   int64     `gorm:"column:active_agents"`
	ActiveChannels int64     `gorm:"column:active_channels"`
	UpdatedAt      time.Time `gorm:"column:updated_at"`
}

func (DailyUsage) TableName() string { return "daily_usage" }

// CounterDimension is the second component of a counter-store key:
// which slice of traffic a bucket tracks.
type CounterDimension string

const (
	DimensionTotal   CounterDimension = "total"
	DimensionClient  CounterDimension = "client"
	DimensionSubject CounterDimension = "subject"
)

// EventDirection distinguishes ingress (published to the bus) from
// egress (delivered to a session) for byte/message accounting.
type EventDirection string

const (
	DirectionIn  EventDirection = "in"
	DirectionOut EventDirection = "out"
)
