package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusPaused    SubscriptionStatus = "paused"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// AlertSubscription is a user-scoped, periodically re-evaluated alert:
// a ticker, an evaluator Kind, a free-form condition payload
// interpreted per-kind by pkg/alertengine, and the rate-limit
// bookkeeping the Scheduler/Evaluator use to avoid re-notifying
// within one window.
type AlertSubscription struct {
	ID              string             `gorm:"type:uuid;primaryKey" json:"id"`
	UserID          string             `gorm:"type:uuid;not null;index" json:"user_id"`
	Name            string             `gorm:"not null" json:"name"`
	Ticker          string             `gorm:"type:varchar(20);index" json:"ticker"`
	Kind            AlertKind          `gorm:"type:varchar(30);not null;index" json:"kind"`
	Condition       JSONMap            `gorm:"type:jsonb" json:"condition"`
	Status          SubscriptionStatus `gorm:"type:varchar(20);default:'active';index" json:"status"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
	LastTriggeredAt *time.Time         `json:"last_triggered_at,omitempty"`
	LastEvaluatedAt *time.Time         `json:"last_evaluated_at,omitempty"`
	TriggerCount    int                `gorm:"default:0" json:"trigger_count"`

	User   User         `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Alerts []AlertEvent `gorm:"foreignKey:SubscriptionID" json:"alerts,omitempty"`
}

func (s *AlertSubscription) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

func (AlertSubscription) TableName() string { return "alert_subscriptions" }

// IsRateLimited reports whether this subscription triggered within
// window — the gate both pkg/scheduler and pkg/alertengine apply.
func (s *AlertSubscription) IsRateLimited(now time.Time, window time.Duration) bool {
	if s.LastTriggeredAt == nil {
		return false
	}
	return now.Sub(*s.LastTriggeredAt) < window
}
