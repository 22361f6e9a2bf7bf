package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AlertKind selects which evaluator check pkg/alertengine runs for a
// subscription.
type AlertKind string

const (
	AlertKindPriceThreshold AlertKind = "price_threshold"
	AlertKindPriceChange    AlertKind = "price_change"
	AlertKindFundamental    AlertKind = "fundamental"
	AlertKindEvent          AlertKind = "event"
	AlertKindTechnical      AlertKind = "technical"
	AlertKindCustomDSL      AlertKind = "custom_dsl"
)

// AlertSeverity ranks a triggered alert for client-side sorting.
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// AlertEvent is one triggered evaluation of an AlertSubscription.
type AlertEvent struct {
	ID             string        `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         string        `gorm:"type:uuid;not null;index" json:"user_id"`
	SubscriptionID string        `gorm:"type:uuid;index" json:"subscription_id"`
	Ticker         string        `gorm:"type:varchar(20);index" json:"ticker"`
	Kind           AlertKind     `gorm:"type:varchar(30);not null;index" json:"kind"`
	Severity       AlertSeverity `gorm:"type:varchar(20);not null;index" json:"severity"`
	Title          string        `gorm:"not null" json:"title"`
	Message        string        `gorm:"type:text" json:"message"`
	Data           JSONMap       `gorm:"type:jsonb" json:"data,omitempty"`
	IsRead         bool          `gorm:"default:false;index" json:"is_read"`
	IsNotified     bool          `gorm:"default:false;index" json:"is_notified"`
	CreatedAt      time.Time     `gorm:"index:idx_alert_events_created_at" json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`

	User         User             `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Subscription AlertSubscription `gorm:"foreignKey:SubscriptionID" json:"subscription,omitempty"`

	Notifications []NotificationRecord `gorm:"foreignKey:AlertID" json:"notifications,omitempty"`
}

func (a *AlertEvent) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}

func (AlertEvent) TableName() string { return "alert_events" }

// AlertExecutionLog records every evaluation attempt, triggered or
// not, for audit.
type AlertExecutionLog struct {
	ID             string    `gorm:"type:uuid;primaryKey" json:"id"`
	SubscriptionID string    `gorm:"type:uuid;index" json:"subscription_id"`
	ExecutedAt     time.Time `json:"executed_at"`
	Triggered      bool      `json:"triggered"`
	ErrorMessage   string    `json:"error_message,omitempty"`
}

func (a *AlertExecutionLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}

func (AlertExecutionLog) TableName() string { return "alert_execution_log" }
