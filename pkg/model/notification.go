package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NotificationRecord tracks one delivery attempt of a triggered
// AlertEvent over a channel (email, sms, push, webhook).
type NotificationRecord struct {
	ID        string     `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    string     `gorm:"type:uuid;not null;index" json:"user_id"`
	AlertID   string     `gorm:"type:uuid;not null;index" json:"alert_id"`
	Type      string     `gorm:"type:varchar(20);not null" json:"type"`
	Title     string     `gorm:"not null" json:"title"`
	Content   string     `json:"content"`
	Status    string     `gorm:"type:varchar(20);default:'pending'" json:"status"`
	SentAt    *time.Time `json:"sent_at"`
	Error     string     `json:"error"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`

	User  User       `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Alert AlertEvent `gorm:"foreignKey:AlertID" json:"alert,omitempty"`
}

func (n *NotificationRecord) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	return nil
}
