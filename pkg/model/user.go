package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type User struct {
	ID          string     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Username    string     `gorm:"uniqueIndex;not null" json:"username"`
	Email       string     `gorm:"uniqueIndex" json:"email"`
	Phone       string     `gorm:"uniqueIndex" json:"phone"`
	Nickname    string     `json:"nickname"`
	Avatar      string     `json:"avatar"`
	Status      int        `gorm:"default:1;index" json:"status"` // 1 active, 0 disabled
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	LastLoginAt *time.Time `json:"last_login_at"`

	Subscriptions  []AlertSubscription  `gorm:"foreignKey:UserID" json:"subscriptions,omitempty"`
	Alerts         []AlertEvent         `gorm:"foreignKey:UserID" json:"alerts,omitempty"`
	Notifications  []NotificationRecord `gorm:"foreignKey:UserID" json:"notifications,omitempty"`
	DailySummaries []DailySummary       `gorm:"foreignKey:UserID" json:"daily_summaries,omitempty"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return nil
}
