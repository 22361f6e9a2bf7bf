package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DailySummary rolls up a user's triggered alerts for a single
// calendar day, used by the notification digest.
type DailySummary struct {
	ID          string      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      string      `gorm:"type:uuid;not null;index" json:"user_id"`
	Date        time.Time   `gorm:"type:date;not null;index" json:"date"`
	AlertCount  int         `gorm:"default:0" json:"alert_count"`
	TopTickers  StringSlice `gorm:"type:jsonb" json:"top_tickers"`
	Summary     string      `gorm:"type:text" json:"summary"`
	IsGenerated bool        `gorm:"default:false" json:"is_generated"`
	IsSent      bool        `gorm:"default:false" json:"is_sent"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`

	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (d *DailySummary) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	return nil
}

func (DailySummary) TableName() string {
	return "daily_summaries"
}
