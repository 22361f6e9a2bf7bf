package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type NewsSentiment string

const (
	NewsSentimentPositive NewsSentiment = "positive"
	NewsSentimentNegative NewsSentiment = "negative"
	NewsSentimentNeutral  NewsSentiment = "neutral"
)

// NewsEvent is a collected news item or event predicate (earnings
// announcement, buyback notice) feeding the "event" alert kind and
// the event-predicate fields in the field catalog.
type NewsEvent struct {
	ID          string        `gorm:"type:uuid;primaryKey" json:"id"`
	Symbol      string        `gorm:"type:varchar(20);not null;index" json:"symbol"`
	Title       string        `gorm:"not null" json:"title"`
	Content     string        `gorm:"type:text" json:"content"`
	Summary     string        `gorm:"type:text" json:"summary"`
	Source      string        `json:"source"`
	Author      string        `json:"author"`
	URL         string        `gorm:"uniqueIndex" json:"url"`
	Sentiment   NewsSentiment `gorm:"type:varchar(20);default:'neutral'" json:"sentiment"`
	Impact      float64       `gorm:"default:0" json:"impact"`
	Keywords    StringSlice   `gorm:"type:jsonb" json:"keywords"`
	PublishedAt time.Time     `gorm:"not null;index" json:"published_at"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`

	Company Company `gorm:"foreignKey:Symbol;references:Symbol" json:"company,omitempty"`
}

func (n *NewsEvent) BeforeCreate(tx *gorm.DB) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	return nil
}
