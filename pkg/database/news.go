package database

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dewei/screenradar/pkg/model"
)

type NewsRepo struct {
	db *gorm.DB
}

func (n *NewsRepo) Save(news *model.NewsEvent) error {
	return n.db.Save(news).Error
}

func (n *NewsRepo) GetByTicker(ticker string, limit int) ([]*model.NewsEvent, error) {
	var events []*model.NewsEvent
	err := n.db.Where("symbol = ?", ticker).
		Order("published_at DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("database: list news by ticker: %w", err)
	}
	return events, nil
}

func (n *NewsRepo) GetRecent(limit int) ([]*model.NewsEvent, error) {
	var events []*model.NewsEvent
	err := n.db.Order("published_at DESC").Limit(limit).Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("database: list recent news: %w", err)
	}
	return events, nil
}

func (n *NewsRepo) GetBySentiment(sentiment model.NewsSentiment, limit int) ([]*model.NewsEvent, error) {
	var events []*model.NewsEvent
	err := n.db.Where("sentiment = ?", sentiment).
		Order("published_at DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("database: list news by sentiment: %w", err)
	}
	return events, nil
}

func (n *NewsRepo) GetByTimeRange(start, end time.Time, limit int) ([]*model.NewsEvent, error) {
	var events []*model.NewsEvent
	err := n.db.Where("published_at BETWEEN ? AND ?", start, end).
		Order("published_at DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("database: list news by time range: %w", err)
	}
	return events, nil
}

// ExistsByURL backs the collector's dedup check before inserting a
// freshly scraped or fed item.
func (n *NewsRepo) ExistsByURL(url string) (bool, error) {
	var count int64
	err := n.db.Model(&model.NewsEvent{}).Where("url = ?", url).Count(&count).Error
	return count > 0, err
}
