package database

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dewei/screenradar/pkg/model"
)

type AlertRepo struct {
	db *gorm.DB
}

func (a *AlertRepo) Save(event *model.AlertEvent) error {
	return a.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(event).Error; err != nil {
			return fmt.Errorf("database: create alert event: %w", err)
		}
		if event.SubscriptionID != "" {
			if err := tx.Model(&model.AlertSubscription{}).
				Where("id = ?", event.SubscriptionID).
				Updates(map[string]interface{}{
					"last_triggered_at": time.Now(),
					"last_evaluated_at": time.Now(),
					"trigger_count":     gorm.Expr("trigger_count + 1"),
				}).Error; err != nil {
				return fmt.Errorf("database: update subscription trigger state: %w", err)
			}
		}
		return nil
	})
}

func (a *AlertRepo) LogExecution(log *model.AlertExecutionLog) error {
	return a.db.Create(log).Error
}

func (a *AlertRepo) GetByID(alertID string) (*model.AlertEvent, error) {
	var event model.AlertEvent
	err := a.db.Preload("User").Preload("Subscription").First(&event, "id = ?", alertID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("database: alert event not found")
		}
		return nil, fmt.Errorf("database: get alert event: %w", err)
	}
	return &event, nil
}

func (a *AlertRepo) GetByUserID(userID string, limit, offset int, onlyUnread bool) ([]*model.AlertEvent, error) {
	var events []*model.AlertEvent
	query := a.db.Where("user_id = ?", userID)
	if onlyUnread {
		query = query.Where("is_read = ?", false)
	}
	err := query.Order("created_at DESC").Limit(limit).Offset(offset).Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("database: list alert events: %w", err)
	}
	return events, nil
}

func (a *AlertRepo) GetByTicker(userID, ticker string, limit int) ([]*model.AlertEvent, error) {
	var events []*model.AlertEvent
	err := a.db.Where("user_id = ? AND ticker = ?", userID, ticker).
		Order("created_at DESC").Limit(limit).Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("database: list alert events by ticker: %w", err)
	}
	return events, nil
}

func (a *AlertRepo) GetByKind(userID string, kind model.AlertKind, limit int) ([]*model.AlertEvent, error) {
	var events []*model.AlertEvent
	err := a.db.Where("user_id = ? AND kind = ?", userID, kind).
		Order("created_at DESC").Limit(limit).Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("database: list alert events by kind: %w", err)
	}
	return events, nil
}

func (a *AlertRepo) GetByTimeRange(userID string, start, end time.Time, limit int) ([]*model.AlertEvent, error) {
	var events []*model.AlertEvent
	err := a.db.Where("user_id = ? AND created_at BETWEEN ? AND ?", userID, start, end).
		Order("created_at DESC").Limit(limit).Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("database: list alert events by time range: %w", err)
	}
	return events, nil
}

func (a *AlertRepo) MarkAsRead(alertID string) error {
	return a.db.Model(&model.AlertEvent{}).Where("id = ?", alertID).Update("is_read", true).Error
}

func (a *AlertRepo) MarkAsNotified(alertID string) error {
	return a.db.Model(&model.AlertEvent{}).Where("id = ?", alertID).Update("is_notified", true).Error
}

// GetUnnotified lists triggered alert events still awaiting dispatch
// by pkg/notification, oldest first so a backlog drains in order.
func (a *AlertRepo) GetUnnotified(limit int) ([]*model.AlertEvent, error) {
	var events []*model.AlertEvent
	err := a.db.Preload("User").Where("is_notified = ?", false).
		Order("created_at ASC").Limit(limit).Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("database: list unnotified alert events: %w", err)
	}
	return events, nil
}

// GetTriggeredSince lists every alert event across all users since
// the cutoff — the daily digest's input set.
func (a *AlertRepo) GetTriggeredSince(since time.Time) ([]*model.AlertEvent, error) {
	var events []*model.AlertEvent
	err := a.db.Where("created_at >= ?", since).Order("user_id, created_at DESC").Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("database: list alert events since %s: %w", since.Format(time.RFC3339), err)
	}
	return events, nil
}

func (a *AlertRepo) GetUnreadCount(userID string) (int64, error) {
	var count int64
	err := a.db.Model(&model.AlertEvent{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}

func (a *AlertRepo) GetStatsByUser(userID string, days int) (map[string]int64, error) {
	stats := make(map[string]int64)
	since := time.Now().AddDate(0, 0, -days)

	var byKind []struct {
		Kind  string
		Count int64
	}
	err := a.db.Model(&model.AlertEvent{}).
		Select("kind, COUNT(*) as count").
		Where("user_id = ? AND created_at >= ?", userID, since).
		Group("kind").
		Find(&byKind).Error
	if err != nil {
		return nil, fmt.Errorf("database: alert stats: %w", err)
	}
	for _, s := range byKind {
		stats[s.Kind] = s.Count
	}
	return stats, nil
}
