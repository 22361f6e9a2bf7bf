package database

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dewei/screenradar/pkg/model"
)

// NotificationRepo persists delivery attempts of triggered alert
// events, one row per (alert, channel) pair.
type NotificationRepo struct {
	db *gorm.DB
}

func (n *NotificationRepo) Create(record *model.NotificationRecord) error {
	if err := n.db.Create(record).Error; err != nil {
		return fmt.Errorf("database: create notification record: %w", err)
	}
	return nil
}

func (n *NotificationRepo) MarkSent(recordID string) error {
	now := time.Now()
	return n.db.Model(&model.NotificationRecord{}).Where("id = ?", recordID).
		Updates(map[string]interface{}{"status": "sent", "sent_at": now}).Error
}

func (n *NotificationRepo) MarkFailed(recordID, reason string) error {
	return n.db.Model(&model.NotificationRecord{}).Where("id = ?", recordID).
		Updates(map[string]interface{}{"status": "failed", "error": reason}).Error
}

func (n *NotificationRepo) GetByUserID(userID string, limit int) ([]*model.NotificationRecord, error) {
	var records []*model.NotificationRecord
	err := n.db.Where("user_id = ?", userID).Order("created_at DESC").Limit(limit).Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("database: list notification records: %w", err)
	}
	return records, nil
}
