package database

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dewei/screenradar/pkg/model"
)

// SummaryRepo persists the per-user daily alert digests the
// notification dispatcher generates.
type SummaryRepo struct {
	db *gorm.DB
}

func (s *SummaryRepo) Create(summary *model.DailySummary) error {
	if err := s.db.Create(summary).Error; err != nil {
		return fmt.Errorf("database: create daily summary: %w", err)
	}
	return nil
}

// ExistsForUserDate reports whether a digest was already generated for
// this user on this calendar date — the dispatcher's once-per-day gate.
func (s *SummaryRepo) ExistsForUserDate(userID string, date time.Time) (bool, error) {
	var count int64
	err := s.db.Model(&model.DailySummary{}).
		Where("user_id = ? AND date = ?", userID, date.Format("2006-01-02")).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("database: check daily summary: %w", err)
	}
	return count > 0, nil
}

func (s *SummaryRepo) MarkSent(id string) error {
	return s.db.Model(&model.DailySummary{}).Where("id = ?", id).Update("is_sent", true).Error
}

func (s *SummaryRepo) GetByUserID(userID string, limit int) ([]*model.DailySummary, error) {
	var summaries []*model.DailySummary
	err := s.db.Where("user_id = ?", userID).Order("date DESC").Limit(limit).Find(&summaries).Error
	if err != nil {
		return nil, fmt.Errorf("database: list daily summaries: %w", err)
	}
	return summaries, nil
}
