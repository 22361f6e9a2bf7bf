package database

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dewei/screenradar/pkg/model"
)

type SubscriptionRepo struct {
	db *gorm.DB
}

func (s *SubscriptionRepo) Save(sub *model.AlertSubscription) error {
	return s.db.Save(sub).Error
}

func (s *SubscriptionRepo) GetByID(id string) (*model.AlertSubscription, error) {
	var sub model.AlertSubscription
	err := s.db.Preload("User").First(&sub, "id = ?", id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("database: subscription not found")
		}
		return nil, fmt.Errorf("database: get subscription: %w", err)
	}
	return &sub, nil
}

func (s *SubscriptionRepo) GetByUserID(userID string) ([]*model.AlertSubscription, error) {
	var subs []*model.AlertSubscription
	err := s.db.Where("user_id = ? AND status != ?", userID, model.SubscriptionStatusCancelled).
		Order("created_at DESC").
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("database: list subscriptions: %w", err)
	}
	return subs, nil
}

func (s *SubscriptionRepo) GetActiveByUserID(userID string) ([]*model.AlertSubscription, error) {
	var subs []*model.AlertSubscription
	err := s.db.Where("user_id = ? AND status = ?", userID, model.SubscriptionStatusActive).
		Order("created_at DESC").
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("database: list active subscriptions: %w", err)
	}
	return subs, nil
}

func (s *SubscriptionRepo) GetByTicker(ticker string) ([]*model.AlertSubscription, error) {
	var subs []*model.AlertSubscription
	err := s.db.Where("ticker = ? AND status = ?", ticker, model.SubscriptionStatusActive).
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("database: list subscriptions by ticker: %w", err)
	}
	return subs, nil
}

// GetAllActive lists every active subscription, with its user preloaded,
// regardless of rate-limit state; the scheduler's working set comes from
// GetDue instead.
func (s *SubscriptionRepo) GetAllActive() ([]*model.AlertSubscription, error) {
	var subs []*model.AlertSubscription
	err := s.db.Where("status = ?", model.SubscriptionStatusActive).
		Preload("User").
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("database: list all active subscriptions: %w", err)
	}
	return subs, nil
}

func (s *SubscriptionRepo) Delete(id string) error {
	return s.db.Model(&model.AlertSubscription{}).
		Where("id = ?", id).
		Update("status", model.SubscriptionStatusCancelled).Error
}

func (s *SubscriptionRepo) UpdateStatus(id string, status model.SubscriptionStatus) error {
	return s.db.Model(&model.AlertSubscription{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		}).Error
}

func (s *SubscriptionRepo) MarkEvaluated(id string) error {
	return s.db.Model(&model.AlertSubscription{}).
		Where("id = ?", id).
		Update("last_evaluated_at", time.Now()).Error
}

// GetDue returns the evaluation working set: active subscriptions that
// have never triggered, or whose last trigger is older than the
// rate-limit window. Subscriptions still cooling down never leave the
// database.
func (s *SubscriptionRepo) GetDue(window time.Duration) ([]*model.AlertSubscription, error) {
	cutoff := time.Now().Add(-window)
	var subs []*model.AlertSubscription
	err := s.db.Where("status = ? AND (last_triggered_at IS NULL OR last_triggered_at < ?)",
		model.SubscriptionStatusActive, cutoff).
		Preload("User").
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("database: list due subscriptions: %w", err)
	}
	return subs, nil
}
