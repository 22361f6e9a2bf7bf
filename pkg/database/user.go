package database

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dewei/screenradar/pkg/model"
)

type UserRepo struct {
	db *gorm.DB
}

func (u *UserRepo) Create(user *model.User) error {
	return u.db.Create(user).Error
}

func (u *UserRepo) GetByID(userID string) (*model.User, error) {
	var user model.User
	err := u.db.First(&user, "id = ?", userID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("database: user not found")
		}
		return nil, fmt.Errorf("database: get user: %w", err)
	}
	return &user, nil
}

func (u *UserRepo) GetByUsername(username string) (*model.User, error) {
	var user model.User
	err := u.db.First(&user, "username = ?", username).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("database: user not found")
		}
		return nil, fmt.Errorf("database: get user by username: %w", err)
	}
	return &user, nil
}

func (u *UserRepo) GetByEmail(email string) (*model.User, error) {
	var user model.User
	err := u.db.First(&user, "email = ?", email).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("database: user not found")
		}
		return nil, fmt.Errorf("database: get user by email: %w", err)
	}
	return &user, nil
}

func (u *UserRepo) UpdateLastLogin(userID string) error {
	return u.db.Model(&model.User{}).
		Where("id = ?", userID).
		Update("last_login_at", time.Now()).Error
}

func (u *UserRepo) UpdateProfile(userID string, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()
	result := u.db.Model(&model.User{}).Where("id = ?", userID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("database: update user profile: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("database: user not found or nothing to update")
	}
	return nil
}

func (u *UserRepo) UpdateStatus(userID string, status int) error {
	return u.db.Model(&model.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		}).Error
}

func (u *UserRepo) GetWithSubscriptions(userID string) (*model.User, error) {
	var user model.User
	err := u.db.Preload("Subscriptions", "status != ?", model.SubscriptionStatusCancelled).
		First(&user, "id = ?", userID).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("database: user not found")
		}
		return nil, fmt.Errorf("database: get user with subscriptions: %w", err)
	}
	return &user, nil
}

func (u *UserRepo) GetUserStats(userID string) (map[string]int64, error) {
	stats := make(map[string]int64)

	var subCount int64
	if err := u.db.Model(&model.AlertSubscription{}).
		Where("user_id = ? AND status != ?", userID, model.SubscriptionStatusCancelled).
		Count(&subCount).Error; err != nil {
		return nil, fmt.Errorf("database: count subscriptions: %w", err)
	}

	var alertCount int64
	if err := u.db.Model(&model.AlertEvent{}).
		Where("user_id = ?", userID).
		Count(&alertCount).Error; err != nil {
		return nil, fmt.Errorf("database: count alert events: %w", err)
	}

	var unreadCount int64
	if err := u.db.Model(&model.AlertEvent{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&unreadCount).Error; err != nil {
		return nil, fmt.Errorf("database: count unread alert events: %w", err)
	}

	stats["subscription_count"] = subCount
	stats["alert_count"] = alertCount
	stats["unread_alert_count"] = unreadCount
	return stats, nil
}

func (u *UserRepo) ExistsByUsername(username string) (bool, error) {
	var count int64
	err := u.db.Model(&model.User{}).Where("username = ?", username).Count(&count).Error
	return count > 0, err
}

func (u *UserRepo) ExistsByEmail(email string) (bool, error) {
	var count int64
	err := u.db.Model(&model.User{}).Where("email = ?", email).Count(&count).Error
	return count > 0, err
}
