// Package database holds two distinct stores. DB is a gorm-backed
// CRUD layer over the domain models in pkg/model (users, alert
// subscriptions, alert events, notifications) — the usual ORM path.
// QueryStore, in querystore.go, is the other half: it executes
// compiler-emitted SQL text directly over database/sql, bypassing
// gorm's query builder entirely, because the compiler already owns
// parameterization and an ORM would just get in the way.
package database

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dewei/screenradar/pkg/config"
	"github.com/dewei/screenradar/pkg/model"
)

type DB struct {
	gorm *gorm.DB
}

func NewDB(cfg *config.Config) (*DB, error) {
	dbCfg := cfg.Database.TimescaleDB
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		dbCfg.Host, dbCfg.Port, dbCfg.User, dbCfg.Password, dbCfg.DBName, dbCfg.SSLMode,
	)
	g, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("database: open: %w", err)
	}
	return &DB{gorm: g}, nil
}

func (d *DB) AutoMigrate() error {
	return d.gorm.AutoMigrate(
		&model.User{},
		&model.Company{},
		&model.AlertSubscription{},
		&model.AlertEvent{},
		&model.AlertExecutionLog{},
		&model.NotificationRecord{},
		&model.DailySummary{},
		&model.NewsEvent{},
	)
}

func (d *DB) Close() error {
	sqlDB, err := d.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (d *DB) Alert() *AlertRepo               { return &AlertRepo{db: d.gorm} }
func (d *DB) Subscription() *SubscriptionRepo { return &SubscriptionRepo{db: d.gorm} }
func (d *DB) Company() *CompanyRepo           { return &CompanyRepo{db: d.gorm} }
func (d *DB) User() *UserRepo                 { return &UserRepo{db: d.gorm} }
func (d *DB) News() *NewsRepo                 { return &NewsRepo{db: d.gorm} }
func (d *DB) Notification() *NotificationRepo { return &NotificationRepo{db: d.gorm} }
func (d *DB) Summary() *SummaryRepo           { return &SummaryRepo{db: d.gorm} }
