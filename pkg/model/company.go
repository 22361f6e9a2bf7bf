package model

import "github.com/shopspring/decimal"

// Company mirrors the companies table the compiler's base query joins
// against (pkg/compiler's "c" alias).
type Company struct {
	Symbol    string          `gorm:"type:varchar(20);primaryKey" json:"symbol"`
	Name      string          `gorm:"not null" json:"name"`
	Sector    string          `gorm:"type:varchar(100);index" json:"sector"`
	Industry  string          `gorm:"type:varchar(100);index" json:"industry"`
	Exchange  string          `gorm:"type:varchar(20);index" json:"exchange"`
	MarketCap decimal.Decimal `gorm:"type:numeric" json:"market_cap"`
	IsActive  bool            `gorm:"default:true;index" json:"is_active"`
}

func (Company) TableName() string { return "companies" }
