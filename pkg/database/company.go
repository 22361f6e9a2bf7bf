package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/dewei/screenradar/pkg/model"
)

// CompanyRepo persists the companies table the compiler's base query
// joins against.
type CompanyRepo struct {
	db *gorm.DB
}

func (c *CompanyRepo) Save(company *model.Company) error {
	return c.db.Save(company).Error
}

func (c *CompanyRepo) SaveBatch(companies []*model.Company) error {
	return c.db.CreateInBatches(companies, 500).Error
}

func (c *CompanyRepo) GetBySymbol(symbol string) (*model.Company, error) {
	var company model.Company
	err := c.db.First(&company, "symbol = ?", symbol).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("database: company not found")
		}
		return nil, fmt.Errorf("database: get company: %w", err)
	}
	return &company, nil
}

func (c *CompanyRepo) GetBySector(sector string, limit int) ([]*model.Company, error) {
	var companies []*model.Company
	err := c.db.Where("sector = ? AND is_active = ?", sector, true).
		Limit(limit).
		Find(&companies).Error
	if err != nil {
		return nil, fmt.Errorf("database: list companies by sector: %w", err)
	}
	return companies, nil
}

func (c *CompanyRepo) GetByIndustry(industry string, limit int) ([]*model.Company, error) {
	var companies []*model.Company
	err := c.db.Where("industry = ? AND is_active = ?", industry, true).
		Limit(limit).
		Find(&companies).Error
	if err != nil {
		return nil, fmt.Errorf("database: list companies by industry: %w", err)
	}
	return companies, nil
}

func (c *CompanyRepo) Search(keyword string, limit int) ([]*model.Company, error) {
	var companies []*model.Company
	pattern := "%" + keyword + "%"
	err := c.db.Where("(symbol ILIKE ? OR name ILIKE ?) AND is_active = ?", pattern, pattern, true).
		Limit(limit).
		Find(&companies).Error
	if err != nil {
		return nil, fmt.Errorf("database: search companies: %w", err)
	}
	return companies, nil
}

func (c *CompanyRepo) GetActive() ([]*model.Company, error) {
	var companies []*model.Company
	err := c.db.Where("is_active = ?", true).Find(&companies).Error
	if err != nil {
		return nil, fmt.Errorf("database: list active companies: %w", err)
	}
	return companies, nil
}

func (c *CompanyRepo) UpdateStatus(symbol string, isActive bool) error {
	return c.db.Model(&model.Company{}).
		Where("symbol = ?", symbol).
		Update("is_active", isActive).Error
}

func (c *CompanyRepo) ExistsBySymbol(symbol string) (bool, error) {
	var count int64
	err := c.db.Model(&model.Company{}).Where("symbol = ?", symbol).Count(&count).Error
	return count > 0, err
}
