package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockQuote is a single real-time or end-of-day price observation.
// Monetary/ratio fields use decimal.Decimal rather than float64 so an
// alert threshold comparison never suffers float drift.
type StockQuote struct {
	Symbol        string          `json:"symbol"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"`
	Open          decimal.Decimal `json:"open"`
	High          decimal.Decimal `json:"high"`
	Low           decimal.Decimal `json:"low"`
	Volume        decimal.Decimal `json:"volume"`
	Timestamp     time.Time       `json:"timestamp"`
	ChangePercent decimal.Decimal `json:"change_percent"`
}

// Fundamentals mirrors one fundamentals_quarterly row, as fetched by
// pkg/collector and read by pkg/alertengine's fundamental checks.
type Fundamentals struct {
	Symbol        string          `json:"symbol"`
	QuarterEnd    time.Time       `json:"quarter_end"`
	PERatio       decimal.Decimal `json:"pe_ratio"`
	PBRatio       decimal.Decimal `json:"pb_ratio"`
	ROE           decimal.Decimal `json:"roe"`
	ROA           decimal.Decimal `json:"roa"`
	NetIncome     decimal.Decimal `json:"net_income"`
	Revenue       decimal.Decimal `json:"revenue"`
	EPS           decimal.Decimal `json:"eps"`
	DebtToEquity  decimal.Decimal `json:"debt_to_equity"`
	CurrentRatio  decimal.Decimal `json:"current_ratio"`
	DividendYield decimal.Decimal `json:"dividend_yield"`
}

// AnalystEstimate mirrors one analyst_estimates row, read by the
// price_threshold/custom_dsl evaluator checks and the screener's
// cross-field comparisons.
type AnalystEstimate struct {
	Ticker          string          `json:"ticker"`
	EstimateDate    time.Time       `json:"estimate_date"`
	PriceTargetLow  decimal.Decimal `json:"price_target_low"`
	PriceTargetAvg  decimal.Decimal `json:"price_target_avg"`
	PriceTargetHigh decimal.Decimal `json:"price_target_high"`
}
