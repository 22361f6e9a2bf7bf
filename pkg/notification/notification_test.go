package notification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dewei/screenradar/pkg/model"
)

func TestFormatAlertMessage(t *testing.T) {
	event := &model.AlertEvent{
		Title:     "Fundamental condition",
		Ticker:    "AAPL",
		Kind:      model.AlertKindFundamental,
		Severity:  model.SeverityMedium,
		Message:   "AAPL: pe_ratio is 18.0000, which is < 20",
		CreatedAt: time.Date(2026, 8, 6, 9, 30, 0, 0, time.UTC),
	}

	msg := formatAlertMessage(event)
	assert.Contains(t, msg, "AAPL")
	assert.Contains(t, msg, "fundamental")
	assert.Contains(t, msg, "2026-08-06 09:30:00")
}

func TestGenerateDailySummary_Empty(t *testing.T) {
	assert.Contains(t, GenerateDailySummary(nil), "No significant alerts")
}

func TestGenerateDailySummary_ListsEvents(t *testing.T) {
	events := []*model.AlertEvent{
		{Ticker: "AAPL", Message: "price below target"},
		{Ticker: "MSFT", Message: "positive earnings streak"},
	}
	summary := GenerateDailySummary(events)
	assert.Contains(t, summary, "2 alerts")
	assert.Contains(t, summary, "AAPL")
	assert.Contains(t, summary, "MSFT")
}

func TestTopTickers_OrdersByFrequencyThenName(t *testing.T) {
	events := []*model.AlertEvent{
		{Ticker: "MSFT"},
		{Ticker: "AAPL"},
		{Ticker: "MSFT"},
		{Ticker: "GOOG"},
		{Ticker: ""},
	}
	got := topTickers(events, 2)
	assert.Equal(t, model.StringSlice{"MSFT", "AAPL"}, got)
}
