package alertengine

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestToDecimal(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
		want  decimal.Decimal
	}{
		{"decimal passthrough", decimal.NewFromFloat(1.5), decimal.NewFromFloat(1.5)},
		{"float64", 3.14, decimal.NewFromFloat(3.14)},
		{"int64", int64(42), decimal.NewFromInt(42)},
		{"byte slice numeric string", []byte("18.50"), decimal.RequireFromString("18.50")},
		{"string numeric", "100", decimal.RequireFromString("100")},
		{"unparseable string falls back to zero", "not-a-number", decimal.Zero},
		{"unrecognized type falls back to zero", struct{}{}, decimal.Zero},
		{"nil falls back to zero", nil, decimal.Zero},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toDecimal(tt.input)
			assert.True(t, got.Equal(tt.want), "got %s want %s", got, tt.want)
		})
	}
}

func TestToFloat(t *testing.T) {
	assert.Equal(t, 18.5, toFloat(18.5))
	assert.Equal(t, 18.5, toFloat("18.5"))
	assert.Equal(t, 0.0, toFloat("garbage"))
}

func TestEvalComparison(t *testing.T) {
	tests := []struct {
		name      string
		actual    float64
		operator  string
		threshold float64
		want      bool
	}{
		{"greater true", 20, ">", 18, true},
		{"greater false", 10, ">", 18, false},
		{"greater_equal boundary", 18, ">=", 18, true},
		{"less true", 10, "<", 18, true},
		{"less_equal boundary", 18, "<=", 18, true},
		{"equal true", 18, "==", 18, true},
		{"equal false", 18, "==", 19, false},
		{"not_equal true", 18, "!=", 19, true},
		{"unknown operator is always false", 18, "above", 10, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, evalComparison(tt.actual, tt.operator, tt.threshold))
		})
	}
}
