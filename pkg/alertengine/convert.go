package alertengine

import (
	"github.com/shopspring/decimal"
)

var decimalHundred = decimal.NewFromInt(100)

// toDecimal converts a value read back from QueryStore.Row — which
// comes out of database/sql as one of string, []byte, float64, or
// int64 depending on the column's wire format — into a decimal.Decimal.
// Unrecognized values convert to zero rather than panicking, since a
// condition referencing a missing/mistyped field should fail the
// check, not crash the evaluator.
func toDecimal(v interface{}) decimal.Decimal {
	switch t := v.(type) {
	case decimal.Decimal:
		return t
	case float64:
		return decimal.NewFromFloat(t)
	case int64:
		return decimal.NewFromInt(t)
	case []byte:
		d, err := decimal.NewFromString(string(t))
		if err != nil {
			return decimal.Zero
		}
		return d
	case string:
		d, err := decimal.NewFromString(t)
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}

func toFloat(v interface{}) float64 {
	f, _ := toDecimal(v).Float64()
	return f
}

// evalComparison applies one of the DSL's symbolic comparison operators
// (">", ">=", "<", "<=", "=", "!="); "==" is also read as equality.
// Payload operators are not normalized before they reach it, so any
// other spelling (e.g. "above") evaluates to false.
func evalComparison(actual float64, operator string, threshold float64) bool {
	switch operator {
	case ">":
		return actual > threshold
	case ">=":
		return actual >= threshold
	case "<":
		return actual < threshold
	case "<=":
		return actual <= threshold
	case "=", "==":
		return actual == threshold
	case "!=":
		return actual != threshold
	default:
		return false
	}
}
