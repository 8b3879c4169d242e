package utils

import (
	"fmt"
	"math"

	"github.com/jackc/pgx/v5/pgtype"
)

func NumericToFloat64(value pgtype.Numeric) float64 {
	if !value.Valid {
		return 0
	}
	f, err := value.Float64Value()
	if err == nil {
		return f.Float64
	}
	// fallback to string parse
	text, err := value.MarshalJSON()
	if err != nil {
		return 0
	}
	var out float64
	if _, err := fmt.Sscan(string(text), &out); err != nil {
		return 0
	}
	return out
}

// Round2 rounds to two decimal places. Monetary amounts are rounded only at
// the point of persistence, never between intermediate steps.
func Round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func Round3(value float64) float64 {
	return math.Round(value*1000) / 1000
}
