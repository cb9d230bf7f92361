package domain

import (
	"math"

	"github.com/shopspring/decimal"
)

// TradeType represents the direction of a trade (LONG or SHORT).
type TradeType string

const (
	Long  TradeType = "LONG"
	Short TradeType = "SHORT"
)

// TradeStatus represents the lifecycle status of a trade.
// Transitions are linear: OPEN -> FILLED -> CLOSED, no back-transitions.
type TradeStatus string

const (
	StatusOpen   TradeStatus = "OPEN"
	StatusFilled TradeStatus = "FILLED"
	StatusClosed TradeStatus = "CLOSED"
)

// DefaultTolerance is the floating-point tolerance used for amount
// comparisons when a coin's decimal precision is unknown.
const DefaultTolerance = 1e-6

// Tolerance returns the comparison tolerance for amounts of a coin with
// the given decimal precision: half of the smallest representable unit.
// Falls back to DefaultTolerance when decimalPlaces is not positive.
func Tolerance(decimalPlaces int) float64 {
	if decimalPlaces <= 0 {
		return DefaultTolerance
	}
	return 0.5 * math.Pow(10, -float64(decimalPlaces))
}

// FormatAmount renders a coin amount rounded to the coin's decimal
// precision, for error messages and reports. Non-positive decimalPlaces
// falls back to 8.
func FormatAmount(amount float64, decimalPlaces int) string {
	if decimalPlaces <= 0 {
		decimalPlaces = 8
	}
	return decimal.NewFromFloat(amount).Round(int32(decimalPlaces)).String()
}
