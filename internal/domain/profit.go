package domain

// ProfitKind tags the unit a profit figure is denominated in.
type ProfitKind string

const (
	ProfitUSD   ProfitKind = "usd"   // LONG profit, US dollars
	ProfitCoins ProfitKind = "coins" // SHORT profit, coin units of Symbol
)

// Profit is a tagged profit value. LONG profit is denominated in USD,
// SHORT profit in coin units of a specific symbol; keeping the unit on
// the value prevents aggregation code from summing incompatible units.
type Profit struct {
	Kind   ProfitKind
	Value  float64
	Symbol string // Set only for ProfitCoins
}

// USDProfit builds a USD-denominated profit value.
func USDProfit(value float64) Profit {
	return Profit{Kind: ProfitUSD, Value: value}
}

// CoinProfit builds a coin-denominated profit value for the given symbol.
func CoinProfit(symbol string, value float64) Profit {
	return Profit{Kind: ProfitCoins, Value: value, Symbol: symbol}
}

// IsWin reports whether the profit is positive, regardless of unit.
func (p Profit) IsWin() bool {
	return p.Value > 0
}
