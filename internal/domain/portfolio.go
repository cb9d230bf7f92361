package domain

// Coin is one entry of a portfolio's coin allocation.
type Coin struct {
	Symbol        string  // Uppercase ticker
	Percentage    float64 // Share of the portfolio deposit allocated to this coin
	DecimalPlaces int     // Precision used for amount tolerance and display
}

// InitialCoin is coin the owner already held when the portfolio was
// created. It forms the unattached pool standalone SHORTs draw from.
type InitialCoin struct {
	Symbol string
	Amount float64
}

// Portfolio groups trades under one deposit. OwnerID exists so the
// surrounding transport layer can enforce ownership; the accounting
// core never interprets it.
type Portfolio struct {
	ID           string
	OwnerID      string
	Name         string
	TotalDeposit float64
	Coins        []Coin
	InitialCoins []InitialCoin
}

// CoinDecimals returns the decimal precision configured for a symbol,
// or 0 when the symbol is not part of the allocation.
func (p *Portfolio) CoinDecimals(symbol string) int {
	for _, c := range p.Coins {
		if c.Symbol == symbol {
			return c.DecimalPlaces
		}
	}
	return 0
}

// InitialCoinAmount returns the unattached held amount for a symbol,
// or 0 when none was recorded.
func (p *Portfolio) InitialCoinAmount(symbol string) float64 {
	for _, ic := range p.InitialCoins {
		if ic.Symbol == symbol {
			return ic.Amount
		}
	}
	return 0
}
