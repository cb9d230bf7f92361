package ports

import "context"

// PriceFeed supplies current market prices for valuing open positions.
// Implementations wrap an exchange API; the accounting core only ever
// consumes a price, never fetches one itself.
type PriceFeed interface {
	// GetTickerPrice retrieves the last traded price for a symbol pair
	// (e.g., "BTCUSDT").
	GetTickerPrice(ctx context.Context, symbol string) (float64, error)
}
