// Package shorting implements the SHORT-parent linkage math: reserving
// coin supply on a parent LONG when a SHORT sells from it, and returning
// the bought-back coins (with their reserved cost basis) when the SHORT
// closes. The functions mutate the records they are given; the app
// service works on clones and persists atomically.
package shorting

import (
	"fmt"
	"time"

	"coinledger/internal/domain"
	"coinledger/internal/ledger"
	"coinledger/internal/ports"
	"coinledger/internal/profit"
)

// Reserve removes amount coins and the proportional share of the cost
// basis from a parent LONG that a new SHORT is selling from. Because
// amount and sumPlusFee shrink by the same proportion, the parent's
// effective entry price (sumPlusFee/amount) is unchanged by this step;
// it only moves when a SHORT closes. Returns the reserved sumPlusFee so
// it can be recorded on the SHORT and restored later.
func Reserve(parent *domain.Trade, amount float64, decimalPlaces int) (float64, error) {
	if parent.Type != domain.Long {
		return 0, fmt.Errorf("trade %s is a %s, a SHORT can only borrow from a LONG: %w", parent.ID, parent.Type, ports.ErrValidation)
	}
	if parent.IsClosed() {
		return 0, fmt.Errorf("trade %s is closed, cannot open a SHORT against it: %w", parent.ID, ports.ErrValidation)
	}
	if amount <= 0 {
		return 0, fmt.Errorf("amount must be positive, got %v: %w", amount, ports.ErrValidation)
	}
	if amount > parent.Amount+domain.Tolerance(decimalPlaces) {
		return 0, fmt.Errorf("cannot sell more than available amount (%s %s): %w",
			domain.FormatAmount(parent.Amount, decimalPlaces), parent.CoinSymbol, ports.ErrValidation)
	}

	proportion := amount / parent.Amount
	reserved := parent.SumPlusFee * proportion
	parent.Amount -= amount
	parent.SumPlusFee -= reserved
	if parent.Amount > 0 {
		parent.EntryPrice = parent.SumPlusFee / parent.Amount
	}
	return reserved, nil
}

// ReturnCoins gives bought-back coin and its reserved cost basis back to
// the parent LONG after a SHORT close, then recalculates the parent's
// effective entry price. A profitable SHORT returns more coin than it
// reserved basis for, improving (lowering) the parent's entry price.
// Provenance fields stay untouched, always.
func ReturnCoins(parent *domain.Trade, coinsBack, restoredSumPlusFee float64) error {
	if parent.Type != domain.Long {
		return fmt.Errorf("trade %s is a %s, bought-back coins can only return to a LONG: %w", parent.ID, parent.Type, ports.ErrInvariantViolation)
	}
	if coinsBack < 0 {
		return fmt.Errorf("coins bought back is negative (%v): %w", coinsBack, ports.ErrInvariantViolation)
	}
	parent.Amount += coinsBack
	parent.SumPlusFee += restoredSumPlusFee
	newEntryPrice, err := profit.RecalculateLongEntryPrice(parent.SumPlusFee, parent.Amount)
	if err != nil {
		return err
	}
	parent.EntryPrice = newEntryPrice
	return nil
}

// NewShortInput carries the sale parameters for a new SHORT trade.
type NewShortInput struct {
	ID             string
	PortfolioID    string
	CoinSymbol     string
	Amount         float64
	SalePrice      float64
	SaleFeePercent float64
	Now            time.Time
}

// NewShort builds the SHORT trade record for a sale from a parent LONG.
// The SHORT's own entryPrice holds the sale price and its sumPlusFee the
// net sale proceeds, but its provenance copies the parent's immutable
// initial values: a SHORT carries the original LONG cost basis forward.
func NewShort(parent *domain.Trade, reservedSumPlusFee float64, in NewShortInput) (*domain.Trade, error) {
	short, err := newShortTrade(in)
	if err != nil {
		return nil, err
	}
	short.ParentTradeID = parent.ID
	short.InitialEntryPrice = parent.InitialEntryPrice
	short.InitialAmount = parent.InitialAmount
	short.ReservedSumPlusFee = reservedSumPlusFee
	return short, nil
}

// NewStandaloneShort builds a SHORT against the portfolio's unattached
// initial-coin pool. No parent is reduced; provenance is the sale itself.
func NewStandaloneShort(in NewShortInput) (*domain.Trade, error) {
	return newShortTrade(in)
}

func newShortTrade(in NewShortInput) (*domain.Trade, error) {
	if in.SalePrice <= 0 {
		return nil, fmt.Errorf("sale price must be positive, got %v: %w", in.SalePrice, ports.ErrValidation)
	}
	if in.SaleFeePercent < 0 || in.SaleFeePercent > 100 {
		return nil, fmt.Errorf("sale fee must be within [0,100], got %v: %w", in.SaleFeePercent, ports.ErrValidation)
	}
	proceeds := in.Amount * in.SalePrice * (100 - in.SaleFeePercent) / 100
	return ledger.New(ledger.CreateInput{
		ID:          in.ID,
		PortfolioID: in.PortfolioID,
		CoinSymbol:  in.CoinSymbol,
		Type:        domain.Short,
		Status:      domain.StatusFilled,
		EntryPrice:  in.SalePrice,
		EntryFee:    in.SaleFeePercent,
		SumPlusFee:  proceeds,
		Amount:      in.Amount,
		OpenDate:    in.Now,
	})
}

// CloseFull closes a SHORT outright and computes what flows back to the
// parent: the coins the remaining proceeds repurchase and the matching
// share of the reserved cost basis. When the SHORT was partially closed
// before, only the remaining proportion participates.
func CloseFull(short *domain.Trade, buyBackPrice, buyBackFeePercent float64, closeDate time.Time) (coinsBack, restored float64, err error) {
	if short.Type != domain.Short {
		return 0, 0, fmt.Errorf("trade %s is a %s, not a SHORT: %w", short.ID, short.Type, ports.ErrValidation)
	}
	proportion := remainingProportion(short)
	if err := ledger.Close(short, buyBackPrice, buyBackFeePercent, closeDate); err != nil {
		return 0, 0, err
	}
	coinsBack, err = profit.CoinsBoughtBack(short.SumPlusFee*proportion, buyBackPrice, buyBackFeePercent)
	if err != nil {
		return 0, 0, err
	}
	return coinsBack, short.ReservedSumPlusFee * proportion, nil
}

// ClosePartial closes closedAmount of a SHORT through the ledger's
// partial-close primitive and computes the coins and reserved basis the
// fragment returns to the parent. The fragment's own sumPlusFee (the
// proportional share of the sale proceeds) funds its buy-back.
func ClosePartial(short *domain.Trade, fragmentID string, closedAmount, buyBackPrice, buyBackFeePercent float64, closeDate time.Time, tolerance float64) (fragment *domain.Trade, coinsBack float64, err error) {
	if short.Type != domain.Short {
		return nil, 0, fmt.Errorf("trade %s is a %s, not a SHORT: %w", short.ID, short.Type, ports.ErrValidation)
	}
	fragment, err = ledger.PartialClose(short, fragmentID, closedAmount, buyBackPrice, buyBackFeePercent, closeDate, tolerance)
	if err != nil {
		return nil, 0, err
	}
	coinsBack, err = profit.CoinsBoughtBack(fragment.SumPlusFee, buyBackPrice, buyBackFeePercent)
	if err != nil {
		return nil, 0, err
	}
	return fragment, coinsBack, nil
}

// remainingProportion is the share of the original position a direct
// close still covers after any earlier partial closes.
func remainingProportion(t *domain.Trade) float64 {
	if t.OriginalAmount <= 0 {
		return 1
	}
	return t.RemainingAmount / t.OriginalAmount
}
