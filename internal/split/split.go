// Package split subdivides a FILLED trade into 2-5 independent trades
// that preserve the aggregate cost basis and can be closed separately.
package split

import (
	"fmt"
	"math"
	"time"

	"coinledger/internal/domain"
	"coinledger/internal/ports"
)

// MinParts and MaxParts bound how many fragments one split may produce.
const (
	MinParts = 2
	MaxParts = 5
)

// Input carries the caller-supplied identifiers for one split operation.
// FragmentIDs must hold one id per requested amount; GroupID is shared
// across all fragments so the group can be found again later.
type Input struct {
	Amounts     []float64
	FragmentIDs []string
	GroupID     string
	Now         time.Time
}

// Split divides trade into len(Amounts) fragments and retires the
// original (isSplit=true, status CLOSED). Each fragment's sumPlusFee is
// amount x entryPrice except the last, which receives the remainder of
// the original sumPlusFee so the group total matches exactly instead of
// accumulating rounding drift. Fragment provenance is reset to the
// fragment's own size. The caller persists original and fragments in
// one transaction; on error nothing has been mutated.
func Split(trade *domain.Trade, in Input, tolerance float64) ([]*domain.Trade, error) {
	if trade.Status != domain.StatusFilled {
		return nil, fmt.Errorf("trade %s is %s, only FILLED trades can be split: %w", trade.ID, trade.Status, ports.ErrValidation)
	}
	if trade.Type == domain.Short && trade.HasParent() {
		return nil, fmt.Errorf("trade %s is a SHORT derived from a LONG and cannot be split: %w", trade.ID, ports.ErrValidation)
	}
	if len(in.Amounts) < MinParts || len(in.Amounts) > MaxParts {
		return nil, fmt.Errorf("split requires between %d and %d parts, got %d: %w", MinParts, MaxParts, len(in.Amounts), ports.ErrValidation)
	}
	if len(in.FragmentIDs) != len(in.Amounts) {
		return nil, fmt.Errorf("split needs %d fragment ids, got %d: %w", len(in.Amounts), len(in.FragmentIDs), ports.ErrValidation)
	}
	if in.GroupID == "" {
		return nil, fmt.Errorf("split group id is required: %w", ports.ErrValidation)
	}

	var total float64
	for i, amount := range in.Amounts {
		if amount <= 0 {
			return nil, fmt.Errorf("split amount %d must be positive, got %v: %w", i+1, amount, ports.ErrValidation)
		}
		total += amount
	}
	if math.Abs(total-trade.Amount) > tolerance {
		return nil, fmt.Errorf("split amounts sum to %v but must equal trade amount (%v %s): %w",
			total, trade.Amount, trade.CoinSymbol, ports.ErrValidation)
	}

	fragments := make([]*domain.Trade, 0, len(in.Amounts))
	var allocated float64
	for i, amount := range in.Amounts {
		sumPlusFee := amount * trade.EntryPrice
		if i == len(in.Amounts)-1 {
			// Remainder to the last fragment: the group total must equal
			// the original sumPlusFee exactly.
			sumPlusFee = trade.SumPlusFee - allocated
		}
		allocated += sumPlusFee

		fragments = append(fragments, &domain.Trade{
			ID:          in.FragmentIDs[i],
			PortfolioID: trade.PortfolioID,
			CoinSymbol:  trade.CoinSymbol,
			Type:        trade.Type,
			Status:      domain.StatusFilled,

			EntryPrice:     trade.EntryPrice,
			EntryFee:       trade.EntryFee,
			SumPlusFee:     sumPlusFee,
			Amount:         amount,
			DepositPercent: trade.DepositPercent,

			OpenDate:   trade.OpenDate,
			FilledDate: trade.FilledDate,

			// Unlike the SHORT linkage, provenance resets to the
			// fragment's own size at the split price.
			InitialEntryPrice: trade.EntryPrice,
			InitialAmount:     amount,

			OriginalAmount:  amount,
			RemainingAmount: amount,

			SplitFromTradeID: trade.ID,
			SplitGroupID:     in.GroupID,
		})
	}

	// The original is retired, replaced by its fragments.
	trade.IsSplit = true
	trade.Status = domain.StatusClosed
	trade.CloseDate = in.Now
	return fragments, nil
}
