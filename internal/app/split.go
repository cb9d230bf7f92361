package app

import (
	"context"
	"time"

	"coinledger/internal/domain"
	"coinledger/internal/ports"
	"coinledger/internal/split"
)

// SplitTrade divides a FILLED trade into len(amounts) independent
// trades preserving the aggregate cost basis, and retires the original.
// The whole operation is one transaction: a failed validation leaves
// the original FILLED and creates no fragments.
func (s *AccountingService) SplitTrade(ctx context.Context, id string, amounts []float64, now time.Time) ([]*domain.Trade, error) {
	unlock := s.lockFor(id)
	defer unlock()

	trade, err := s.getTrade(ctx, id)
	if err != nil {
		return nil, err
	}
	tolerance, _, err := s.toleranceFor(ctx, trade.PortfolioID, trade.CoinSymbol)
	if err != nil {
		return nil, err
	}

	fragmentIDs := make([]string, len(amounts))
	for i := range fragmentIDs {
		fragmentIDs[i] = s.ids.NewID()
	}

	updated := trade.Clone()
	fragments, err := split.Split(updated, split.Input{
		Amounts:     amounts,
		FragmentIDs: fragmentIDs,
		GroupID:     s.ids.NewID(),
		Now:         now,
	}, tolerance)
	if err != nil {
		return nil, err
	}

	err = s.store.Transact(ctx, func(repo ports.TradeRepository) error {
		if err := repo.Update(ctx, updated); err != nil {
			return err
		}
		for _, f := range fragments {
			if err := repo.Insert(ctx, f); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "Trade split", map[string]interface{}{
		"tradeID": id, "parts": len(fragments), "splitGroupID": fragments[0].SplitGroupID,
	})
	return fragments, nil
}
