package app

import (
	"context"
	"fmt"
	"time"

	"coinledger/internal/analytics"
	"coinledger/internal/domain"
	"coinledger/internal/ports"
	"coinledger/internal/shorting"
)

// OpenShortInput carries the sale parameters of a new SHORT.
// ParentTradeID selects the LONG to borrow coin supply from; when empty
// the SHORT sells from the portfolio's unattached initial-coin pool.
type OpenShortInput struct {
	PortfolioID    string
	ParentTradeID  string
	CoinSymbol     string
	Amount         float64
	SalePrice      float64
	SaleFeePercent float64
	Now            time.Time
}

// OpenShort records a SHORT sale. With a parent, the parent's coin
// supply and cost basis are reduced proportionally (its effective entry
// price does not move) and both records are written in one transaction.
func (s *AccountingService) OpenShort(ctx context.Context, in OpenShortInput) (*domain.Trade, error) {
	portfolio, err := s.getPortfolio(ctx, in.PortfolioID)
	if err != nil {
		return nil, err
	}
	decimals := portfolio.CoinDecimals(in.CoinSymbol)

	if in.ParentTradeID == "" {
		return s.openStandaloneShort(ctx, portfolio, decimals, in)
	}

	unlock := s.lockFor(in.ParentTradeID)
	defer unlock()

	parent, err := s.getTrade(ctx, in.ParentTradeID)
	if err != nil {
		return nil, err
	}
	if parent.CoinSymbol != in.CoinSymbol {
		return nil, fmt.Errorf("parent trade %s holds %s, not %s: %w", parent.ID, parent.CoinSymbol, in.CoinSymbol, ports.ErrValidation)
	}

	updatedParent := parent.Clone()
	reserved, err := shorting.Reserve(updatedParent, in.Amount, decimals)
	if err != nil {
		return nil, err
	}
	short, err := shorting.NewShort(updatedParent, reserved, shorting.NewShortInput{
		ID:             s.ids.NewID(),
		PortfolioID:    in.PortfolioID,
		CoinSymbol:     in.CoinSymbol,
		Amount:         in.Amount,
		SalePrice:      in.SalePrice,
		SaleFeePercent: in.SaleFeePercent,
		Now:            in.Now,
	})
	if err != nil {
		return nil, err
	}

	err = s.store.Transact(ctx, func(repo ports.TradeRepository) error {
		if err := repo.Update(ctx, updatedParent); err != nil {
			return err
		}
		return repo.Insert(ctx, short)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "SHORT opened against parent", map[string]interface{}{
		"shortID": short.ID, "parentID": parent.ID, "amount": in.Amount, "salePrice": in.SalePrice,
	})
	return short, nil
}

func (s *AccountingService) openStandaloneShort(ctx context.Context, portfolio *domain.Portfolio, decimals int, in OpenShortInput) (*domain.Trade, error) {
	// Standalone SHORTs reserve from the portfolio-wide pool; serialize
	// per portfolio so two concurrent sales cannot both pass the
	// availability check.
	unlock := s.lockFor("portfolio:" + in.PortfolioID)
	defer unlock()

	available, err := s.availableInitialCoins(ctx, portfolio, in.CoinSymbol)
	if err != nil {
		return nil, err
	}
	if in.Amount > available+domain.Tolerance(decimals) {
		return nil, fmt.Errorf("cannot sell more than available amount (%s %s): %w",
			domain.FormatAmount(available, decimals), in.CoinSymbol, ports.ErrValidation)
	}

	short, err := shorting.NewStandaloneShort(shorting.NewShortInput{
		ID:             s.ids.NewID(),
		PortfolioID:    in.PortfolioID,
		CoinSymbol:     in.CoinSymbol,
		Amount:         in.Amount,
		SalePrice:      in.SalePrice,
		SaleFeePercent: in.SaleFeePercent,
		Now:            in.Now,
	})
	if err != nil {
		return nil, err
	}
	if err := s.store.Insert(ctx, short); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "Standalone SHORT opened", map[string]interface{}{
		"shortID": short.ID, "symbol": in.CoinSymbol, "amount": in.Amount,
	})
	return short, nil
}

// availableInitialCoins computes the portfolio's unattached coin supply
// for a symbol: the recorded initial amount, minus what standalone
// SHORTs still hold sold, plus the net coin profit already realized by
// closed standalone SHORT records (bought-back coins return to the pool).
func (s *AccountingService) availableInitialCoins(ctx context.Context, portfolio *domain.Portfolio, symbol string) (float64, error) {
	initial := 0.0
	found := false
	for _, ic := range portfolio.InitialCoins {
		if ic.Symbol == symbol {
			initial = ic.Amount
			found = true
			break
		}
	}
	if !found {
		return 0, fmt.Errorf("portfolio %s has no initial coin entry for %s: %w", portfolio.ID, symbol, ports.ErrValidation)
	}

	trades, err := s.store.FindByPortfolio(ctx, portfolio.ID)
	if err != nil {
		return 0, err
	}
	byID := make(map[string]*domain.Trade, len(trades))
	for _, t := range trades {
		byID[t.ID] = t
	}
	isStandaloneShortFamily := func(t *domain.Trade) bool {
		if t.Type != domain.Short || t.CoinSymbol != symbol {
			return false
		}
		if t.ParentTradeID == "" {
			return true
		}
		// Fragments point at their SHORT; follow one hop to see whether
		// the family root is standalone.
		parent, ok := byID[t.ParentTradeID]
		return t.IsPartialClose && ok && parent.ParentTradeID == ""
	}

	available := initial
	for _, t := range trades {
		if !isStandaloneShortFamily(t) {
			continue
		}
		if !t.IsClosed() {
			available -= t.RemainingAmount
			continue
		}
		if t.IsSplit || t.ExitPrice <= 0 {
			continue
		}
		p, err := analytics.TradeProfit(t)
		if err != nil {
			return 0, err
		}
		available += p.Value
	}
	return available, nil
}

// CloseShort buys the SHORT's remaining sold quantity back outright.
// The bought-back coins and the matching share of the reserved cost
// basis flow to the parent LONG, whose effective entry price is
// recalculated; provenance fields never move.
func (s *AccountingService) CloseShort(ctx context.Context, id string, buyBackPrice, buyBackFeePercent float64, closeDate time.Time) (*domain.Trade, error) {
	short, err := s.getTrade(ctx, id)
	if err != nil {
		return nil, err
	}
	unlock := s.lockFor(s.linkageLockID(short))
	defer unlock()

	// Reload under the lock: a concurrent close may have finished first.
	short, err = s.getTrade(ctx, id)
	if err != nil {
		return nil, err
	}

	updatedShort := short.Clone()
	coinsBack, restored, err := shorting.CloseFull(updatedShort, buyBackPrice, buyBackFeePercent, closeDate)
	if err != nil {
		return nil, err
	}

	if short.ParentTradeID == "" {
		if err := s.store.Update(ctx, updatedShort); err != nil {
			return nil, err
		}
		s.logger.Info(ctx, "Standalone SHORT closed", map[string]interface{}{"shortID": id, "coinsBack": coinsBack})
		return updatedShort, nil
	}

	updatedParent, err := s.returnToParent(ctx, short.ParentTradeID, coinsBack, restored)
	if err != nil {
		return nil, err
	}
	err = s.store.Transact(ctx, func(repo ports.TradeRepository) error {
		if err := repo.Update(ctx, updatedShort); err != nil {
			return err
		}
		return repo.Update(ctx, updatedParent)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "SHORT closed", map[string]interface{}{
		"shortID": id, "parentID": updatedParent.ID, "coinsBack": coinsBack,
		"parentAmount": updatedParent.Amount, "parentEntryPrice": updatedParent.EntryPrice,
	})
	return updatedShort, nil
}

// PartialCloseShort buys back part of the SHORT's sold quantity. Only
// the fragment's proportional share of coins and reserved basis flows
// to the parent.
func (s *AccountingService) PartialCloseShort(ctx context.Context, id string, closedAmount, buyBackPrice, buyBackFeePercent float64, closeDate time.Time) (*domain.Trade, error) {
	short, err := s.getTrade(ctx, id)
	if err != nil {
		return nil, err
	}
	unlock := s.lockFor(s.linkageLockID(short))
	defer unlock()

	short, err = s.getTrade(ctx, id)
	if err != nil {
		return nil, err
	}
	tolerance, _, err := s.toleranceFor(ctx, short.PortfolioID, short.CoinSymbol)
	if err != nil {
		return nil, err
	}

	updatedShort := short.Clone()
	fragment, coinsBack, err := shorting.ClosePartial(updatedShort, s.ids.NewID(), closedAmount, buyBackPrice, buyBackFeePercent, closeDate, tolerance)
	if err != nil {
		return nil, err
	}

	if short.ParentTradeID == "" {
		err = s.store.Transact(ctx, func(repo ports.TradeRepository) error {
			if err := repo.Update(ctx, updatedShort); err != nil {
				return err
			}
			return repo.Insert(ctx, fragment)
		})
		if err != nil {
			return nil, err
		}
		return fragment, nil
	}

	updatedParent, err := s.returnToParent(ctx, short.ParentTradeID, coinsBack, fragment.ReservedSumPlusFee)
	if err != nil {
		return nil, err
	}
	err = s.store.Transact(ctx, func(repo ports.TradeRepository) error {
		if err := repo.Update(ctx, updatedShort); err != nil {
			return err
		}
		if err := repo.Insert(ctx, fragment); err != nil {
			return err
		}
		return repo.Update(ctx, updatedParent)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "SHORT partially closed", map[string]interface{}{
		"shortID": id, "fragmentID": fragment.ID, "closedAmount": closedAmount, "coinsBack": coinsBack,
	})
	return fragment, nil
}

// linkageLockID picks the serialization scope of a SHORT operation: the
// parent trade id when linked, the SHORT's own id when standalone.
func (s *AccountingService) linkageLockID(short *domain.Trade) string {
	if short.ParentTradeID != "" {
		return short.ParentTradeID
	}
	return short.ID
}

// returnToParent loads the parent LONG and applies the coin return on a
// clone. The caller persists it together with the SHORT records.
func (s *AccountingService) returnToParent(ctx context.Context, parentID string, coinsBack, restored float64) (*domain.Trade, error) {
	parent, err := s.getTrade(ctx, parentID)
	if err != nil {
		return nil, err
	}
	updated := parent.Clone()
	if err := shorting.ReturnCoins(updated, coinsBack, restored); err != nil {
		return nil, err
	}
	return updated, nil
}
