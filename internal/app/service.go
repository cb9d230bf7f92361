// Package app wires the accounting engines to persistence. Every
// operation either commits a fully valid set of trades or fails with no
// partial mutation: engines work on clones, writes go through one
// store transaction, and operations touching a parent trade are
// serialized per parent id.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"coinledger/internal/analytics"
	"coinledger/internal/domain"
	"coinledger/internal/ledger"
	"coinledger/internal/ports"
)

// AccountingService orchestrates trade lifecycle, SHORT linkage, split
// and rollup operations against the trade store.
type AccountingService struct {
	logger     ports.Logger
	store      ports.TradeStore
	portfolios ports.PortfolioRepository
	ids        ports.IDProvider

	// mu guards locks; each entry serializes read-modify-write cycles
	// against one trade id (the parent id for SHORT and partial-close
	// operations).
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewAccountingService creates the application service.
func NewAccountingService(logger ports.Logger, store ports.TradeStore, portfolios ports.PortfolioRepository, ids ports.IDProvider) (*AccountingService, error) {
	if logger == nil || store == nil || portfolios == nil || ids == nil {
		return nil, fmt.Errorf("missing required dependencies for AccountingService")
	}
	return &AccountingService{
		logger:     logger,
		store:      store,
		portfolios: portfolios,
		ids:        ids,
		locks:      make(map[string]*sync.Mutex),
	}, nil
}

// lockFor acquires the exclusive lock scoped to one trade id and
// returns its release function.
func (s *AccountingService) lockFor(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func (s *AccountingService) getTrade(ctx context.Context, id string) (*domain.Trade, error) {
	t, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("trade %s: %w", id, ports.ErrNotFound)
	}
	return t, nil
}

func (s *AccountingService) getPortfolio(ctx context.Context, id string) (*domain.Portfolio, error) {
	p, err := s.portfolios.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("portfolio %s: %w", id, ports.ErrNotFound)
	}
	return p, nil
}

// toleranceFor resolves the amount-comparison tolerance from the coin's
// configured decimal precision.
func (s *AccountingService) toleranceFor(ctx context.Context, portfolioID, symbol string) (float64, int, error) {
	p, err := s.getPortfolio(ctx, portfolioID)
	if err != nil {
		return 0, 0, err
	}
	decimals := p.CoinDecimals(symbol)
	return domain.Tolerance(decimals), decimals, nil
}

// CreateTradeInput carries the caller-supplied values of a new planned
// LONG trade. SHORT trades are created through OpenShort so the parent
// reservation and pool checks cannot be bypassed.
type CreateTradeInput struct {
	PortfolioID    string
	CoinSymbol     string
	EntryPrice     float64
	EntryFee       float64
	SumPlusFee     float64
	Amount         float64
	DepositPercent float64
	OpenDate       time.Time
}

// CreateTrade records a new planned LONG position.
func (s *AccountingService) CreateTrade(ctx context.Context, in CreateTradeInput) (*domain.Trade, error) {
	if _, err := s.getPortfolio(ctx, in.PortfolioID); err != nil {
		return nil, err
	}

	trade, err := ledger.New(ledger.CreateInput{
		ID:             s.ids.NewID(),
		PortfolioID:    in.PortfolioID,
		CoinSymbol:     in.CoinSymbol,
		Type:           domain.Long,
		EntryPrice:     in.EntryPrice,
		EntryFee:       in.EntryFee,
		SumPlusFee:     in.SumPlusFee,
		Amount:         in.Amount,
		DepositPercent: in.DepositPercent,
		OpenDate:       in.OpenDate,
	})
	if err != nil {
		return nil, err
	}
	if err := s.store.Insert(ctx, trade); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "Trade created", map[string]interface{}{"tradeID": trade.ID, "symbol": trade.CoinSymbol, "amount": trade.Amount})
	return trade, nil
}

// FillTrade confirms a planned trade with exchange-reported values.
func (s *AccountingService) FillTrade(ctx context.Context, id string, actualSumPlusFee, actualAmount float64, filledDate time.Time) (*domain.Trade, error) {
	unlock := s.lockFor(id)
	defer unlock()

	trade, err := s.getTrade(ctx, id)
	if err != nil {
		return nil, err
	}
	updated := trade.Clone()
	if err := ledger.Fill(updated, actualSumPlusFee, actualAmount, filledDate); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, updated); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "Trade filled", map[string]interface{}{"tradeID": id, "amount": actualAmount, "sumPlusFee": actualSumPlusFee})
	return updated, nil
}

// CloseTrade closes a FILLED LONG outright. SHORTs close through
// CloseShort so the parent recalculation cannot be skipped.
func (s *AccountingService) CloseTrade(ctx context.Context, id string, exitPrice, exitFeePercent float64, closeDate time.Time) (*domain.Trade, error) {
	unlock := s.lockFor(id)
	defer unlock()

	trade, err := s.getTrade(ctx, id)
	if err != nil {
		return nil, err
	}
	if trade.Type == domain.Short {
		return nil, fmt.Errorf("trade %s is a SHORT and must be closed through CloseShort: %w", id, ports.ErrValidation)
	}
	updated := trade.Clone()
	if err := ledger.Close(updated, exitPrice, exitFeePercent, closeDate); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, updated); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "Trade closed", map[string]interface{}{"tradeID": id, "exitPrice": exitPrice})
	return updated, nil
}

// UpdateTradeEntry edits the entry economics of a not-yet-closed trade.
func (s *AccountingService) UpdateTradeEntry(ctx context.Context, id string, entryPrice, sumPlusFee, amount float64) (*domain.Trade, error) {
	unlock := s.lockFor(id)
	defer unlock()

	trade, err := s.getTrade(ctx, id)
	if err != nil {
		return nil, err
	}
	updated := trade.Clone()
	if err := ledger.UpdateEntry(updated, entryPrice, sumPlusFee, amount); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// PartialCloseTrade closes part of a FILLED LONG, creating a CLOSED
// fragment and decrementing the trade's remaining amount, atomically.
func (s *AccountingService) PartialCloseTrade(ctx context.Context, id string, closedAmount, exitPrice, exitFeePercent float64, closeDate time.Time) (*domain.Trade, error) {
	unlock := s.lockFor(id)
	defer unlock()

	trade, err := s.getTrade(ctx, id)
	if err != nil {
		return nil, err
	}
	if trade.Type == domain.Short {
		return nil, fmt.Errorf("trade %s is a SHORT and must be closed through PartialCloseShort: %w", id, ports.ErrValidation)
	}
	tolerance, _, err := s.toleranceFor(ctx, trade.PortfolioID, trade.CoinSymbol)
	if err != nil {
		return nil, err
	}

	updated := trade.Clone()
	fragment, err := ledger.PartialClose(updated, s.ids.NewID(), closedAmount, exitPrice, exitFeePercent, closeDate, tolerance)
	if err != nil {
		return nil, err
	}

	err = s.store.Transact(ctx, func(repo ports.TradeRepository) error {
		if err := repo.Update(ctx, updated); err != nil {
			return err
		}
		return repo.Insert(ctx, fragment)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "Trade partially closed", map[string]interface{}{
		"tradeID": id, "fragmentID": fragment.ID, "closedAmount": closedAmount, "remaining": updated.RemainingAmount,
	})
	return fragment, nil
}

// DeleteTrade removes a trade record. A trade still backing open
// linked trades (SHORT children that have not closed) is protected.
func (s *AccountingService) DeleteTrade(ctx context.Context, id string) error {
	unlock := s.lockFor(id)
	defer unlock()

	trade, err := s.getTrade(ctx, id)
	if err != nil {
		return err
	}
	children, err := s.store.FindByParent(ctx, id)
	if err != nil {
		return err
	}
	for _, c := range children {
		if !c.IsClosed() {
			return fmt.Errorf("trade %s still backs open trade %s and cannot be deleted: %w", id, c.ID, ports.ErrValidation)
		}
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info(ctx, "Trade deleted", map[string]interface{}{"tradeID": id, "symbol": trade.CoinSymbol})
	return nil
}

// TradeProfit returns the realized profit of a closed trade as a tagged
// USD-or-coins value.
func (s *AccountingService) TradeProfit(ctx context.Context, id string) (domain.Profit, error) {
	trade, err := s.getTrade(ctx, id)
	if err != nil {
		return domain.Profit{}, err
	}
	return analytics.TradeProfit(trade)
}

// PortfolioSummary rolls up all trades of a portfolio.
func (s *AccountingService) PortfolioSummary(ctx context.Context, portfolioID string) (*analytics.PortfolioSummary, error) {
	if _, err := s.getPortfolio(ctx, portfolioID); err != nil {
		return nil, err
	}
	trades, err := s.store.FindByPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	return analytics.AnalyzePortfolio(trades)
}

// UnrealizedPositions values the portfolio's open positions against the
// supplied current prices (symbol -> price).
func (s *AccountingService) UnrealizedPositions(ctx context.Context, portfolioID string, currentPrices map[string]float64) ([]analytics.UnrealizedPosition, error) {
	if _, err := s.getPortfolio(ctx, portfolioID); err != nil {
		return nil, err
	}
	trades, err := s.store.FindByPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	return analytics.Unrealized(trades, currentPrices)
}
