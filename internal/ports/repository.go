package ports

import (
	"context"

	"coinledger/internal/domain"
)

// TradeRepository defines the interface for storing and retrieving trades.
type TradeRepository interface {
	// FindByID retrieves a trade by its unique ID.
	// Returns nil, nil if not found.
	FindByID(ctx context.Context, id string) (*domain.Trade, error)
	// Insert saves a new trade record.
	Insert(ctx context.Context, trade *domain.Trade) error
	// Update modifies an existing trade.
	Update(ctx context.Context, trade *domain.Trade) error
	// Delete removes a trade record by ID.
	Delete(ctx context.Context, id string) error
	// FindByPortfolio retrieves all trades of a portfolio, ordered by open date.
	FindByPortfolio(ctx context.Context, portfolioID string) ([]*domain.Trade, error)
	// FindByParent retrieves all trades referencing the given parent trade
	// (SHORT children and partial-close fragments).
	FindByParent(ctx context.Context, parentTradeID string) ([]*domain.Trade, error)
}

// TradeStore is a TradeRepository that can additionally run a set of
// repository calls atomically. Multi-record operations (SHORT close,
// partial close, split) either commit every write or none.
type TradeStore interface {
	TradeRepository
	// Transact runs fn against a transactional view of the repository.
	// A non-nil error from fn rolls back all writes made through it.
	Transact(ctx context.Context, fn func(repo TradeRepository) error) error
}

// PortfolioRepository defines the interface for storing and retrieving
// portfolios (the deposit/coin-allocation collaborator of the core).
type PortfolioRepository interface {
	// FindByID retrieves a portfolio by its unique ID.
	// Returns nil, nil if not found.
	FindByID(ctx context.Context, id string) (*domain.Portfolio, error)
	// Insert saves a new portfolio.
	Insert(ctx context.Context, p *domain.Portfolio) error
	// Update modifies an existing portfolio.
	Update(ctx context.Context, p *domain.Portfolio) error
	// FindByOwner retrieves all portfolios belonging to an owner.
	FindByOwner(ctx context.Context, ownerID string) ([]*domain.Portfolio, error)
}
