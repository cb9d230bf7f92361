// Package ledger implements the trade lifecycle state machine:
// OPEN -> FILLED -> CLOSED, with partial closes tracked through
// remainingAmount. All operations here are pure entity transformations;
// persistence and cross-trade orchestration live in the app service.
package ledger

import (
	"fmt"
	"time"

	"coinledger/internal/domain"
	"coinledger/internal/ports"
)

// CreateInput carries the caller-supplied values for a new trade.
// ID and OpenDate are injected to keep the core deterministic.
type CreateInput struct {
	ID             string
	PortfolioID    string
	CoinSymbol     string
	Type           domain.TradeType
	Status         domain.TradeStatus // StatusOpen (planned) or StatusFilled (engine-created)
	EntryPrice     float64
	EntryFee       float64 // percent
	SumPlusFee     float64
	Amount         float64
	DepositPercent float64
	OpenDate       time.Time
}

// New validates the input and builds a trade with its immutable
// provenance snapshot (initialEntryPrice/initialAmount) and the
// partial-close counters set to the full amount.
func New(in CreateInput) (*domain.Trade, error) {
	if in.ID == "" {
		return nil, fmt.Errorf("trade id is required: %w", ports.ErrValidation)
	}
	if in.CoinSymbol == "" {
		return nil, fmt.Errorf("coin symbol is required: %w", ports.ErrValidation)
	}
	if in.Type != domain.Long && in.Type != domain.Short {
		return nil, fmt.Errorf("unknown trade type %q: %w", in.Type, ports.ErrValidation)
	}
	if in.Amount <= 0 {
		return nil, fmt.Errorf("amount must be positive, got %v: %w", in.Amount, ports.ErrValidation)
	}
	if in.EntryPrice <= 0 {
		return nil, fmt.Errorf("entry price must be positive, got %v: %w", in.EntryPrice, ports.ErrValidation)
	}
	if in.EntryFee < 0 || in.EntryFee > 100 {
		return nil, fmt.Errorf("entry fee must be within [0,100], got %v: %w", in.EntryFee, ports.ErrValidation)
	}
	if in.DepositPercent < 0 || in.DepositPercent > 100 {
		return nil, fmt.Errorf("deposit percent must be within [0,100], got %v: %w", in.DepositPercent, ports.ErrValidation)
	}
	status := in.Status
	if status == "" {
		status = domain.StatusOpen
	}
	if status != domain.StatusOpen && status != domain.StatusFilled {
		return nil, fmt.Errorf("a trade cannot be created in status %q: %w", status, ports.ErrValidation)
	}

	t := &domain.Trade{
		ID:             in.ID,
		PortfolioID:    in.PortfolioID,
		CoinSymbol:     in.CoinSymbol,
		Type:           in.Type,
		Status:         status,
		EntryPrice:     in.EntryPrice,
		EntryFee:       in.EntryFee,
		SumPlusFee:     in.SumPlusFee,
		Amount:         in.Amount,
		DepositPercent: in.DepositPercent,
		OpenDate:       in.OpenDate,

		InitialEntryPrice: in.EntryPrice,
		InitialAmount:     in.Amount,
		OriginalAmount:    in.Amount,
		RemainingAmount:   in.Amount,
	}
	if status == domain.StatusFilled {
		t.FilledDate = in.OpenDate
	}
	return t, nil
}

// Fill confirms a planned trade with exchange-reported values.
// Only OPEN trades can be filled; the provenance snapshot is untouched.
func Fill(t *domain.Trade, actualSumPlusFee, actualAmount float64, filledDate time.Time) error {
	if t.Status != domain.StatusOpen {
		return fmt.Errorf("trade %s is %s, only OPEN trades can be filled: %w", t.ID, t.Status, ports.ErrValidation)
	}
	if actualAmount <= 0 {
		return fmt.Errorf("filled amount must be positive, got %v: %w", actualAmount, ports.ErrValidation)
	}
	if actualSumPlusFee <= 0 {
		return fmt.Errorf("filled sumPlusFee must be positive, got %v: %w", actualSumPlusFee, ports.ErrValidation)
	}
	t.SumPlusFee = actualSumPlusFee
	t.Amount = actualAmount
	t.OriginalAmount = actualAmount
	t.RemainingAmount = actualAmount
	t.Status = domain.StatusFilled
	t.FilledDate = filledDate
	return nil
}

// Close transitions a FILLED trade to CLOSED with its exit economics.
// Entry fields may be edited up to and including this call, never after.
func Close(t *domain.Trade, exitPrice, exitFeePercent float64, closeDate time.Time) error {
	if t.Status == domain.StatusClosed {
		return fmt.Errorf("trade %s is already closed: %w", t.ID, ports.ErrImmutable)
	}
	if t.Status != domain.StatusFilled {
		return fmt.Errorf("trade %s is %s, only FILLED trades can be closed: %w", t.ID, t.Status, ports.ErrValidation)
	}
	if exitPrice <= 0 {
		return fmt.Errorf("exit price must be positive, got %v: %w", exitPrice, ports.ErrValidation)
	}
	if exitFeePercent < 0 || exitFeePercent > 100 {
		return fmt.Errorf("exit fee must be within [0,100], got %v: %w", exitFeePercent, ports.ErrValidation)
	}
	t.ExitPrice = exitPrice
	t.ExitFee = exitFeePercent
	t.CloseDate = closeDate
	t.Status = domain.StatusClosed
	return nil
}

// UpdateEntry edits the entry economics of a trade that has not closed
// yet. Once CLOSED, entry fields are immutable.
func UpdateEntry(t *domain.Trade, entryPrice, sumPlusFee, amount float64) error {
	if t.Status == domain.StatusClosed {
		return fmt.Errorf("trade %s: %w", t.ID, ports.ErrImmutable)
	}
	if entryPrice <= 0 {
		return fmt.Errorf("entry price must be positive, got %v: %w", entryPrice, ports.ErrValidation)
	}
	if amount <= 0 {
		return fmt.Errorf("amount must be positive, got %v: %w", amount, ports.ErrValidation)
	}
	t.EntryPrice = entryPrice
	t.SumPlusFee = sumPlusFee
	t.Amount = amount
	return nil
}

// PartialClose closes closedAmount of a FILLED trade. It returns a new
// CLOSED fragment record representing this exit event and decrements
// the trade's remainingAmount; when the remainder falls within the
// tolerance the trade itself flips to CLOSED with remainingAmount
// exactly 0. The trade's amount/sumPlusFee/provenance stay untouched:
// they describe the original full position, the remainder is tracked
// solely through remainingAmount.
func PartialClose(t *domain.Trade, fragmentID string, closedAmount, exitPrice, exitFeePercent float64, closeDate time.Time, tolerance float64) (*domain.Trade, error) {
	if fragmentID == "" {
		return nil, fmt.Errorf("fragment id is required: %w", ports.ErrValidation)
	}
	if t.Status != domain.StatusFilled {
		return nil, fmt.Errorf("trade %s is %s, only FILLED trades can be partially closed: %w", t.ID, t.Status, ports.ErrValidation)
	}
	if closedAmount <= 0 {
		return nil, fmt.Errorf("closed amount must be positive, got %v: %w", closedAmount, ports.ErrValidation)
	}
	if closedAmount > t.RemainingAmount+tolerance {
		return nil, fmt.Errorf("cannot close more than the remaining amount (%v %s): %w",
			t.RemainingAmount, t.CoinSymbol, ports.ErrValidation)
	}
	if exitPrice <= 0 {
		return nil, fmt.Errorf("exit price must be positive, got %v: %w", exitPrice, ports.ErrValidation)
	}
	if exitFeePercent < 0 || exitFeePercent > 100 {
		return nil, fmt.Errorf("exit fee must be within [0,100], got %v: %w", exitFeePercent, ports.ErrValidation)
	}
	if t.OriginalAmount <= 0 {
		return nil, fmt.Errorf("trade %s has no original amount: %w", t.ID, ports.ErrInvariantViolation)
	}

	proportion := closedAmount / t.OriginalAmount
	fragment := &domain.Trade{
		ID:          fragmentID,
		PortfolioID: t.PortfolioID,
		CoinSymbol:  t.CoinSymbol,
		Type:        t.Type,
		Status:      domain.StatusClosed,

		EntryPrice: t.EntryPrice,
		EntryFee:   t.EntryFee,
		SumPlusFee: t.SumPlusFee * proportion,
		Amount:     closedAmount,

		ExitPrice: exitPrice,
		ExitFee:   exitFeePercent,

		OpenDate:   t.OpenDate,
		FilledDate: t.FilledDate,
		CloseDate:  closeDate,

		InitialEntryPrice: t.InitialEntryPrice,
		InitialAmount:     t.InitialAmount,

		OriginalAmount:  closedAmount,
		RemainingAmount: 0,
		IsPartialClose:  true,
		ClosedAmount:    closedAmount,
		ParentTradeID:   t.ID,

		ReservedSumPlusFee: t.ReservedSumPlusFee * proportion,
	}

	t.RemainingAmount -= closedAmount
	if t.RemainingAmount <= tolerance {
		t.RemainingAmount = 0
		t.Status = domain.StatusClosed
		t.CloseDate = closeDate
	}
	return fragment, nil
}
