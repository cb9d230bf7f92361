package domain

import "time"

// Trade is the central accounting record: one LONG or SHORT position
// (or a closed fragment of one) held against a portfolio.
type Trade struct {
	ID          string // Unique identifier (caller-supplied, usually a UUID)
	PortfolioID string // Portfolio this trade belongs to
	CoinSymbol  string // Uppercase ticker (e.g., "BTC")
	Type        TradeType
	Status      TradeStatus

	// Entry economics. For a SHORT, EntryPrice is the sale price and
	// SumPlusFee is the money received before fee.
	EntryPrice     float64 // Current effective price per coin at entry
	EntryFee       float64 // Entry fee in percent
	SumPlusFee     float64 // Gross USD amount involved at entry
	Amount         float64 // Coin quantity currently associated with this record
	DepositPercent float64 // Share of the portfolio deposit allocated at creation

	// Exit economics, set only when closing.
	ExitPrice float64
	ExitFee   float64 // Exit fee in percent

	OpenDate   time.Time
	FilledDate time.Time // Zero value until the trade is filled
	CloseDate  time.Time // Zero value until the trade is closed

	// Immutable provenance: snapshot at creation time, never mutated
	// afterwards even as Amount/EntryPrice change through parent
	// recalculation. This is the historical-cost anchor.
	InitialEntryPrice float64
	InitialAmount     float64

	// Partial-close tracking.
	OriginalAmount  float64 // Snapshot at creation, for proportion math
	RemainingAmount float64 // Decreases with each partial close; 0 means fully closed
	IsPartialClose  bool    // True on a closing-fragment record
	ClosedAmount    float64 // How much this specific fragment closed
	ParentTradeID   string  // Trade this partial/SHORT derives from (back-reference, not ownership)

	// ReservedSumPlusFee records, on a SHORT, the USD cost basis removed
	// from the parent LONG when the SHORT reserved its coin supply. It is
	// restored to the parent (proportionally, for partial closes) when
	// the bought-back coins are returned. Zero on standalone SHORTs.
	ReservedSumPlusFee float64

	// Split tracking.
	IsSplit          bool   // True on the original trade once split
	SplitFromTradeID string // Original trade this fragment was split from
	SplitGroupID     string // Shared across all fragments of one split operation
}

// IsOpen reports whether the trade is still planned (not yet filled).
func (t *Trade) IsOpen() bool {
	return t.Status == StatusOpen
}

// IsFilled reports whether the trade is an active filled position.
func (t *Trade) IsFilled() bool {
	return t.Status == StatusFilled
}

// IsClosed reports whether the trade has reached its terminal status.
func (t *Trade) IsClosed() bool {
	return t.Status == StatusClosed
}

// HasParent reports whether this trade derives from another trade
// (a SHORT borrowing from a LONG, or a partial-close fragment).
func (t *Trade) HasParent() bool {
	return t.ParentTradeID != ""
}

// Clone returns a shallow copy. Engine operations mutate copies and
// persist them atomically, so a failed validation never leaves a
// half-updated record visible.
func (t *Trade) Clone() *Trade {
	c := *t
	return &c
}
