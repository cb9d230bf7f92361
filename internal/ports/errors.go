package ports

import "errors"

// Standard application-level errors.
// Adapters and engines wrap underlying errors with these standard errors
// so callers can classify failures without parsing messages.
var (
	// General errors
	ErrUnknown         = errors.New("unknown error occurred")
	ErrValidation      = errors.New("invalid request parameters")
	ErrNotFound        = errors.New("resource not found")
	ErrTimeout         = errors.New("operation timed out")
	ErrContextCanceled = errors.New("operation canceled via context")

	// Accounting errors
	// ErrImmutable guards entry economics once a trade is CLOSED:
	// entryPrice/amount/sumPlusFee may be edited up to and including the
	// close operation itself, never after.
	ErrImmutable = errors.New("entry fields immutable on a closed trade")
	// ErrInvariantViolation marks internal accounting corruption, e.g. a
	// recalculation that would produce Inf/NaN.
	ErrInvariantViolation = errors.New("accounting invariant violated")

	// Price feed errors
	ErrExchangeUnavailable  = errors.New("exchange API is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the exchange")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")

	// Database errors
	ErrDuplicateEntry = errors.New("database record already exists")
	ErrDBConnection   = errors.New("database connection error")
	ErrQueryFailed    = errors.New("database query failed")
	ErrUpdateFailed   = errors.New("database update failed")
	ErrDeleteFailed   = errors.New("database delete failed")
)
