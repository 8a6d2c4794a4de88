package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Accounting Errors
	// ErrMalformedFill marks input that violates basic fill invariants
	// (non-positive quantity/price, blank ids). The whole batch for the
	// affected symbol is rejected: partial accumulation would corrupt every
	// group derived after the bad fill.
	ErrMalformedFill = errors.New("malformed fill in input batch")
	// ErrConsistency marks a replay that contradicts an already-closed stored
	// group. Never auto-corrected; it means the trailing context window was
	// too short or the stored data is corrupt.
	ErrConsistency = errors.New("replay contradicts stored closed position group")

	// Exchange Specific Errors
	ErrExchangeUnavailable  = errors.New("exchange API is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the exchange")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")
	ErrInvalidAPIKeys       = errors.New("invalid API keys or permissions")

	// Database Specific Errors
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
	ErrUpdateFailed = errors.New("database update failed")
)
