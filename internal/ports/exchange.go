package ports

import (
	"context"
	"time"

	"tradejournal/internal/domain"
)

// FillSource defines the interface for fetching executed fills from an
// exchange. This abstraction decouples the sync driver from any specific
// exchange implementation; the core only requires complete, non-duplicated
// fills for the requested window and tolerates overlapping re-calls.
type FillSource interface {
	// SetServerTime synchronizes the client's clock offset with the exchange.
	SetServerTime(ctx context.Context) error

	// Ping checks connectivity to the exchange API.
	Ping(ctx context.Context) error

	// FetchFills retrieves all account fills for a symbol executed in
	// [start, end). The implementation handles pagination and rate limiting;
	// callers may re-request overlapping windows freely.
	FetchFills(ctx context.Context, symbol string, start, end time.Time) ([]*domain.Fill, error)

	// TradedSymbols returns the distinct symbols with trading activity in
	// [start, end). Used to discover what to sync when no explicit symbol
	// list is given.
	TradedSymbols(ctx context.Context, start, end time.Time) ([]string, error)
}
