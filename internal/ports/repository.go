package ports

import (
	"context"
	"time"

	"tradejournal/internal/domain"
)

// FillRepository defines the interface for the durable store of raw executions.
// The store is append-only from the engine's perspective: fills are
// deduplicated on upsert by execution id and never mutated or deleted.
type FillRepository interface {
	// UpsertFills persists a batch of fills, ignoring execution ids already
	// stored. Returns the number of newly inserted rows.
	UpsertFills(ctx context.Context, fills []*domain.Fill) (int, error)
	// FindFills retrieves all stored fills for a symbol executed in
	// [start, end), ordered by (time, execution id).
	FindFills(ctx context.Context, symbol string, start, end time.Time) ([]*domain.Fill, error)
	// LatestFillTime returns the execution time of the most recent stored
	// fill for a symbol. Returns zero time and nil if none is stored.
	LatestFillTime(ctx context.Context, symbol string) (time.Time, error)
	// FillSymbols returns the distinct symbols present in the store, sorted.
	FillSymbols(ctx context.Context) ([]string, error)
}

// GroupRepository defines the interface for storing and retrieving position
// groups. The grouping engine is the only writer.
type GroupRepository interface {
	// UpsertGroup inserts a group or fully refreshes it by group id.
	UpsertGroup(ctx context.Context, group *domain.PositionGroup) error
	// FindGroupByID retrieves a group by its deterministic id.
	// Returns nil, nil if not found.
	FindGroupByID(ctx context.Context, groupID string) (*domain.PositionGroup, error)
	// FindGroups retrieves groups for a symbol whose open time falls in
	// [start, end), ordered by open time ascending.
	FindGroups(ctx context.Context, symbol string, start, end time.Time) ([]*domain.PositionGroup, error)
	// FindClosedGroups retrieves closed groups (any symbol) whose close time
	// falls in [start, end), ordered by close time ascending.
	FindClosedGroups(ctx context.Context, start, end time.Time) ([]*domain.PositionGroup, error)
	// FindOpenGroup retrieves the currently open group for a symbol, if any.
	// Returns nil, nil if no open group exists.
	FindOpenGroup(ctx context.Context, symbol string) (*domain.PositionGroup, error)
}

// DailyPnLRepository defines the interface for the derived daily rollup table.
type DailyPnLRepository interface {
	// ReplaceDailyPnL atomically deletes all rows for days in [fromDay, toDay]
	// (inclusive day keys) and inserts the supplied rows. Full replacement
	// keeps recomputation trivially idempotent.
	ReplaceDailyPnL(ctx context.Context, fromDay, toDay string, rows []*domain.DailyPnL) error
	// FindDailyPnL retrieves rows for days in [fromDay, toDay], ordered by
	// (date, symbol).
	FindDailyPnL(ctx context.Context, fromDay, toDay string) ([]*domain.DailyPnL, error)
}
