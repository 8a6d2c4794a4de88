// Package grouping reconciles replayed position groups against the persistent
// store. Group ids derive deterministically from the opening fill, so re-running
// reconciliation over the same or overlapping windows is a no-op for groups
// already closed and a refresh for the one still open.
package grouping

import (
	"context"
	"fmt"
	"time"

	"tradejournal/internal/domain"
	"tradejournal/internal/netpos"
	"tradejournal/internal/ports"
)

// ChangeKind classifies what reconciliation did with a derived group.
type ChangeKind string

const (
	// ChangeUnchanged: derived closed group already stored closed and identical.
	ChangeUnchanged ChangeKind = "unchanged"
	// ChangeInserted: derived closed group not previously stored.
	ChangeInserted ChangeKind = "inserted"
	// ChangeClosed: stored open group transitioned to closed.
	ChangeClosed ChangeKind = "closed"
	// ChangeRefreshed: still-open group rewritten from scratch.
	ChangeRefreshed ChangeKind = "refreshed"
)

// GroupChange pairs a derived group with the reconciliation outcome.
type GroupChange struct {
	Kind  ChangeKind
	Group *domain.PositionGroup
}

// Engine derives position groups from stored fills and reconciles them against
// stored groups. It is the only writer of the position group table.
type Engine struct {
	fills           ports.FillRepository
	groups          ports.GroupRepository
	logger          ports.Logger
	trailingContext time.Duration
}

// Config holds the dependencies and tuning for the grouping engine.
type Config struct {
	Fills  ports.FillRepository
	Groups ports.GroupRepository
	Logger ports.Logger
	// TrailingContext is how far before the window start fills are loaded so a
	// position already open at the window boundary resumes with the correct
	// entry price. Defaults to 7 days.
	TrailingContext time.Duration
}

const defaultTrailingContext = 7 * 24 * time.Hour

// NewEngine creates a grouping engine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Fills == nil || cfg.Groups == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for grouping engine")
	}
	trailing := cfg.TrailingContext
	if trailing <= 0 {
		trailing = defaultTrailingContext
	}
	return &Engine{
		fills:           cfg.Fills,
		groups:          cfg.Groups,
		logger:          cfg.Logger,
		trailingContext: trailing,
	}, nil
}

// Reconcile replays all stored fills for the symbol over the window (plus
// trailing context), diffs the derived groups against stored ones and persists
// the differences. Stored closed groups are never deleted or overwritten: a
// contradiction surfaces as ErrConsistency and nothing is written.
func (e *Engine) Reconcile(ctx context.Context, symbol string, start, end time.Time) ([]GroupChange, error) {
	loadStart := start.Add(-e.trailingContext)
	fills, err := e.fills.FindFills(ctx, symbol, loadStart, end)
	if err != nil {
		return nil, fmt.Errorf("loading fills for %s: %w", symbol, err)
	}
	if len(fills) == 0 {
		e.logger.Debug(ctx, "No stored fills in window", map[string]interface{}{"symbol": symbol})
		return nil, nil
	}

	derived, err := netpos.Replay(symbol, fills)
	if err != nil {
		return nil, fmt.Errorf("replaying %s: %w", symbol, err)
	}

	// Diff everything first, write only if the whole window is consistent.
	var changes []GroupChange
	for _, g := range derived {
		// Groups that closed inside the trailing context were reconciled by an
		// earlier run over their own window.
		if !g.IsOpen() && g.ClosedAt.Before(start) {
			continue
		}

		stored, err := e.groups.FindGroupByID(ctx, g.GroupID)
		if err != nil {
			return nil, fmt.Errorf("loading group %s: %w", g.GroupID, err)
		}

		switch {
		case stored == nil:
			kind := ChangeInserted
			if g.IsOpen() {
				kind = ChangeRefreshed
			}
			changes = append(changes, GroupChange{Kind: kind, Group: g})

		case !stored.IsOpen() && !g.IsOpen():
			if !g.Equal(stored) {
				return nil, fmt.Errorf("group %s: %w", g.GroupID, ports.ErrConsistency)
			}
			changes = append(changes, GroupChange{Kind: ChangeUnchanged, Group: g})

		case !stored.IsOpen() && g.IsOpen():
			// A rerun over an older sub-window sees a truncated fill stream,
			// so it may derive open a lifecycle a later run already closed.
			// That is an earlier snapshot of the same group, not a
			// contradiction; the contradiction case is a replay that cannot
			// be a prefix of the stored lifecycle (trailing context too
			// short, or corrupt data).
			if !isEarlierSnapshot(g, stored) {
				return nil, fmt.Errorf("group %s stored closed but derived open: %w", g.GroupID, ports.ErrConsistency)
			}
			changes = append(changes, GroupChange{Kind: ChangeUnchanged, Group: stored})

		default: // stored open
			kind := ChangeRefreshed
			if !g.IsOpen() {
				kind = ChangeClosed
			}
			changes = append(changes, GroupChange{Kind: kind, Group: g})
		}
	}

	for _, c := range changes {
		if c.Kind == ChangeUnchanged {
			continue
		}
		if err := e.groups.UpsertGroup(ctx, c.Group); err != nil {
			return nil, fmt.Errorf("persisting group %s: %w", c.Group.GroupID, err)
		}
	}

	e.logger.Info(ctx, "Reconciled position groups", map[string]interface{}{
		"symbol":  symbol,
		"derived": len(derived),
		"changes": len(changes),
	})
	return changes, nil
}

// isEarlierSnapshot reports whether an open derived group is a truncated view
// of a stored closed group: same opening, execution ids a prefix of the stored
// ones, quantities not exceeding what the stored lifecycle accounted for.
func isEarlierSnapshot(derived, stored *domain.PositionGroup) bool {
	if derived.GroupID != stored.GroupID ||
		derived.Symbol != stored.Symbol ||
		derived.Direction != stored.Direction ||
		!derived.OpenedAt.Equal(stored.OpenedAt) {
		return false
	}
	if len(derived.ExecutionIDs) > len(stored.ExecutionIDs) {
		return false
	}
	for i, id := range derived.ExecutionIDs {
		if stored.ExecutionIDs[i] != id {
			return false
		}
	}
	return derived.OpenedQty.LessThanOrEqual(stored.OpenedQty) &&
		derived.ClosedQty.LessThanOrEqual(stored.ClosedQty)
}
