// Package dailypnl derives the per-day, per-symbol realized PnL rollup from
// closed position groups. The rollup is a pure view: it is recomputed from
// scratch and stored rows for the affected days are replaced wholesale, never
// patched, so repeated recomputation cannot double-count.
package dailypnl

import (
	"context"
	"fmt"
	"sort"
	"time"

	"tradejournal/internal/domain"
	"tradejournal/internal/ports"
)

// Aggregator recomputes the daily PnL table from closed position groups.
type Aggregator struct {
	groups       ports.GroupRepository
	daily        ports.DailyPnLRepository
	logger       ports.Logger
	dayStartHour int
}

// Config holds the dependencies for the aggregator.
type Config struct {
	Groups ports.GroupRepository
	Daily  ports.DailyPnLRepository
	Logger ports.Logger
	// DayStartHour shifts the journal day boundary in hours from UTC
	// midnight. 0 means plain UTC calendar days.
	DayStartHour int
}

// NewAggregator creates a daily PnL aggregator.
func NewAggregator(cfg Config) (*Aggregator, error) {
	if cfg.Groups == nil || cfg.Daily == nil || cfg.Logger == nil {
		return nil, fmt.Errorf("missing required dependencies for daily PnL aggregator")
	}
	if cfg.DayStartHour < 0 || cfg.DayStartHour > 23 {
		return nil, fmt.Errorf("DayStartHour must be in [0,23], got %d", cfg.DayStartHour)
	}
	return &Aggregator{
		groups:       cfg.Groups,
		daily:        cfg.Daily,
		logger:       cfg.Logger,
		dayStartHour: cfg.DayStartHour,
	}, nil
}

// Recompute rebuilds the rollup for every journal day touched by [start, end)
// and replaces the stored rows for that day range in one transaction. The
// window is widened to whole journal days first so a partial-day request still
// produces complete rows for the days it touches.
func (a *Aggregator) Recompute(ctx context.Context, start, end time.Time) ([]*domain.DailyPnL, error) {
	fromDay := domain.DayKey(start, a.dayStartHour)
	toDay := domain.DayKey(end.Add(-time.Nanosecond), a.dayStartHour)
	loadStart, err := a.dayStart(fromDay)
	if err != nil {
		return nil, err
	}
	loadEnd, err := a.dayStart(toDay)
	if err != nil {
		return nil, err
	}
	loadEnd = loadEnd.Add(24 * time.Hour)

	groups, err := a.groups.FindClosedGroups(ctx, loadStart, loadEnd)
	if err != nil {
		return nil, fmt.Errorf("loading closed groups: %w", err)
	}

	type key struct {
		day    string
		symbol string
	}
	rollup := make(map[key]*domain.DailyPnL)
	for _, g := range groups {
		k := key{day: domain.DayKey(g.ClosedAt, a.dayStartHour), symbol: g.Symbol}
		row, ok := rollup[k]
		if !ok {
			row = &domain.DailyPnL{Date: k.day, Symbol: k.symbol}
			rollup[k] = row
		}
		row.GroupCount++
		row.RealizedPnL = row.RealizedPnL.Add(g.RealizedPnL)
		row.Fees = row.Fees.Add(g.Fees)
		row.Volume = row.Volume.Add(g.AvgExitPrice.Mul(g.ClosedQty))
	}

	rows := make([]*domain.DailyPnL, 0, len(rollup))
	for _, row := range rollup {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Date != rows[j].Date {
			return rows[i].Date < rows[j].Date
		}
		return rows[i].Symbol < rows[j].Symbol
	})

	if err := a.daily.ReplaceDailyPnL(ctx, fromDay, toDay, rows); err != nil {
		return nil, fmt.Errorf("replacing daily PnL rows %s..%s: %w", fromDay, toDay, err)
	}

	a.logger.Info(ctx, "Recomputed daily PnL", map[string]interface{}{
		"fromDay": fromDay,
		"toDay":   toDay,
		"rows":    len(rows),
	})
	return rows, nil
}

// dayStart returns the instant a journal day begins.
func (a *Aggregator) dayStart(day string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", day)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing day key %q: %w", day, err)
	}
	return t.Add(time.Duration(a.dayStartHour) * time.Hour), nil
}
