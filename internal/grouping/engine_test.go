package grouping

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradejournal/internal/domain"
	"tradejournal/internal/ports"
)

// Mock implementations

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type fakeStore struct {
	fills   []*domain.Fill
	groups  map[string]*domain.PositionGroup
	upserts int
}

func newFakeStore() *fakeStore {
	return &fakeStore{groups: make(map[string]*domain.PositionGroup)}
}

func (s *fakeStore) UpsertFills(ctx context.Context, fills []*domain.Fill) (int, error) {
	inserted := 0
	for _, f := range fills {
		dup := false
		for _, existing := range s.fills {
			if existing.ExecutionID == f.ExecutionID {
				dup = true
				break
			}
		}
		if !dup {
			s.fills = append(s.fills, f)
			inserted++
		}
	}
	return inserted, nil
}

func (s *fakeStore) FindFills(ctx context.Context, symbol string, start, end time.Time) ([]*domain.Fill, error) {
	var out []*domain.Fill
	for _, f := range s.fills {
		if f.Symbol == symbol && !f.Time.Before(start) && f.Time.Before(end) {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Time.Equal(out[j].Time) {
			return out[i].Time.Before(out[j].Time)
		}
		return out[i].ExecutionID < out[j].ExecutionID
	})
	return out, nil
}

func (s *fakeStore) LatestFillTime(ctx context.Context, symbol string) (time.Time, error) {
	var latest time.Time
	for _, f := range s.fills {
		if f.Symbol == symbol && f.Time.After(latest) {
			latest = f.Time
		}
	}
	return latest, nil
}

func (s *fakeStore) FillSymbols(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, f := range s.fills {
		if _, ok := seen[f.Symbol]; !ok {
			seen[f.Symbol] = struct{}{}
			out = append(out, f.Symbol)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *fakeStore) UpsertGroup(ctx context.Context, g *domain.PositionGroup) error {
	cp := *g
	cp.ExecutionIDs = append([]string(nil), g.ExecutionIDs...)
	s.groups[g.GroupID] = &cp
	s.upserts++
	return nil
}

func (s *fakeStore) FindGroupByID(ctx context.Context, groupID string) (*domain.PositionGroup, error) {
	g, ok := s.groups[groupID]
	if !ok {
		return nil, nil
	}
	return g, nil
}

func (s *fakeStore) FindGroups(ctx context.Context, symbol string, start, end time.Time) ([]*domain.PositionGroup, error) {
	var out []*domain.PositionGroup
	for _, g := range s.groups {
		if g.Symbol == symbol && !g.OpenedAt.Before(start) && g.OpenedAt.Before(end) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out, nil
}

func (s *fakeStore) FindClosedGroups(ctx context.Context, start, end time.Time) ([]*domain.PositionGroup, error) {
	var out []*domain.PositionGroup
	for _, g := range s.groups {
		if !g.IsOpen() && !g.ClosedAt.Before(start) && g.ClosedAt.Before(end) {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClosedAt.Before(out[j].ClosedAt) })
	return out, nil
}

func (s *fakeStore) FindOpenGroup(ctx context.Context, symbol string) (*domain.PositionGroup, error) {
	for _, g := range s.groups {
		if g.Symbol == symbol && g.IsOpen() {
			return g, nil
		}
	}
	return nil, nil
}

var windowStart = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func storedFill(id int, side domain.OrderSide, qty, price string, offset time.Duration) *domain.Fill {
	return &domain.Fill{
		ExecutionID: fmt.Sprintf("%06d", id),
		Symbol:      "ETHUSDT",
		Side:        side,
		Quantity:    d(qty),
		Price:       d(price),
		Fee:         d("0.01"),
		FeeAsset:    "USDT",
		Time:        windowStart.Add(offset),
	}
}

func newTestEngine(t *testing.T, store *fakeStore) *Engine {
	t.Helper()
	engine, err := NewEngine(Config{
		Fills:           store,
		Groups:          store,
		Logger:          &mockLogger{},
		TrailingContext: 7 * 24 * time.Hour,
	})
	require.NoError(t, err)
	return engine
}

func TestEngine_InsertsClosedAndRefreshesOpen(t *testing.T) {
	store := newFakeStore()
	store.fills = []*domain.Fill{
		storedFill(1, domain.Buy, "1", "100", time.Hour),
		storedFill(2, domain.Sell, "1", "110", 2*time.Hour),
		storedFill(3, domain.Buy, "2", "105", 3*time.Hour),
	}
	engine := newTestEngine(t, store)

	changes, err := engine.Reconcile(context.Background(), "ETHUSDT", windowStart, windowStart.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, ChangeInserted, changes[0].Kind)
	assert.Equal(t, ChangeRefreshed, changes[1].Kind)

	stored := store.groups["ETHUSDT-000001"]
	require.NotNil(t, stored)
	assert.Equal(t, domain.StatusClosed, stored.Status)
	open := store.groups["ETHUSDT-000003"]
	require.NotNil(t, open)
	assert.Equal(t, domain.StatusOpen, open.Status)
}

func TestEngine_SecondRunIsNoOp(t *testing.T) {
	store := newFakeStore()
	store.fills = []*domain.Fill{
		storedFill(1, domain.Buy, "1", "100", time.Hour),
		storedFill(2, domain.Sell, "1", "110", 2*time.Hour),
	}
	engine := newTestEngine(t, store)
	ctx := context.Background()
	end := windowStart.Add(24 * time.Hour)

	_, err := engine.Reconcile(ctx, "ETHUSDT", windowStart, end)
	require.NoError(t, err)
	writesAfterFirst := store.upserts

	changes, err := engine.Reconcile(ctx, "ETHUSDT", windowStart, end)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, ChangeUnchanged, changes[0].Kind)
	assert.Equal(t, writesAfterFirst, store.upserts, "no-op run must not write")
}

func TestEngine_OpenGroupTransitionsToClosed(t *testing.T) {
	store := newFakeStore()
	store.fills = []*domain.Fill{
		storedFill(1, domain.Buy, "2", "100", time.Hour),
	}
	engine := newTestEngine(t, store)
	ctx := context.Background()
	end := windowStart.Add(24 * time.Hour)

	changes, err := engine.Reconcile(ctx, "ETHUSDT", windowStart, end)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, ChangeRefreshed, changes[0].Kind)

	// The closing fill arrives on a later sync of the same window.
	store.fills = append(store.fills, storedFill(2, domain.Sell, "2", "104", 5*time.Hour))
	changes, err = engine.Reconcile(ctx, "ETHUSDT", windowStart, end)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, ChangeClosed, changes[0].Kind)

	g := store.groups["ETHUSDT-000001"]
	require.NotNil(t, g)
	assert.Equal(t, domain.StatusClosed, g.Status)
	assert.True(t, g.RealizedPnL.Equal(d("7.98")), "realized PnL %s", g.RealizedPnL) // (104-100)*2 - 0.02
}

func TestEngine_TrailingContextResumesOpenPosition(t *testing.T) {
	store := newFakeStore()
	// Entry happened two days before the window; the close is inside it.
	store.fills = []*domain.Fill{
		storedFill(1, domain.Buy, "1", "100", -48*time.Hour),
		storedFill(2, domain.Sell, "1", "110", 2*time.Hour),
	}
	engine := newTestEngine(t, store)

	changes, err := engine.Reconcile(context.Background(), "ETHUSDT", windowStart, windowStart.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, ChangeInserted, changes[0].Kind)

	g := changes[0].Group
	assert.Equal(t, domain.StatusClosed, g.Status)
	assert.True(t, g.AvgEntryPrice.Equal(d("100")), "entry price must come from the pre-window fill, got %s", g.AvgEntryPrice)
	assert.True(t, g.RealizedPnL.Equal(d("9.98")), "realized PnL %s", g.RealizedPnL)
}

func TestEngine_SkipsGroupsClosedBeforeWindow(t *testing.T) {
	store := newFakeStore()
	// Whole lifecycle inside the trailing context, before the window.
	store.fills = []*domain.Fill{
		storedFill(1, domain.Buy, "1", "100", -48*time.Hour),
		storedFill(2, domain.Sell, "1", "110", -47*time.Hour),
	}
	engine := newTestEngine(t, store)

	changes, err := engine.Reconcile(context.Background(), "ETHUSDT", windowStart, windowStart.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, changes)
	assert.Empty(t, store.groups)
}

func TestEngine_ConsistencyErrorOnContradiction(t *testing.T) {
	store := newFakeStore()
	store.fills = []*domain.Fill{
		storedFill(1, domain.Buy, "1", "100", time.Hour),
		storedFill(2, domain.Sell, "1", "110", 2*time.Hour),
	}
	engine := newTestEngine(t, store)
	ctx := context.Background()
	end := windowStart.Add(24 * time.Hour)

	_, err := engine.Reconcile(ctx, "ETHUSDT", windowStart, end)
	require.NoError(t, err)

	// Tamper with the stored closed group; replay now contradicts it.
	store.groups["ETHUSDT-000001"].RealizedPnL = d("999")
	writesBefore := store.upserts

	_, err = engine.Reconcile(ctx, "ETHUSDT", windowStart, end)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrConsistency), "want ErrConsistency, got %v", err)
	assert.Equal(t, writesBefore, store.upserts, "contradiction must not be auto-corrected")
}

func TestEngine_StoredClosedButDerivedOpen(t *testing.T) {
	store := newFakeStore()
	store.fills = []*domain.Fill{
		storedFill(1, domain.Buy, "2", "100", time.Hour),
	}
	// Store claims this lifecycle already finished.
	store.groups["ETHUSDT-000001"] = &domain.PositionGroup{
		GroupID:   "ETHUSDT-000001",
		Symbol:    "ETHUSDT",
		Direction: domain.Long,
		Status:    domain.StatusClosed,
		OpenedAt:  windowStart.Add(time.Hour),
		ClosedAt:  windowStart.Add(2 * time.Hour),
	}
	engine := newTestEngine(t, store)

	_, err := engine.Reconcile(context.Background(), "ETHUSDT", windowStart, windowStart.Add(24*time.Hour))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrConsistency))
}

func TestEngine_RerunOfOlderWindowAfterCloseIsNoOp(t *testing.T) {
	store := newFakeStore()
	store.fills = []*domain.Fill{
		storedFill(1, domain.Buy, "2", "100", time.Hour),
	}
	engine := newTestEngine(t, store)
	ctx := context.Background()
	earlyEnd := windowStart.Add(6 * time.Hour)
	lateEnd := windowStart.Add(24 * time.Hour)

	_, err := engine.Reconcile(ctx, "ETHUSDT", windowStart, earlyEnd)
	require.NoError(t, err)

	// A later sync sees the closing fill and finishes the lifecycle.
	store.fills = append(store.fills, storedFill(2, domain.Sell, "2", "110", 10*time.Hour))
	_, err = engine.Reconcile(ctx, "ETHUSDT", windowStart, lateEnd)
	require.NoError(t, err)
	require.Equal(t, domain.StatusClosed, store.groups["ETHUSDT-000001"].Status)
	closedSnapshot := *store.groups["ETHUSDT-000001"]
	writesBefore := store.upserts

	// Re-running the older sub-window replays a truncated stream that derives
	// the group open again. That is an earlier snapshot of the stored
	// lifecycle, not a contradiction.
	changes, err := engine.Reconcile(ctx, "ETHUSDT", windowStart, earlyEnd)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, ChangeUnchanged, changes[0].Kind)
	assert.Equal(t, writesBefore, store.upserts, "rerun of an older window must not write")
	assert.True(t, closedSnapshot.Equal(store.groups["ETHUSDT-000001"]), "stored closed group must survive untouched")
}

func TestEngine_RerunOfOlderWindowStillCatchesContradiction(t *testing.T) {
	store := newFakeStore()
	store.fills = []*domain.Fill{
		storedFill(1, domain.Buy, "2", "100", time.Hour),
	}
	// Store claims the lifecycle closed, but its recorded opening does not
	// match the replayed fills at all.
	store.groups["ETHUSDT-000001"] = &domain.PositionGroup{
		GroupID:      "ETHUSDT-000001",
		Symbol:       "ETHUSDT",
		Direction:    domain.Short,
		Status:       domain.StatusClosed,
		OpenedAt:     windowStart.Add(time.Hour),
		ClosedAt:     windowStart.Add(2 * time.Hour),
		OpenedQty:    d("2"),
		ClosedQty:    d("2"),
		ExecutionIDs: []string{"000001", "000002"},
	}
	engine := newTestEngine(t, store)

	_, err := engine.Reconcile(context.Background(), "ETHUSDT", windowStart, windowStart.Add(24*time.Hour))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrConsistency))
}

func TestEngine_MalformedFillRejectsBatch(t *testing.T) {
	store := newFakeStore()
	bad := storedFill(1, domain.Buy, "1", "100", time.Hour)
	bad.Quantity = decimal.Zero
	store.fills = []*domain.Fill{bad}
	engine := newTestEngine(t, store)

	_, err := engine.Reconcile(context.Background(), "ETHUSDT", windowStart, windowStart.Add(24*time.Hour))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrMalformedFill))
	assert.Empty(t, store.groups, "nothing may be committed for a malformed batch")
}

func TestEngine_NoFillsNoChanges(t *testing.T) {
	store := newFakeStore()
	engine := newTestEngine(t, store)

	changes, err := engine.Reconcile(context.Background(), "ETHUSDT", windowStart, windowStart.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Nil(t, changes)
}
