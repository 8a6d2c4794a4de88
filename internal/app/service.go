package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"tradejournal/config"
	"tradejournal/internal/dailypnl"
	"tradejournal/internal/domain"
	"tradejournal/internal/grouping"
	"tradejournal/internal/ports"
)

// SyncService coordinates one sync run: fetch fills from the exchange, upsert
// them into the fill store, reconcile position groups, recompute the daily
// rollup. Every step is an idempotent upsert or a full replace, so a run that
// is cancelled or fails partway can simply be retried in full.
type SyncService struct {
	cfg        *config.Config
	logger     ports.Logger
	source     ports.FillSource
	fills      ports.FillRepository
	engine     *grouping.Engine
	aggregator *dailypnl.Aggregator

	// One lock per symbol: concurrent runs for the same symbol must not race
	// on the same group ids. Different symbols never contend.
	mu          sync.Mutex
	symbolLocks map[string]*sync.Mutex
}

// SymbolResult reports the outcome of one symbol's sync.
type SymbolResult struct {
	Symbol        string
	FillsFetched  int
	FillsInserted int
	Changes       []grouping.GroupChange
	Err           error
}

// SyncReport summarizes a sync run across all symbols.
type SyncReport struct {
	Start     time.Time
	End       time.Time
	Results   []SymbolResult
	DailyRows []*domain.DailyPnL
}

// Failed returns the results for symbols whose sync failed.
func (r *SyncReport) Failed() []SymbolResult {
	var failed []SymbolResult
	for _, res := range r.Results {
		if res.Err != nil {
			failed = append(failed, res)
		}
	}
	return failed
}

// NewSyncService creates a new sync driver.
func NewSyncService(
	cfg *config.Config,
	logger ports.Logger,
	source ports.FillSource,
	fills ports.FillRepository,
	engine *grouping.Engine,
	aggregator *dailypnl.Aggregator,
) (*SyncService, error) {
	if cfg == nil || logger == nil || source == nil || fills == nil || engine == nil || aggregator == nil {
		return nil, fmt.Errorf("missing required dependencies for SyncService")
	}
	return &SyncService{
		cfg:         cfg,
		logger:      logger,
		source:      source,
		fills:       fills,
		engine:      engine,
		aggregator:  aggregator,
		symbolLocks: make(map[string]*sync.Mutex),
	}, nil
}

// Sync runs the full pipeline for [start, end). An empty symbol list means
// "discover from the exchange". Symbols run concurrently with isolated
// failure domains: one symbol failing never aborts the others, and its error
// is carried in the report. The daily rollup is recomputed once at the end,
// over whatever state the successful symbols produced.
func (s *SyncService) Sync(ctx context.Context, symbols []string, start, end time.Time) (*SyncReport, error) {
	report := &SyncReport{Start: start, End: end}

	if len(symbols) == 0 {
		discovered, err := s.source.TradedSymbols(ctx, start.Add(-s.cfg.TrailingContext), end)
		if err != nil {
			return nil, fmt.Errorf("discovering traded symbols: %w", err)
		}
		symbols = discovered
	}
	symbols = dedupe(symbols)
	if len(symbols) == 0 {
		s.logger.Info(ctx, "No symbols to sync")
		return report, nil
	}
	s.logger.Info(ctx, "Starting sync", map[string]interface{}{
		"symbols": symbols, "start": start, "end": end,
	})

	results := make([]SymbolResult, len(symbols))
	var wg sync.WaitGroup
	for i, symbol := range symbols {
		wg.Add(1)
		go func(i int, symbol string) {
			defer wg.Done()
			lock := s.lockFor(symbol)
			lock.Lock()
			defer lock.Unlock()
			results[i] = s.syncSymbol(ctx, symbol, start, end)
		}(i, symbol)
	}
	wg.Wait()
	report.Results = results

	succeeded := 0
	for _, res := range results {
		if res.Err == nil {
			succeeded++
		} else {
			s.logger.Error(ctx, res.Err, "Symbol sync failed", map[string]interface{}{"symbol": res.Symbol})
		}
	}
	if succeeded == 0 {
		return report, fmt.Errorf("sync failed for all %d symbols", len(symbols))
	}

	rows, err := s.aggregator.Recompute(ctx, start, end)
	if err != nil {
		return report, fmt.Errorf("recomputing daily PnL: %w", err)
	}
	report.DailyRows = rows

	s.logger.Info(ctx, "Sync finished", map[string]interface{}{
		"symbols":   len(symbols),
		"succeeded": succeeded,
		"failed":    len(symbols) - succeeded,
		"dailyRows": len(rows),
	})
	return report, nil
}

// syncSymbol runs the fetch -> persist -> reconcile sequence for one symbol.
// The fetch reaches back by the trailing context so a position opened before
// the window resumes with its true entry price.
func (s *SyncService) syncSymbol(ctx context.Context, symbol string, start, end time.Time) SymbolResult {
	res := SymbolResult{Symbol: symbol}
	fetchStart := start.Add(-s.cfg.TrailingContext)

	fills, err := s.source.FetchFills(ctx, symbol, fetchStart, end)
	if err != nil {
		res.Err = fmt.Errorf("fetching fills for %s: %w", symbol, err)
		return res
	}
	res.FillsFetched = len(fills)

	if err := ctx.Err(); err != nil {
		res.Err = fmt.Errorf("sync of %s interrupted: %w", symbol, err)
		return res
	}

	inserted, err := s.fills.UpsertFills(ctx, fills)
	if err != nil {
		res.Err = fmt.Errorf("persisting fills for %s: %w", symbol, err)
		return res
	}
	res.FillsInserted = inserted

	changes, err := s.engine.Reconcile(ctx, symbol, start, end)
	if err != nil {
		res.Err = fmt.Errorf("reconciling groups for %s: %w", symbol, err)
		return res
	}
	res.Changes = changes

	s.logger.Info(ctx, "Symbol synced", map[string]interface{}{
		"symbol":   symbol,
		"fetched":  res.FillsFetched,
		"inserted": res.FillsInserted,
		"changes":  len(changes),
	})
	return res
}

func (s *SyncService) lockFor(symbol string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.symbolLocks[symbol]
	if !ok {
		lock = &sync.Mutex{}
		s.symbolLocks[symbol] = lock
	}
	return lock
}

func dedupe(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
