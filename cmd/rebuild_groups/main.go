package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"tradejournal/config"
	"tradejournal/internal/adapters/logger"
	"tradejournal/internal/adapters/sqlite"
	"tradejournal/internal/dailypnl"
	"tradejournal/internal/grouping"
)

// rebuild_groups re-derives position groups and the daily rollup purely from
// stored fills, without touching the exchange. Useful after restoring a
// database or widening the trailing context.
func main() {
	fromFlag := flag.String("from", "", "start date (YYYY-MM-DD, inclusive)")
	toFlag := flag.String("to", "", "end date (YYYY-MM-DD, exclusive; defaults to today)")
	flag.Parse()

	if *fromFlag == "" {
		log.Fatal("FATAL: -from is required")
	}
	start, err := time.Parse("2006-01-02", *fromFlag)
	if err != nil {
		log.Fatalf("FATAL: invalid -from date: %v", err)
	}
	end := time.Now().UTC()
	if *toFlag != "" {
		if end, err = time.Parse("2006-01-02", *toFlag); err != nil {
			log.Fatalf("FATAL: invalid -to date: %v", err)
		}
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	ctx := context.Background()

	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer repo.Close()

	engine, err := grouping.NewEngine(grouping.Config{
		Fills:           repo,
		Groups:          repo,
		Logger:          appLogger,
		TrailingContext: cfg.TrailingContext,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize grouping engine: %v", err)
	}
	aggregator, err := dailypnl.NewAggregator(dailypnl.Config{
		Groups:       repo,
		Daily:        repo,
		Logger:       appLogger,
		DayStartHour: cfg.DayStartHour,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize daily PnL aggregator: %v", err)
	}

	symbols := cfg.Symbols
	if len(symbols) == 0 {
		if symbols, err = repo.FillSymbols(ctx); err != nil {
			log.Fatalf("FATAL: Failed to list stored symbols: %v", err)
		}
	}

	failed := 0
	for _, symbol := range symbols {
		changes, err := engine.Reconcile(ctx, symbol, start, end)
		if err != nil {
			failed++
			fmt.Printf("%-12s FAILED: %v\n", symbol, err)
			continue
		}
		fmt.Printf("%-12s changes=%d\n", symbol, len(changes))
	}
	if failed == len(symbols) && len(symbols) > 0 {
		log.Fatal("FATAL: rebuild failed for all symbols")
	}

	rows, err := aggregator.Recompute(ctx, start, end)
	if err != nil {
		log.Fatalf("FATAL: Failed to recompute daily PnL: %v", err)
	}
	fmt.Printf("Rebuilt %d symbols (%d failed), %d daily rows\n", len(symbols)-failed, failed, len(rows))
}
