package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"tradejournal/config"
	"tradejournal/internal/adapters/binanceclient"
	"tradejournal/internal/adapters/logger"
	"tradejournal/internal/adapters/sqlite"
	"tradejournal/internal/app"
	"tradejournal/internal/dailypnl"
	"tradejournal/internal/grouping"
)

// backfill re-syncs an explicit historical date range. Because every write in
// the pipeline is an idempotent upsert or a full replace, the range may freely
// overlap previously synced windows.
func main() {
	fromFlag := flag.String("from", "", "start date (YYYY-MM-DD, inclusive)")
	toFlag := flag.String("to", "", "end date (YYYY-MM-DD, exclusive; defaults to today)")
	symbolsFlag := flag.String("symbols", "", "comma-separated symbols (default: discover from exchange)")
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
	if !start.Before(end) {
		log.Fatal("FATAL: -from must be before -to")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}
	var symbols []string
	if *symbolsFlag != "" {
		for _, s := range strings.Split(*symbolsFlag, ",") {
			symbols = append(symbols, strings.ToUpper(strings.TrimSpace(s)))
		}
	} else {
		symbols = cfg.Symbols
	}

	appLogger := logger.NewStdLogger(cfg.LogLevel)
	ctx := context.Background()

	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer repo.Close()

	fillSource, err := binanceclient.New(binanceclient.Config{
		APIKey:     cfg.APIKey,
		SecretKey:  cfg.SecretKey,
		UseTestnet: cfg.IsTestnet,
		Logger:     appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	if err := fillSource.SetServerTime(ctx); err != nil {
		log.Fatalf("FATAL: Failed to synchronize server time: %v", err)
	}

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

	syncService, err := app.NewSyncService(cfg, appLogger, fillSource, repo, engine, aggregator)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize sync service: %v", err)
	}

	fmt.Printf("Backfilling %s .. %s\n", start.Format("2006-01-02"), end.Format("2006-01-02"))
	report, err := syncService.Sync(ctx, symbols, start, end)
	if err != nil {
		log.Fatalf("FATAL: Backfill failed: %v", err)
	}
	for _, res := range report.Results {
		if res.Err != nil {
			fmt.Printf("%-12s FAILED: %v\n", res.Symbol, res.Err)
			continue
		}
		fmt.Printf("%-12s fetched=%d inserted=%d changes=%d\n",
			res.Symbol, res.FillsFetched, res.FillsInserted, len(res.Changes))
	}
	fmt.Printf("Done: %d daily rows recomputed, %d symbols failed\n", len(report.DailyRows), len(report.Failed()))
}
