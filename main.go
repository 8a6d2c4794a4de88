package main

import (
	"context"
	"fmt"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"time"

	"tradejournal/config"
	"tradejournal/internal/adapters/binanceclient"
	"tradejournal/internal/adapters/logger"
	"tradejournal/internal/adapters/sqlite"
	"tradejournal/internal/app"
	"tradejournal/internal/dailypnl"
	"tradejournal/internal/grouping"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	ctx := context.Background()
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing database repository")
		}
	}()

	// 4. Initialize Exchange Client (Binance Adapter)
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

	// 5. Initialize Grouping Engine and Daily PnL Aggregator
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

	// 6. Initialize Sync Service
	syncService, err := app.NewSyncService(cfg, appLogger, fillSource, repo, engine, aggregator)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize sync service: %v", err)
	}

	// 7. Sync the configured number of days up to now
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -cfg.SyncDays)
	report, err := syncService.Sync(ctx, cfg.Symbols, start, end)
	if err != nil {
		appLogger.Error(ctx, err, "Sync run failed")
		log.Fatalf("FATAL: Sync run failed: %v", err)
	}

	for _, res := range report.Results {
		if res.Err != nil {
			fmt.Printf("%-12s FAILED: %v\n", res.Symbol, res.Err)
			continue
		}
		fmt.Printf("%-12s fetched=%d inserted=%d changes=%d\n",
			res.Symbol, res.FillsFetched, res.FillsInserted, len(res.Changes))
	}
	for _, row := range report.DailyRows {
		fmt.Printf("%s %-12s groups=%d pnl=%s fees=%s\n",
			row.Date, row.Symbol, row.GroupCount, row.RealizedPnL.StringFixed(2), row.Fees.StringFixed(2))
	}
	appLogger.Info(ctx, "Sync run finished", map[string]interface{}{"failed": len(report.Failed())})
}
