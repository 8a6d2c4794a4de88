package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"tradejournal/config"
	"tradejournal/internal/adapters/logger"
	"tradejournal/internal/adapters/sqlite"
	"tradejournal/internal/journal"
	"tradejournal/internal/utils"
)

// export_groups writes closed position groups for a date range to CSV and
// prints journal summary statistics.
func main() {
	fromFlag := flag.String("from", "", "start date (YYYY-MM-DD, inclusive)")
	toFlag := flag.String("to", "", "end date (YYYY-MM-DD, exclusive; defaults to today)")
	outFlag := flag.String("out", "position_groups.csv", "output CSV file")
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

	groups, err := repo.FindClosedGroups(ctx, start, end)
	if err != nil {
		log.Fatalf("FATAL: Failed to load closed groups: %v", err)
	}
	if err := utils.WritePositionGroupsToCSV(groups, *outFlag); err != nil {
		log.Fatalf("FATAL: Failed to write CSV: %v", err)
	}

	s := journal.Summarize(groups, cfg.DayStartHour)
	fmt.Printf("Exported %d closed groups to %s\n", len(groups), *outFlag)
	if s.TotalGroups > 0 {
		fmt.Printf("Win rate: %s%%  PnL: %s  Fees: %s  Profit factor: %s\n",
			s.WinRate.Mul(decimal.NewFromInt(100)).StringFixed(1),
			s.TotalPnL.StringFixed(2),
			s.TotalFees.StringFixed(2),
			s.ProfitFactor.StringFixed(2))
		fmt.Printf("Avg win: %s  Avg loss: %s  Largest win: %s  Largest loss: %s\n",
			s.AverageWin.StringFixed(2), s.AverageLoss.StringFixed(2),
			s.LargestWin.StringFixed(2), s.LargestLoss.StringFixed(2))
	}
}
