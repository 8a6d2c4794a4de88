package utils

import (
	"encoding/csv"
	"os"
	"strconv"
	"strings"
	"time"

	"tradejournal/internal/domain"
)

func WritePositionGroupsToCSV(groups []*domain.PositionGroup, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	writer.Write([]string{"group_id", "symbol", "direction", "status", "opened_at", "closed_at",
		"opened_qty", "closed_qty", "avg_entry_price", "avg_exit_price", "fees", "realized_pnl",
		"trade_count", "execution_ids"})

	for _, g := range groups {
		closedAt := ""
		if !g.ClosedAt.IsZero() {
			closedAt = g.ClosedAt.Format(time.RFC3339)
		}
		writer.Write([]string{
			g.GroupID,
			g.Symbol,
			string(g.Direction),
			string(g.Status),
			g.OpenedAt.Format(time.RFC3339),
			closedAt,
			g.OpenedQty.String(),
			g.ClosedQty.String(),
			g.AvgEntryPrice.String(),
			g.AvgExitPrice.String(),
			g.Fees.String(),
			g.RealizedPnL.String(),
			strconv.Itoa(len(g.ExecutionIDs)),
			strings.Join(g.ExecutionIDs, " "),
		})
	}
	return writer.Error()
}
