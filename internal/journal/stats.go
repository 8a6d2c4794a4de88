// Package journal computes summary statistics over closed position groups for
// the human-readable trading journal. Read-only consumer of groups; never
// feeds back into the accounting engine.
package journal

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"tradejournal/internal/domain"
)

// Summary holds aggregate statistics over a set of closed position groups.
type Summary struct {
	TotalGroups   int
	WinningGroups int
	LosingGroups  int
	WinRate       decimal.Decimal // winning / total, as a fraction
	TotalPnL      decimal.Decimal
	TotalFees     decimal.Decimal
	GrossProfit   decimal.Decimal // sum of positive PnL
	GrossLoss     decimal.Decimal // sum of negative PnL (negative value)
	ProfitFactor  decimal.Decimal // gross profit / |gross loss|, zero when no losses
	AverageWin    decimal.Decimal
	AverageLoss   decimal.Decimal
	LargestWin    decimal.Decimal
	LargestLoss   decimal.Decimal
	AvgDuration   time.Duration
	DailyPnL      map[string]decimal.Decimal // journal day -> PnL
}

// Summarize computes journal statistics from closed groups. Open groups are
// ignored: their PnL is not final. dayStartHour shifts the journal day
// boundary the same way the daily PnL aggregator does.
func Summarize(groups []*domain.PositionGroup, dayStartHour int) *Summary {
	s := &Summary{DailyPnL: make(map[string]decimal.Decimal)}

	closed := make([]*domain.PositionGroup, 0, len(groups))
	for _, g := range groups {
		if !g.IsOpen() {
			closed = append(closed, g)
		}
	}
	if len(closed) == 0 {
		return s
	}
	sort.Slice(closed, func(i, j int) bool {
		return closed[i].ClosedAt.Before(closed[j].ClosedAt)
	})

	var totalDuration time.Duration
	for _, g := range closed {
		s.TotalGroups++
		s.TotalPnL = s.TotalPnL.Add(g.RealizedPnL)
		s.TotalFees = s.TotalFees.Add(g.Fees)
		totalDuration += g.ClosedAt.Sub(g.OpenedAt)

		day := domain.DayKey(g.ClosedAt, dayStartHour)
		s.DailyPnL[day] = s.DailyPnL[day].Add(g.RealizedPnL)

		if g.RealizedPnL.IsPositive() {
			s.WinningGroups++
			s.GrossProfit = s.GrossProfit.Add(g.RealizedPnL)
			if g.RealizedPnL.GreaterThan(s.LargestWin) {
				s.LargestWin = g.RealizedPnL
			}
		} else {
			s.LosingGroups++
			s.GrossLoss = s.GrossLoss.Add(g.RealizedPnL)
			if g.RealizedPnL.LessThan(s.LargestLoss) {
				s.LargestLoss = g.RealizedPnL
			}
		}
	}

	total := decimal.NewFromInt(int64(s.TotalGroups))
	s.WinRate = decimal.NewFromInt(int64(s.WinningGroups)).Div(total)
	if s.WinningGroups > 0 {
		s.AverageWin = s.GrossProfit.Div(decimal.NewFromInt(int64(s.WinningGroups)))
	}
	if s.LosingGroups > 0 {
		s.AverageLoss = s.GrossLoss.Div(decimal.NewFromInt(int64(s.LosingGroups)))
	}
	if s.GrossLoss.IsNegative() {
		s.ProfitFactor = s.GrossProfit.Div(s.GrossLoss.Abs())
	}
	s.AvgDuration = totalDuration / time.Duration(s.TotalGroups)
	return s
}
