package journal

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradejournal/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func group(pnl, fees string, openedAt time.Time, held time.Duration, status domain.GroupStatus) *domain.PositionGroup {
	g := &domain.PositionGroup{
		Symbol:      "ETHUSDT",
		Direction:   domain.Long,
		Status:      status,
		OpenedAt:    openedAt,
		RealizedPnL: d(pnl),
		Fees:        d(fees),
	}
	if status == domain.StatusClosed {
		g.ClosedAt = openedAt.Add(held)
	}
	return g
}

func TestSummarize(t *testing.T) {
	day1 := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2025, 3, 11, 10, 0, 0, 0, time.UTC)
	groups := []*domain.PositionGroup{
		group("10", "0.2", day1, time.Hour, domain.StatusClosed),
		group("-4", "0.1", day1, 2*time.Hour, domain.StatusClosed),
		group("6", "0.3", day2, 3*time.Hour, domain.StatusClosed),
		group("-2", "0.1", day2, 2*time.Hour, domain.StatusClosed),
		group("99", "0.5", day2, 0, domain.StatusOpen), // ignored: not final
	}

	s := Summarize(groups, 0)
	assert.Equal(t, 4, s.TotalGroups)
	assert.Equal(t, 2, s.WinningGroups)
	assert.Equal(t, 2, s.LosingGroups)
	assert.True(t, s.WinRate.Equal(d("0.5")), "win rate %s", s.WinRate)
	assert.True(t, s.TotalPnL.Equal(d("10")))
	assert.True(t, s.TotalFees.Equal(d("0.7")))
	assert.True(t, s.GrossProfit.Equal(d("16")))
	assert.True(t, s.GrossLoss.Equal(d("-6")))
	assert.True(t, s.ProfitFactor.Equal(d("16").Div(d("6"))), "profit factor %s", s.ProfitFactor)
	assert.True(t, s.AverageWin.Equal(d("8")))
	assert.True(t, s.AverageLoss.Equal(d("-3")))
	assert.True(t, s.LargestWin.Equal(d("10")))
	assert.True(t, s.LargestLoss.Equal(d("-4")))
	assert.Equal(t, 2*time.Hour, s.AvgDuration)

	require.Len(t, s.DailyPnL, 2)
	assert.True(t, s.DailyPnL["2025-03-10"].Equal(d("6")))
	assert.True(t, s.DailyPnL["2025-03-11"].Equal(d("4")))
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil, 0)
	assert.Equal(t, 0, s.TotalGroups)
	assert.True(t, s.WinRate.IsZero())
	assert.True(t, s.ProfitFactor.IsZero())
	assert.Empty(t, s.DailyPnL)
}

func TestSummarize_OnlyWins(t *testing.T) {
	day := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	s := Summarize([]*domain.PositionGroup{
		group("5", "0.1", day, time.Hour, domain.StatusClosed),
	}, 0)
	assert.True(t, s.WinRate.Equal(d("1")))
	assert.True(t, s.ProfitFactor.IsZero(), "no losses means no profit factor")
	assert.True(t, s.AverageLoss.IsZero())
}
