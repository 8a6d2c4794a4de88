package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailyPnL is a fully derived per-day, per-symbol rollup of closed position
// groups. Rows are replaced wholesale on recomputation, never patched.
type DailyPnL struct {
	Date        string          // UTC calendar day ("2006-01-02"), keyed by group close time
	Symbol      string          // Trading symbol
	GroupCount  int             // Number of groups closed on this day
	RealizedPnL decimal.Decimal // Sum of realized PnL across those groups
	Fees        decimal.Decimal // Sum of fees across those groups
	Volume      decimal.Decimal // Sum of closed notional (avg exit price x closed qty)
}

// DayKey returns the journal day a timestamp belongs to, as "2006-01-02".
// dayStartHour shifts the day boundary: 0 is a plain UTC calendar day, 9 makes
// the day run 09:00..08:59 UTC the way some journals cut their sessions.
func DayKey(t time.Time, dayStartHour int) string {
	return t.UTC().Add(-time.Duration(dayStartHour) * time.Hour).Format("2006-01-02")
}
