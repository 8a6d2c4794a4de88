package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// PositionGroup represents one continuous net-position lifecycle on a single
// symbol: opened when net position moves away from zero, closed the instant it
// returns to exactly zero. Mutable until closed; a closed group is final.
type PositionGroup struct {
	GroupID       string          // Deterministic id derived from symbol + opening execution id
	Symbol        string          // Trading symbol
	Direction     Direction       // LONG or SHORT, fixed by the opening fill
	OpenedAt      time.Time       // Timestamp of the opening fill
	ClosedAt      time.Time       // Timestamp of the closing fill (zero value while open)
	OpenedQty     decimal.Decimal // Total quantity that entered the position
	ClosedQty     decimal.Decimal // Total quantity closed out so far
	AvgEntryPrice decimal.Decimal // Quantity-weighted average entry price
	AvgExitPrice  decimal.Decimal // Quantity-weighted average exit price (zero until first reduction)
	Fees          decimal.Decimal // Total fees across all constituent fills (flip fills pro-rated)
	RealizedPnL   decimal.Decimal // Price PnL on the closed portion; net of fees once closed
	Status        GroupStatus     // open or closed
	ExecutionIDs  []string        // Constituent execution ids, in fill order
}

// GroupID derives the stable identifier for a position group from its symbol
// and the execution id of its opening fill. Re-derivation over the same fill
// stream always yields the same id, which is what makes reconciliation
// idempotent.
func GroupID(symbol, openingExecutionID string) string {
	return fmt.Sprintf("%s-%s", symbol, openingExecutionID)
}

// IsOpen checks if the group status is open.
func (g *PositionGroup) IsOpen() bool {
	return g.Status == StatusOpen
}

// RemainingQty returns the quantity still open (opened minus closed).
func (g *PositionGroup) RemainingQty() decimal.Decimal {
	return g.OpenedQty.Sub(g.ClosedQty)
}

// Duration returns how long the position was (or has been) held. For open
// groups the caller supplies "now" semantics by passing a reference time.
func (g *PositionGroup) Duration(now time.Time) time.Duration {
	if g.IsOpen() {
		return now.Sub(g.OpenedAt)
	}
	return g.ClosedAt.Sub(g.OpenedAt)
}

// Equal reports whether two groups carry identical derived fields. Used by the
// reconciliation engine to detect replay contradicting a stored closed group.
func (g *PositionGroup) Equal(other *PositionGroup) bool {
	if other == nil {
		return false
	}
	if g.GroupID != other.GroupID ||
		g.Symbol != other.Symbol ||
		g.Direction != other.Direction ||
		g.Status != other.Status ||
		!g.OpenedAt.Equal(other.OpenedAt) ||
		!g.ClosedAt.Equal(other.ClosedAt) {
		return false
	}
	if !g.OpenedQty.Equal(other.OpenedQty) ||
		!g.ClosedQty.Equal(other.ClosedQty) ||
		!g.AvgEntryPrice.Equal(other.AvgEntryPrice) ||
		!g.AvgExitPrice.Equal(other.AvgExitPrice) ||
		!g.Fees.Equal(other.Fees) ||
		!g.RealizedPnL.Equal(other.RealizedPnL) {
		return false
	}
	if len(g.ExecutionIDs) != len(other.ExecutionIDs) {
		return false
	}
	for i := range g.ExecutionIDs {
		if g.ExecutionIDs[i] != other.ExecutionIDs[i] {
			return false
		}
	}
	return true
}
