// Package netpos folds a chronologically ordered stream of fills for one
// symbol into position groups: one group per continuous net-position run away
// from zero and back. The fold is pure and synchronous; all arithmetic is
// decimal so repeated weighted-average updates cannot drift and replaying the
// same fills always reproduces byte-identical groups.
package netpos

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"tradejournal/internal/domain"
	"tradejournal/internal/ports"
)

// state tracks the currently open group together with the exact notional sums
// the averages are derived from. Keeping the notionals instead of the averages
// means a fully closed group's PnL is computed without any division.
type state struct {
	group         *domain.PositionGroup
	entryNotional decimal.Decimal // sum of price*qty over entry fills
	exitNotional  decimal.Decimal // sum of price*qty over closing fills
}

// Replay folds the given fills into zero or more closed position groups plus
// at most one still-open group at the tail. Fills are defensively sorted by
// (time, execution id) before folding; the input slice is not mutated.
//
// Any malformed fill (non-positive quantity or price, negative fee, blank or
// duplicate execution id, symbol mismatch) rejects the whole batch: partial
// accumulation would corrupt every group derived after the bad fill.
func Replay(symbol string, fills []*domain.Fill) ([]*domain.PositionGroup, error) {
	ordered := make([]*domain.Fill, len(fills))
	copy(ordered, fills)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].Time.Equal(ordered[j].Time) {
			return ordered[i].Time.Before(ordered[j].Time)
		}
		return ordered[i].ExecutionID < ordered[j].ExecutionID
	})

	seen := make(map[string]struct{}, len(ordered))
	var groups []*domain.PositionGroup
	var cur *state

	for _, fill := range ordered {
		if err := fill.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %s", ports.ErrMalformedFill, err)
		}
		if fill.Symbol != symbol {
			return nil, fmt.Errorf("%w: fill %s belongs to symbol %s, replaying %s",
				ports.ErrMalformedFill, fill.ExecutionID, fill.Symbol, symbol)
		}
		if _, dup := seen[fill.ExecutionID]; dup {
			return nil, fmt.Errorf("%w: duplicate execution id %s in batch",
				ports.ErrMalformedFill, fill.ExecutionID)
		}
		seen[fill.ExecutionID] = struct{}{}

		if cur == nil {
			cur = open(symbol, fill, fill.Quantity, fill.Fee)
			continue
		}

		if domain.DirectionForSide(fill.Side) == cur.group.Direction {
			cur.extend(fill, fill.Quantity, fill.Fee)
			continue
		}

		remaining := cur.group.RemainingQty()
		switch fill.Quantity.Cmp(remaining) {
		case -1: // partial close
			cur.reduce(fill, fill.Quantity, fill.Fee)
		case 0: // exact close
			cur.reduce(fill, fill.Quantity, fill.Fee)
			groups = append(groups, cur.group)
			cur = nil
		case 1: // flip: close with the matching portion, reopen with the rest
			closingFee := fill.Fee.Mul(remaining).Div(fill.Quantity)
			openingFee := fill.Fee.Sub(closingFee)
			cur.reduce(fill, remaining, closingFee)
			groups = append(groups, cur.group)
			cur = open(symbol, fill, fill.Quantity.Sub(remaining), openingFee)
		}
	}

	if cur != nil {
		groups = append(groups, cur.group)
	}
	return groups, nil
}

// open starts a new group from the given fill. qty and fee may be smaller than
// the fill's own values when the fill is the opening remainder of a flip.
func open(symbol string, fill *domain.Fill, qty, fee decimal.Decimal) *state {
	return &state{
		group: &domain.PositionGroup{
			GroupID:       domain.GroupID(symbol, fill.ExecutionID),
			Symbol:        symbol,
			Direction:     domain.DirectionForSide(fill.Side),
			OpenedAt:      fill.Time,
			OpenedQty:     qty,
			AvgEntryPrice: fill.Price,
			Fees:          fee,
			Status:        domain.StatusOpen,
			ExecutionIDs:  []string{fill.ExecutionID},
		},
		entryNotional: fill.Price.Mul(qty),
	}
}

// extend adds a same-side fill, updating the quantity-weighted entry average.
func (s *state) extend(fill *domain.Fill, qty, fee decimal.Decimal) {
	g := s.group
	s.entryNotional = s.entryNotional.Add(fill.Price.Mul(qty))
	g.OpenedQty = g.OpenedQty.Add(qty)
	g.AvgEntryPrice = s.entryNotional.Div(g.OpenedQty)
	g.Fees = g.Fees.Add(fee)
	g.ExecutionIDs = append(g.ExecutionIDs, fill.ExecutionID)
}

// reduce applies a closing portion of an opposite-side fill. If the portion
// brings closed quantity up to opened quantity, the group transitions to
// closed at this fill's timestamp and realized PnL becomes net of fees.
func (s *state) reduce(fill *domain.Fill, qty, fee decimal.Decimal) {
	g := s.group
	s.exitNotional = s.exitNotional.Add(fill.Price.Mul(qty))
	g.ClosedQty = g.ClosedQty.Add(qty)
	g.AvgExitPrice = s.exitNotional.Div(g.ClosedQty)
	g.Fees = g.Fees.Add(fee)
	g.ExecutionIDs = append(g.ExecutionIDs, fill.ExecutionID)
	g.RealizedPnL = s.grossPnL()

	if g.ClosedQty.Equal(g.OpenedQty) {
		g.Status = domain.StatusClosed
		g.ClosedAt = fill.Time
		g.RealizedPnL = g.RealizedPnL.Sub(g.Fees)
	}
}

// grossPnL is the direction-signed price PnL on the closed portion. For a
// fully closed group closedQty equals openedQty and the expression collapses
// to sign*(exitNotional - entryNotional) with no division at all.
func (s *state) grossPnL() decimal.Decimal {
	g := s.group
	entryCost := s.entryNotional
	if !g.ClosedQty.Equal(g.OpenedQty) {
		entryCost = s.entryNotional.Mul(g.ClosedQty).Div(g.OpenedQty)
	}
	pnl := s.exitNotional.Sub(entryCost)
	if g.Direction == domain.Short {
		pnl = pnl.Neg()
	}
	return pnl
}
