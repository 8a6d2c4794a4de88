package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Fill represents one matched execution on the exchange. Fills are immutable
// facts: created once when fetched, never mutated, never deleted.
type Fill struct {
	ExecutionID string          // Exchange-assigned execution id, globally unique per account
	Symbol      string          // Trading symbol (e.g., "ETHUSDT")
	Side        OrderSide       // BUY or SELL
	Quantity    decimal.Decimal // Executed quantity, always positive
	Price       decimal.Decimal // Execution price, always positive
	Fee         decimal.Decimal // Commission charged for this fill, non-negative
	FeeAsset    string          // Asset the fee was charged in (e.g., "USDT")
	Time        time.Time       // Execution timestamp (UTC)
	ReportedPnL decimal.Decimal // Realized PnL as reported by the exchange; informational only
}

// Validate checks the basic invariants every fill must satisfy before it may
// enter the accumulator. PnL math downstream assumes these hold.
func (f *Fill) Validate() error {
	if f.ExecutionID == "" {
		return fmt.Errorf("fill has empty execution id (symbol %s)", f.Symbol)
	}
	if f.Symbol == "" {
		return fmt.Errorf("fill %s has empty symbol", f.ExecutionID)
	}
	if !f.Side.IsValid() {
		return fmt.Errorf("fill %s has invalid side %q", f.ExecutionID, f.Side)
	}
	if !f.Quantity.IsPositive() {
		return fmt.Errorf("fill %s has non-positive quantity %s", f.ExecutionID, f.Quantity)
	}
	if !f.Price.IsPositive() {
		return fmt.Errorf("fill %s has non-positive price %s", f.ExecutionID, f.Price)
	}
	if f.Fee.IsNegative() {
		return fmt.Errorf("fill %s has negative fee %s", f.ExecutionID, f.Fee)
	}
	if f.Time.IsZero() {
		return fmt.Errorf("fill %s has zero timestamp", f.ExecutionID)
	}
	return nil
}

// SignedQuantity returns the quantity signed by side: positive for BUY,
// negative for SELL.
func (f *Fill) SignedQuantity() decimal.Decimal {
	if f.Side == Sell {
		return f.Quantity.Neg()
	}
	return f.Quantity
}
