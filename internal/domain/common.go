package domain

// OrderSide represents the side of an executed fill (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// IsValid reports whether the side is one of the two known values.
func (s OrderSide) IsValid() bool {
	return s == Buy || s == Sell
}

// Direction represents the direction of a position group.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Sign returns +1 for long and -1 for short.
func (d Direction) Sign() int64 {
	if d == Short {
		return -1
	}
	return 1
}

// Opposite returns the other direction.
func (d Direction) Opposite() Direction {
	if d == Long {
		return Short
	}
	return Long
}

// DirectionForSide maps the side of an opening fill to a position direction.
func DirectionForSide(s OrderSide) Direction {
	if s == Sell {
		return Short
	}
	return Long
}

// GroupStatus represents the lifecycle status of a position group.
type GroupStatus string

const (
	StatusOpen   GroupStatus = "open"
	StatusClosed GroupStatus = "closed"
)
