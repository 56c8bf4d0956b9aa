package domain

type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Position is an open leveraged position as reported by the exchange.
// It is read-only from this service's point of view; the exchange owns it.
type Position struct {
	ID               string
	Symbol           string
	Side             Side
	Size             float64
	Margin           float64
	LiquidationPrice float64
	MarkPrice        float64
	Leverage         int
}

// MarginConsumptionRatio is the percentage of the distance to liquidation
// already consumed by adverse price movement, clamped to [0,100].
// A position sitting on its liquidation price has consumed 100%.
func (p Position) MarginConsumptionRatio() float64 {
	if p.LiquidationPrice <= 0 {
		return 0
	}
	dist := p.MarkPrice - p.LiquidationPrice
	if dist < 0 {
		dist = -dist
	}
	ratio := (1 - dist/p.LiquidationPrice) * 100
	if ratio < 0 {
		return 0
	}
	if ratio > 100 {
		return 100
	}
	return ratio
}
