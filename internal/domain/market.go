package domain

import "time"

// SourceTier tells how far down the provider chain a snapshot came from.
type SourceTier string

const (
	SourcePrimary     SourceTier = "primary"
	SourceFallback    SourceTier = "fallback"
	SourceEmergency   SourceTier = "emergency"
	SourceCache       SourceTier = "cache"
	SourceUnavailable SourceTier = "unavailable"
)

// MarketSnapshot is one successful market-data fetch. Immutable once
// produced; a fresher fetch replaces it wholesale.
type MarketSnapshot struct {
	Index     float64
	Change24h float64
	FetchedAt time.Time
	Provider  string
	Source    SourceTier
}

// Age returns how old the snapshot is relative to now.
func (s MarketSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.FetchedAt)
}

// MaxSaneIndex rejects obviously corrupt ticks. No listed asset trades
// anywhere near this price.
const MaxSaneIndex = 1e9

// SaneIndex reports whether the index price is inside the accepted bound.
func SaneIndex(index float64) bool {
	return index > 0 && index < MaxSaneIndex
}
