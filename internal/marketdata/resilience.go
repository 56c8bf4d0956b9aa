package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/marginguard/marginguard/internal/domain"
	"go.uber.org/zap"
)

// MaxSnapshotAge is the hard staleness bound. Prices older than this are
// unsafe to act on in a volatile market, so the cache never serves them.
const MaxSnapshotAge = 30 * time.Second

const (
	defaultFailureThreshold = 3
	defaultRecoveryTimeout  = 60 * time.Second
)

// Health is the resilience layer's live state, consumed by the
// protection gate.
type Health struct {
	HasData             bool
	DataAge             time.Duration
	Source              domain.SourceTier
	ConsecutiveFailures int
	PrimaryHealthy      bool
}

// Service queries a prioritized provider chain, each provider wrapped in
// its own circuit breaker, with a bounded-age snapshot cache. Writers to
// the cache race benignly: snapshots are immutable values and staleness
// is decided by timestamp, not write order.
type Service struct {
	providers []domain.PriceProvider
	breakers  map[string]*CircuitBreaker
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.RWMutex
	cached   *domain.MarketSnapshot
	failures int // consecutive full-chain refresh failures
}

// NewService builds the resilience layer over providers in ascending
// priority order (primary first).
func NewService(providers []domain.PriceProvider, logger *zap.Logger) *Service {
	breakers := make(map[string]*CircuitBreaker, len(providers))
	for _, p := range providers {
		breakers[p.Name()] = NewCircuitBreaker(p.Name(), defaultFailureThreshold, defaultRecoveryTimeout)
	}
	return &Service{
		providers: providers,
		breakers:  breakers,
		logger:    logger,
		now:       time.Now,
	}
}

// GetMarketData returns a snapshot no older than MaxSnapshotAge, refreshing
// through the provider chain when the cache is stale. When every provider
// fails or is short-circuited it returns domain.ErrDataUnavailable; stale
// data is never substituted silently.
func (s *Service) GetMarketData(ctx context.Context) (*domain.MarketSnapshot, error) {
	now := s.now()

	s.mu.RLock()
	cached := s.cached
	s.mu.RUnlock()

	if cached != nil && cached.Age(now) <= MaxSnapshotAge {
		snapshotAge.Set(cached.Age(now).Seconds())
		fetchBySource.WithLabelValues(string(domain.SourceCache)).Inc()
		snap := *cached
		snap.Source = domain.SourceCache
		return &snap, nil
	}

	return s.refresh(ctx)
}

// ForceRefresh discards the cache and walks the provider chain
// unconditionally.
func (s *Service) ForceRefresh(ctx context.Context) (*domain.MarketSnapshot, error) {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
	return s.refresh(ctx)
}

func (s *Service) refresh(ctx context.Context) (*domain.MarketSnapshot, error) {
	now := s.now()

	for _, p := range s.providers {
		cb := s.breakers[p.Name()]
		if !cb.Allow(now) {
			s.logger.Debug("provider short-circuited", zap.String("provider", p.Name()))
			continue
		}

		start := s.now()
		snap, err := p.FetchTicker(ctx)
		elapsed := s.now().Sub(start)

		if err == nil && (snap == nil || !domain.SaneIndex(snap.Index)) {
			err = fmt.Errorf("provider %s: corrupt tick", p.Name())
		}
		if err != nil {
			cb.RecordFailure(s.now())
			fetchLatency.WithLabelValues(p.Name(), "error").Observe(elapsed.Seconds())
			s.logger.Warn("provider fetch failed",
				zap.String("provider", p.Name()),
				zap.Error(err))
			continue
		}

		cb.RecordSuccess()
		fetchLatency.WithLabelValues(p.Name(), "ok").Observe(elapsed.Seconds())

		result := *snap
		result.Provider = p.Name()
		result.Source = p.Tier()
		if result.FetchedAt.IsZero() {
			result.FetchedAt = s.now()
		}

		s.mu.Lock()
		s.cached = &result
		s.failures = 0
		s.mu.Unlock()

		snapshotAge.Set(0)
		fetchBySource.WithLabelValues(string(result.Source)).Inc()
		return &result, nil
	}

	s.mu.Lock()
	s.failures++
	failures := s.failures
	s.mu.Unlock()

	fetchBySource.WithLabelValues(string(domain.SourceUnavailable)).Inc()
	s.logger.Error("all market data providers exhausted", zap.Int("consecutive_failures", failures))
	return nil, domain.ErrDataUnavailable
}

// Health snapshots the layer's live state for the protection gate.
func (s *Service) Health() Health {
	s.mu.RLock()
	cached := s.cached
	failures := s.failures
	s.mu.RUnlock()

	h := Health{
		ConsecutiveFailures: failures,
		Source:              domain.SourceUnavailable,
		PrimaryHealthy:      true,
	}
	if len(s.providers) > 0 {
		h.PrimaryHealthy = s.breakers[s.providers[0].Name()].State() == StateClosed
	}
	if cached != nil {
		h.HasData = true
		h.DataAge = cached.Age(s.now())
		h.Source = cached.Source
	}
	return h
}

// BreakerStates reports each provider's breaker state, keyed by provider
// name, for the status endpoint.
func (s *Service) BreakerStates() map[string]BreakerState {
	states := make(map[string]BreakerState, len(s.breakers))
	for name, cb := range s.breakers {
		states[name] = cb.State()
	}
	return states
}

// ResetBreaker forces one provider's breaker closed. Administrative
// override for operators who know the provider recovered.
func (s *Service) ResetBreaker(provider string) bool {
	cb, ok := s.breakers[provider]
	if !ok {
		return false
	}
	cb.Reset()
	return true
}
