package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/marginguard/marginguard/internal/domain"
	"go.uber.org/zap"
)

// MarketDataSource is the slice of the resilience layer the scheduler
// needs: a fresh snapshot or an explicit refusal.
type MarketDataSource interface {
	GetMarketData(ctx context.Context) (*domain.MarketSnapshot, error)
}

// DefaultCadences maps each tier to its tick interval. Higher tiers are
// re-evaluated faster, mirroring the capability table's permissiveness.
func DefaultCadences() map[domain.Tier]time.Duration {
	return map[domain.Tier]time.Duration{
		domain.TierEntry:        60 * time.Second,
		domain.TierStandard:     30 * time.Second,
		domain.TierElevated:     15 * time.Second,
		domain.TierProfessional: 5 * time.Second,
		domain.TierUnrestricted: 2 * time.Second,
	}
}

const (
	defaultTickTimeout    = 20 * time.Second
	maxConcurrentTicks    = 5
	notifyDispatchTimeout = 10 * time.Second
)

type scheduleHandle struct {
	accountID string
	cancel    context.CancelFunc
}

// Scheduler owns one recurring job per automation. Jobs are independent
// and may tick concurrently, bounded by a fixed worker ceiling so the
// upstream exchange is never hammered. All schedule state lives behind
// Start/Stop/Reschedule; there are no package-level registries.
type Scheduler struct {
	repo      domain.AutomationRepository
	execLog   domain.ExecutionLogRepository
	positions domain.PositionSource
	market    MarketDataSource
	gate      *ProtectionGate
	engine    *ExecutionEngine
	notifier  *Notifier
	logger    *zap.Logger

	cadences    map[domain.Tier]time.Duration
	tickTimeout time.Duration
	sem         chan struct{}

	mu   sync.Mutex
	jobs map[string]*scheduleHandle
}

func NewScheduler(
	repo domain.AutomationRepository,
	execLog domain.ExecutionLogRepository,
	positions domain.PositionSource,
	market MarketDataSource,
	gate *ProtectionGate,
	engine *ExecutionEngine,
	notifier *Notifier,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		repo:        repo,
		execLog:     execLog,
		positions:   positions,
		market:      market,
		gate:        gate,
		engine:      engine,
		notifier:    notifier,
		logger:      logger,
		cadences:    DefaultCadences(),
		tickTimeout: defaultTickTimeout,
		sem:         make(chan struct{}, maxConcurrentTicks),
		jobs:        make(map[string]*scheduleHandle),
	}
}

// SetCadence overrides the tick interval for one tier. Intended for
// configuration wiring at startup, before Start is called.
func (s *Scheduler) SetCadence(tier domain.Tier, interval time.Duration) {
	if interval > 0 {
		s.cadences[tier] = interval
	}
}

// SetTickTimeout overrides the per-tick deadline. Intended for
// configuration wiring at startup, before Start is called.
func (s *Scheduler) SetTickTimeout(d time.Duration) {
	if d > 0 {
		s.tickTimeout = d
	}
}

// Start arms (or re-arms) the recurring schedule for an automation. An
// existing schedule for the same id is torn down first.
func (s *Scheduler) Start(ctx context.Context, a *domain.Automation) {
	s.Stop(a.ID)

	jobCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.jobs[a.ID] = &scheduleHandle{accountID: a.AccountID, cancel: cancel}
	s.mu.Unlock()
	activeSchedules.Set(float64(s.ActiveCount()))

	interval := s.cadenceFor(a.Tier)
	s.logger.Info("schedule armed",
		zap.String("automation_id", a.ID),
		zap.String("tier", a.Tier.String()),
		zap.Duration("interval", interval))

	go s.run(jobCtx, a.ID, interval)
}

// Stop tears down the schedule for one automation, if present.
func (s *Scheduler) Stop(automationID string) {
	s.mu.Lock()
	handle, ok := s.jobs[automationID]
	if ok {
		delete(s.jobs, automationID)
	}
	s.mu.Unlock()
	if ok {
		handle.cancel()
		activeSchedules.Set(float64(s.ActiveCount()))
		s.logger.Info("schedule torn down", zap.String("automation_id", automationID))
	}
}

// StopAll tears down every schedule. Used on shutdown.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	handles := make([]*scheduleHandle, 0, len(s.jobs))
	for _, h := range s.jobs {
		handles = append(handles, h)
	}
	s.jobs = make(map[string]*scheduleHandle)
	s.mu.Unlock()

	for _, h := range handles {
		h.cancel()
	}
	activeSchedules.Set(0)
}

// ActiveCount returns the number of live schedules.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// StartAll arms schedules for every active automation in the store.
// Called once at boot.
func (s *Scheduler) StartAll(ctx context.Context) error {
	automations, err := s.repo.ListAutomations(ctx)
	if err != nil {
		return err
	}
	for _, a := range automations {
		if a.IsActive && a.Config.Enabled {
			s.Start(ctx, a)
		}
	}
	return nil
}

func (s *Scheduler) cadenceFor(tier domain.Tier) time.Duration {
	if interval, ok := s.cadences[tier]; ok {
		return interval
	}
	return s.cadences[domain.TierEntry]
}

func (s *Scheduler) run(ctx context.Context, automationID string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// First evaluation happens one interval in, not at arm time, so a
	// burst of config edits does not trigger a burst of executions.
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.tick(ctx, automationID) {
				s.Stop(automationID)
				return
			}
		}
	}
}

// tick runs one evaluation cycle. It returns false when the schedule
// should be torn down (automation removed, deactivated, or rebound).
func (s *Scheduler) tick(parent context.Context, automationID string) bool {
	select {
	case s.sem <- struct{}{}:
	case <-parent.Done():
		return false
	}
	defer func() { <-s.sem }()

	start := time.Now()
	defer func() { tickDuration.Observe(time.Since(start).Seconds()) }()

	ctx, cancel := context.WithTimeout(parent, s.tickTimeout)
	defer cancel()

	a, err := s.repo.GetAutomation(ctx, automationID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.logger.Info("automation gone, cancelling schedule", zap.String("automation_id", automationID))
			return false
		}
		s.recordFailure(automationID, "load automation: "+err.Error())
		return true
	}
	if !a.IsActive || !a.Config.Enabled {
		s.logger.Info("automation inactive, cancelling schedule", zap.String("automation_id", automationID))
		return false
	}
	s.mu.Lock()
	handle, armed := s.jobs[automationID]
	s.mu.Unlock()
	if !armed || handle.accountID != a.AccountID {
		s.logger.Info("automation rebound to another account, cancelling schedule",
			zap.String("automation_id", automationID))
		return false
	}

	positions, err := s.positions.ListOpenPositions(ctx, a.AccountID)
	if err != nil {
		s.recordTickError(ctx, automationID, "list positions: "+err.Error())
		return true
	}

	if _, err := s.market.GetMarketData(ctx); err != nil {
		// The gate sees the same state and blocks; fall through so the
		// skip is recorded with the gate's reason.
		s.logger.Warn("market data unavailable for tick",
			zap.String("automation_id", automationID), zap.Error(err))
	}

	decision := s.gate.CanExecute(ctx, a.UserID)
	if !decision.Allowed {
		ticksTotal.WithLabelValues("blocked").Inc()
		s.saveLog(automationID, &domain.ExecutionLogEntry{
			AutomationID: automationID,
			Reason:       "blocked: " + decision.Reason,
			RanAt:        time.Now(),
		})
		return true
	}

	result := s.engine.Execute(ctx, ExecuteRequest{
		AutomationID: a.ID,
		AccountID:    a.AccountID,
		Tier:         a.Tier,
		Config:       a.Config,
		Positions:    positions,
	})

	if ctx.Err() != nil {
		s.recordTickError(ctx, automationID, "tick timed out")
		ticksTotal.WithLabelValues("timeout").Inc()
		return true
	}

	outcome := "executed"
	if !result.Success {
		outcome = "failed"
	}
	ticksTotal.WithLabelValues(outcome).Inc()

	s.saveLog(automationID, &domain.ExecutionLogEntry{
		AutomationID: automationID,
		Success:      result.Success,
		ActionCount:  len(result.Actions),
		Errors:       result.Errors,
		Reason:       decision.Reason,
		RanAt:        result.RanAt,
	})

	// Dispatch must not block the tick; transports own their retries.
	if len(result.Actions) > 0 {
		go func(tier domain.Tier, cfg domain.Configuration, res *domain.ExecutionResult) {
			nctx, ncancel := context.WithTimeout(context.Background(), notifyDispatchTimeout)
			defer ncancel()
			res.Notifications = s.notifier.Dispatch(nctx, tier, cfg, res)
		}(a.Tier, a.Config, result)
	}

	return true
}

func (s *Scheduler) recordTickError(ctx context.Context, automationID, reason string) {
	if ctx.Err() == context.DeadlineExceeded {
		ticksTotal.WithLabelValues("timeout").Inc()
	} else {
		ticksTotal.WithLabelValues("failed").Inc()
	}
	s.recordFailure(automationID, reason)
}

func (s *Scheduler) recordFailure(automationID, reason string) {
	s.logger.Warn("tick failed",
		zap.String("automation_id", automationID),
		zap.String("reason", reason))
	s.saveLog(automationID, &domain.ExecutionLogEntry{
		AutomationID: automationID,
		Errors:       []string{reason},
		Reason:       "failed",
		RanAt:        time.Now(),
	})
}

func (s *Scheduler) saveLog(automationID string, entry *domain.ExecutionLogEntry) {
	// Log persistence is best-effort; a failed write never fails the tick.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.execLog.SaveExecutionLog(ctx, entry); err != nil {
		s.logger.Warn("execution log write failed",
			zap.String("automation_id", automationID), zap.Error(err))
	}
}
