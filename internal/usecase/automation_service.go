package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/marginguard/marginguard/internal/domain"
	"go.uber.org/zap"
)

// ConfigurationError carries the validation reasons a write was rejected
// with. It never reaches the execution path.
type ConfigurationError struct {
	Reasons []string
}

func (e *ConfigurationError) Error() string {
	return "configuration invalid: " + strings.Join(e.Reasons, "; ")
}

// AutomationService is the validated write path for protection
// automations. Every mutation re-validates against the owning tier and
// re-arms or tears down the automation's schedule.
type AutomationService struct {
	repo      domain.AutomationRepository
	plan      *PlanService
	scheduler *Scheduler
	logger    *zap.Logger
}

func NewAutomationService(repo domain.AutomationRepository, plan *PlanService, scheduler *Scheduler, logger *zap.Logger) *AutomationService {
	return &AutomationService{
		repo:      repo,
		plan:      plan,
		scheduler: scheduler,
		logger:    logger,
	}
}

// Create validates and persists a new automation, enforcing the one
// active guard per (user, account) invariant, then arms its schedule.
func (s *AutomationService) Create(ctx context.Context, userID, accountID string, tier domain.Tier, cfg domain.Configuration) (*domain.Automation, error) {
	if res := s.plan.Validate(tier, cfg); !res.Valid {
		return nil, &ConfigurationError{Reasons: res.Errors}
	}

	existing, err := s.repo.GetActiveByAccount(ctx, userID, accountID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("check existing automation: %w", err)
	}
	if existing != nil {
		return nil, domain.ErrDuplicateAutomation
	}

	now := time.Now()
	a := &domain.Automation{
		ID:        fmt.Sprintf("%d", now.UnixNano()),
		UserID:    userID,
		AccountID: accountID,
		Tier:      tier,
		IsActive:  true,
		Config:    cfg,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.SaveAutomation(ctx, a); err != nil {
		return nil, fmt.Errorf("save automation: %w", err)
	}

	s.logger.Info("automation created",
		zap.String("automation_id", a.ID),
		zap.String("user_id", userID),
		zap.String("tier", tier.String()))

	if a.Config.Enabled {
		s.scheduler.Start(context.WithoutCancel(ctx), a)
	}
	return a, nil
}

// UpdateConfig validates and persists a configuration change, then
// re-arms the schedule so the new rules take effect on the next tick.
func (s *AutomationService) UpdateConfig(ctx context.Context, id string, cfg domain.Configuration) (*domain.Automation, error) {
	a, err := s.repo.GetAutomation(ctx, id)
	if err != nil {
		return nil, err
	}

	if res := s.plan.Validate(a.Tier, cfg); !res.Valid {
		return nil, &ConfigurationError{Reasons: res.Errors}
	}

	a.Config = cfg
	a.UpdatedAt = time.Now()
	if err := s.repo.UpdateAutomation(ctx, a); err != nil {
		return nil, fmt.Errorf("update automation: %w", err)
	}

	if a.IsActive && a.Config.Enabled {
		s.scheduler.Start(context.WithoutCancel(ctx), a)
	} else {
		s.scheduler.Stop(a.ID)
	}
	return a, nil
}

// SetActive toggles an automation on or off and keeps the schedule in
// step.
func (s *AutomationService) SetActive(ctx context.Context, id string, active bool) (*domain.Automation, error) {
	a, err := s.repo.GetAutomation(ctx, id)
	if err != nil {
		return nil, err
	}

	a.IsActive = active
	a.UpdatedAt = time.Now()
	if err := s.repo.UpdateAutomation(ctx, a); err != nil {
		return nil, fmt.Errorf("update automation: %w", err)
	}

	if active && a.Config.Enabled {
		s.scheduler.Start(context.WithoutCancel(ctx), a)
	} else {
		s.scheduler.Stop(a.ID)
	}
	s.logger.Info("automation toggled",
		zap.String("automation_id", a.ID), zap.Bool("active", active))
	return a, nil
}

// Delete removes an automation and tears down its schedule.
func (s *AutomationService) Delete(ctx context.Context, id string) error {
	if err := s.repo.DeleteAutomation(ctx, id); err != nil {
		return err
	}
	s.scheduler.Stop(id)
	s.logger.Info("automation deleted", zap.String("automation_id", id))
	return nil
}

// Get returns one automation by id.
func (s *AutomationService) Get(ctx context.Context, id string) (*domain.Automation, error) {
	return s.repo.GetAutomation(ctx, id)
}

// ListByUser returns all automations owned by a user.
func (s *AutomationService) ListByUser(ctx context.Context, userID string) ([]*domain.Automation, error) {
	return s.repo.ListAutomationsByUser(ctx, userID)
}
