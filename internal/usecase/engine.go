package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/marginguard/marginguard/internal/domain"
	"go.uber.org/zap"
)

// ExecutionEngine evaluates one automation's eligible positions against
// their margin thresholds and applies the configured corrective action to
// each breaching position.
type ExecutionEngine struct {
	executor domain.ActionExecutor
	logger   *zap.Logger
}

func NewExecutionEngine(executor domain.ActionExecutor, logger *zap.Logger) *ExecutionEngine {
	return &ExecutionEngine{
		executor: executor,
		logger:   logger,
	}
}

// ExecuteRequest carries everything one protection run needs. Prices maps
// symbol to the current mark price; a position without an entry keeps the
// mark price the exchange reported.
type ExecuteRequest struct {
	AutomationID string
	AccountID    string
	Tier         domain.Tier
	Config       domain.Configuration
	Positions    []*domain.Position
	Prices       map[string]float64
}

// Execute runs one protection pass. Position failures are isolated: an
// action error lands in Errors and the remaining positions still run.
// Success is true iff no error was collected.
func (e *ExecutionEngine) Execute(ctx context.Context, req ExecuteRequest) *domain.ExecutionResult {
	result := &domain.ExecutionResult{
		AutomationID: req.AutomationID,
		RanAt:        time.Now(),
	}

	eligible := e.eligiblePositions(req.Tier, req.Config, req.Positions)
	if len(eligible) == 0 {
		result.Errors = append(result.Errors, domain.ErrNoEligiblePositions.Error())
		return result
	}

	for _, pos := range eligible {
		cfg := e.effectiveConfig(req.Tier, req.Config, pos.ID)

		mark := pos.MarkPrice
		if p, ok := req.Prices[pos.Symbol]; ok {
			mark = p
		}
		evaluated := *pos
		evaluated.MarkPrice = mark

		ratio := evaluated.MarginConsumptionRatio()
		if ratio < cfg.MarginThreshold {
			continue
		}

		e.logger.Info("position breached margin threshold",
			zap.String("automation_id", req.AutomationID),
			zap.String("position_id", pos.ID),
			zap.Float64("ratio", ratio),
			zap.Float64("threshold", cfg.MarginThreshold),
			zap.String("action", string(cfg.Action.Kind)))

		if err := e.executor.ApplyAction(ctx, pos.ID, cfg.Action); err != nil {
			result.Errors = append(result.Errors,
				fmt.Sprintf("position %s: %s failed: %v", pos.ID, cfg.Action.Kind, err))
			actionsTotal.WithLabelValues(string(cfg.Action.Kind), "error").Inc()
			continue
		}

		result.Actions = append(result.Actions, domain.ActionRecord{
			PositionID: pos.ID,
			Kind:       cfg.Action.Kind,
			Magnitude:  cfg.Action.Magnitude,
		})
		actionsTotal.WithLabelValues(string(cfg.Action.Kind), "ok").Inc()
	}

	result.Success = len(result.Errors) == 0
	return result
}

// eligiblePositions narrows the account's open positions to the set this
// automation may touch. The entry tier and per-position mode intersect
// with the selected set; aggregate and both watch everything.
func (e *ExecutionEngine) eligiblePositions(tier domain.Tier, cfg domain.Configuration, positions []*domain.Position) []*domain.Position {
	selectOnly := tier == domain.TierEntry || cfg.ProtectionMode == domain.ModePerPosition
	if !selectOnly {
		return positions
	}

	cap := len(cfg.SelectedPositions)
	if tier == domain.TierEntry && cap > domain.EntryTierPositionCap {
		cap = domain.EntryTierPositionCap
	}

	var eligible []*domain.Position
	for _, pos := range positions {
		if len(eligible) >= cap {
			break
		}
		if cfg.HasSelected(pos.ID) {
			eligible = append(eligible, pos)
		}
	}
	return eligible
}

// effectiveConfig resolves a per-position override when the tier supports
// them, falling back to the base configuration otherwise.
func (e *ExecutionEngine) effectiveConfig(tier domain.Tier, base domain.Configuration, positionID string) domain.Configuration {
	if !domain.CapabilitiesFor(tier).SupportsIndividualConfig {
		return base
	}
	if override, ok := base.IndividualConfigs[positionID]; ok {
		return override
	}
	return base
}
