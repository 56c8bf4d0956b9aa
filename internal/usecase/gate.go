package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/marginguard/marginguard/internal/domain"
	"github.com/marginguard/marginguard/internal/marketdata"
	"go.uber.org/zap"
)

// RiskLevel grades how much data staleness a user can tolerate.
type RiskLevel string

const (
	RiskLow  RiskLevel = "low"
	RiskHigh RiskLevel = "high"
)

// MarketHealthSource exposes the resilience layer's live state.
type MarketHealthSource interface {
	Health() marketdata.Health
}

// RiskAssessor classifies a user for gate purposes. Implementations that
// cannot decide must return an error; the gate then fails closed.
type RiskAssessor interface {
	UserRiskLevel(ctx context.Context, userID string) (RiskLevel, error)
}

// Staleness bounds for gate decisions. The 30s bound mirrors the
// resilience layer's hard cache limit; high-risk users get half of it.
const (
	maxDataAge         = 30 * time.Second
	maxDataAgeHighRisk = 15 * time.Second
)

// Failure bands for retry back-off.
const (
	failureBlockThreshold = 5
	failureBandMedium     = 10
	failureBandSevere     = 20
)

// ProtectionGate vetoes execution attempts when market-data confidence is
// too low to act safely. Rules are evaluated in order, first match wins;
// any internal error while building context blocks the attempt.
type ProtectionGate struct {
	market MarketHealthSource
	risk   RiskAssessor
	logger *zap.Logger
}

func NewProtectionGate(market MarketHealthSource, risk RiskAssessor, logger *zap.Logger) *ProtectionGate {
	return &ProtectionGate{
		market: market,
		risk:   risk,
		logger: logger,
	}
}

// CanExecute decides allow/warn/block for one execution attempt.
func (g *ProtectionGate) CanExecute(ctx context.Context, userID string) domain.ProtectionDecision {
	health := g.market.Health()

	riskLevel, err := g.risk.UserRiskLevel(ctx, userID)
	if err != nil {
		g.logger.Error("risk assessment failed, blocking",
			zap.String("user_id", userID), zap.Error(err))
		return domain.ProtectionDecision{
			Severity: domain.SeverityCritical,
			Reason:   "risk context unavailable",
		}
	}

	decision := g.evaluate(health, riskLevel)
	gateDecisions.WithLabelValues(outcomeLabel(decision)).Inc()
	if !decision.Allowed {
		g.logger.Warn("execution blocked",
			zap.String("user_id", userID),
			zap.String("reason", decision.Reason),
			zap.Duration("retry_after", decision.RetryAfter))
	}
	return decision
}

func (g *ProtectionGate) evaluate(health marketdata.Health, risk RiskLevel) domain.ProtectionDecision {
	if !health.HasData {
		return domain.ProtectionDecision{
			Severity: domain.SeverityCritical,
			Reason:   "no market data available",
		}
	}

	if health.DataAge > maxDataAge {
		return domain.ProtectionDecision{
			Severity: domain.SeverityCritical,
			Reason:   fmt.Sprintf("market data is %s old, bound is %s", health.DataAge.Round(time.Second), maxDataAge),
		}
	}

	if risk == RiskHigh && health.DataAge > maxDataAgeHighRisk {
		return domain.ProtectionDecision{
			Severity: domain.SeverityCritical,
			Reason:   fmt.Sprintf("market data is %s old, high-risk bound is %s", health.DataAge.Round(time.Second), maxDataAgeHighRisk),
		}
	}

	if health.ConsecutiveFailures >= failureBlockThreshold {
		return domain.ProtectionDecision{
			Severity:   domain.SeverityCritical,
			Reason:     fmt.Sprintf("%d consecutive provider failures", health.ConsecutiveFailures),
			RetryAfter: retryAfterFor(health.ConsecutiveFailures),
		}
	}

	if !health.PrimaryHealthy {
		return domain.ProtectionDecision{
			Allowed:  true,
			Severity: domain.SeverityHigh,
			Reason:   "primary provider unhealthy, serving from fallback",
		}
	}

	if risk == RiskLow && health.Source == domain.SourceEmergency {
		return domain.ProtectionDecision{
			Allowed:  true,
			Severity: domain.SeverityMedium,
			Reason:   "serving from emergency-tier provider",
		}
	}

	return domain.ProtectionDecision{Allowed: true, Severity: domain.SeverityLow, Reason: "ok"}
}

// retryAfterFor scales the retry hint with the failure band: 1 minute up
// to 10, 5 minutes up to 20, 10 minutes beyond.
func retryAfterFor(failures int) time.Duration {
	switch {
	case failures >= failureBandSevere:
		return 10 * time.Minute
	case failures >= failureBandMedium:
		return 5 * time.Minute
	default:
		return time.Minute
	}
}

func outcomeLabel(d domain.ProtectionDecision) string {
	if !d.Allowed {
		return "block"
	}
	if d.Severity != domain.SeverityLow {
		return "warn"
	}
	return "allow"
}
