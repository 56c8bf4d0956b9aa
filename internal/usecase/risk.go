package usecase

import (
	"context"
	"time"

	"github.com/marginguard/marginguard/internal/domain"
)

// newAccountWindow is how long a user counts as new, and therefore
// high-risk, for gate staleness bounds.
const newAccountWindow = 7 * 24 * time.Hour

// RepositoryRiskAssessor derives a user's risk level from their stored
// automations: entry-tier users and accounts younger than a week are
// high-risk, everyone else is low-risk. Unknown users are high-risk.
type RepositoryRiskAssessor struct {
	repo domain.AutomationRepository
	now  func() time.Time
}

func NewRepositoryRiskAssessor(repo domain.AutomationRepository) *RepositoryRiskAssessor {
	return &RepositoryRiskAssessor{repo: repo, now: time.Now}
}

func (r *RepositoryRiskAssessor) UserRiskLevel(ctx context.Context, userID string) (RiskLevel, error) {
	automations, err := r.repo.ListAutomationsByUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if len(automations) == 0 {
		return RiskHigh, nil
	}

	oldest := automations[0].CreatedAt
	for _, a := range automations {
		if a.Tier == domain.TierEntry {
			return RiskHigh, nil
		}
		if a.CreatedAt.Before(oldest) {
			oldest = a.CreatedAt
		}
	}
	if r.now().Sub(oldest) < newAccountWindow {
		return RiskHigh, nil
	}
	return RiskLow, nil
}
