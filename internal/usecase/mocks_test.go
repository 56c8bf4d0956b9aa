package usecase_test

import (
	"context"
	"sync"

	"github.com/marginguard/marginguard/internal/domain"
)

// memRepo is an in-memory AutomationRepository plus ExecutionLogRepository
// shared by the scheduler and service tests.
type memRepo struct {
	mu          sync.Mutex
	automations map[string]domain.Automation
	logs        []*domain.ExecutionLogEntry
}

func newMemRepo() *memRepo {
	return &memRepo{automations: make(map[string]domain.Automation)}
}

func (m *memRepo) SaveAutomation(ctx context.Context, a *domain.Automation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.automations[a.ID] = *a
	return nil
}

func (m *memRepo) GetAutomation(ctx context.Context, id string) (*domain.Automation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.automations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := a
	return &copied, nil
}

func (m *memRepo) ListAutomations(ctx context.Context) ([]*domain.Automation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Automation
	for _, a := range m.automations {
		copied := a
		out = append(out, &copied)
	}
	return out, nil
}

func (m *memRepo) ListAutomationsByUser(ctx context.Context, userID string) ([]*domain.Automation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Automation
	for _, a := range m.automations {
		if a.UserID == userID {
			copied := a
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *memRepo) GetActiveByAccount(ctx context.Context, userID, accountID string) (*domain.Automation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.automations {
		if a.UserID == userID && a.AccountID == accountID && a.IsActive {
			copied := a
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memRepo) UpdateAutomation(ctx context.Context, a *domain.Automation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.automations[a.ID]; !ok {
		return domain.ErrNotFound
	}
	m.automations[a.ID] = *a
	return nil
}

func (m *memRepo) DeleteAutomation(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.automations[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.automations, id)
	return nil
}

func (m *memRepo) SaveExecutionLog(ctx context.Context, entry *domain.ExecutionLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, entry)
	return nil
}

func (m *memRepo) ListExecutionLogs(ctx context.Context, automationID string, limit int) ([]*domain.ExecutionLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.ExecutionLogEntry
	for i := len(m.logs) - 1; i >= 0 && len(out) < limit; i-- {
		if m.logs[i].AutomationID == automationID {
			out = append(out, m.logs[i])
		}
	}
	return out, nil
}

func (m *memRepo) logCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.logs)
}

func (m *memRepo) mutate(id string, fn func(*domain.Automation)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.automations[id]
	fn(&a)
	m.automations[id] = a
}

type fakePositionSource struct {
	mu        sync.Mutex
	positions []*domain.Position
	err       error
}

func (f *fakePositionSource) ListOpenPositions(ctx context.Context, accountID string) ([]*domain.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.positions, f.err
}

type fakeMarketSource struct {
	snap *domain.MarketSnapshot
	err  error
}

func (f *fakeMarketSource) GetMarketData(ctx context.Context) (*domain.MarketSnapshot, error) {
	return f.snap, f.err
}

// threadSafeExecutor counts applied actions across concurrent ticks.
type threadSafeExecutor struct {
	mu      sync.Mutex
	applied []domain.ActionRecord
	err     error
}

func (e *threadSafeExecutor) ApplyAction(ctx context.Context, positionID string, action domain.Action) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.applied = append(e.applied, domain.ActionRecord{PositionID: positionID, Kind: action.Kind})
	return nil
}

func (e *threadSafeExecutor) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.applied)
}
