package domain

import (
	"context"
	"time"
)

// PositionSource lists open positions for an account. The implementation
// owns authentication against the exchange.
type PositionSource interface {
	ListOpenPositions(ctx context.Context, accountID string) ([]*Position, error)
}

// ActionExecutor applies one corrective action to one position. The
// implementation owns idempotency and retry against the exchange API.
type ActionExecutor interface {
	ApplyAction(ctx context.Context, positionID string, action Action) error
}

// PriceProvider is one external market-data source. FetchTicker returns a
// normalized snapshot without Source set; the resilience layer tags it.
type PriceProvider interface {
	Name() string
	Tier() SourceTier
	FetchTicker(ctx context.Context) (*MarketSnapshot, error)
}

// NotificationTransport delivers one payload on one channel. Delivery is
// best-effort, at-least-once; this core only decides whether to call.
type NotificationTransport interface {
	Send(ctx context.Context, ch Channel, payload []byte) error
}

// AutomationRepository stores protection automations.
type AutomationRepository interface {
	SaveAutomation(ctx context.Context, a *Automation) error
	GetAutomation(ctx context.Context, id string) (*Automation, error)
	ListAutomations(ctx context.Context) ([]*Automation, error)
	ListAutomationsByUser(ctx context.Context, userID string) ([]*Automation, error)
	GetActiveByAccount(ctx context.Context, userID, accountID string) (*Automation, error)
	UpdateAutomation(ctx context.Context, a *Automation) error
	DeleteAutomation(ctx context.Context, id string) error
}

// ExecutionLogEntry is the locally kept audit record of one run.
type ExecutionLogEntry struct {
	ID           int64
	AutomationID string
	Success      bool
	ActionCount  int
	Errors       []string
	Reason       string
	RanAt        time.Time
}

// ExecutionLogRepository stores recent run outcomes so operators can
// answer "what happened last tick". Long-term audit storage is owned by
// an external collaborator.
type ExecutionLogRepository interface {
	SaveExecutionLog(ctx context.Context, entry *ExecutionLogEntry) error
	ListExecutionLogs(ctx context.Context, automationID string, limit int) ([]*ExecutionLogEntry, error)
}
