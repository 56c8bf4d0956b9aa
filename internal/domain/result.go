package domain

import "time"

// ActionRecord is one attempted corrective action inside a run.
type ActionRecord struct {
	PositionID string     `json:"position_id"`
	Kind       ActionKind `json:"kind"`
	Magnitude  float64    `json:"magnitude,omitempty"`
}

// NotificationRecord is one per-channel dispatch decision.
type NotificationRecord struct {
	Channel    Channel `json:"channel"`
	Dispatched bool    `json:"dispatched"`
	Detail     string  `json:"detail,omitempty"`
}

// ExecutionResult is the outcome of one protection run. Success is true
// iff Errors is empty; Actions always carries the partial progress made,
// even when a later position failed.
type ExecutionResult struct {
	AutomationID  string               `json:"automation_id"`
	Success       bool                 `json:"success"`
	Actions       []ActionRecord       `json:"actions"`
	Notifications []NotificationRecord `json:"notifications"`
	Errors        []string             `json:"errors"`
	RanAt         time.Time            `json:"ran_at"`
}

// Severity grades a protection decision.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ProtectionDecision is the gate's verdict for one execution attempt.
// Computed per attempt, never persisted.
type ProtectionDecision struct {
	Allowed    bool          `json:"allowed"`
	Severity   Severity      `json:"severity"`
	Reason     string        `json:"reason"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}
