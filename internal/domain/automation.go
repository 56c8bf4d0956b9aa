package domain

import "time"

// ProtectionMode controls whether a rule applies per position, across the
// whole account, or both.
type ProtectionMode string

const (
	ModePerPosition ProtectionMode = "per_position"
	ModeAggregate   ProtectionMode = "aggregate"
	ModeBoth        ProtectionMode = "both"
)

// Channel is a notification destination. ChannelInApp is always available;
// the rest are tier-gated.
type Channel string

const (
	ChannelInApp    Channel = "inapp"
	ChannelEmail    Channel = "email"
	ChannelTelegram Channel = "telegram"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelWebhook  Channel = "webhook"
)

// ActionKind identifies the corrective action taken when a position
// breaches its margin threshold.
type ActionKind string

const (
	ActionClose            ActionKind = "close"
	ActionReduce           ActionKind = "reduce"
	ActionAddMargin        ActionKind = "add_margin"
	ActionWidenLiquidation ActionKind = "widen_liquidation"
)

// Action is a tagged corrective action. Magnitude is interpreted per kind:
// reduce -> percentage of size to shed, add_margin -> collateral amount,
// widen_liquidation -> target liquidation distance in percent. Close
// ignores it.
type Action struct {
	Kind      ActionKind `json:"kind"`
	Magnitude float64    `json:"magnitude,omitempty"`
}

// Configuration is one protection rule-set, scoped to the owning tier.
// Every field combination must pass plan validation before it is persisted.
type Configuration struct {
	MarginThreshold      float64                  `json:"margin_threshold"` // percent of margin-to-liquidation consumed, 0-100
	Action               Action                   `json:"action"`
	Enabled              bool                     `json:"enabled"`
	SelectedPositions    []string                 `json:"selected_positions,omitempty"`
	ProtectionMode       ProtectionMode           `json:"protection_mode"`
	IndividualConfigs    map[string]Configuration `json:"individual_configs,omitempty"`
	NotificationChannels []Channel                `json:"notification_channels"`
}

// Automation is one protection rule-set owned by a user for one exchange
// account. At most one active margin-guard automation may exist per
// (user, account).
type Automation struct {
	ID        string
	UserID    string
	AccountID string
	Tier      Tier
	IsActive  bool
	Config    Configuration
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasSelected reports whether the position id is in SelectedPositions.
func (c Configuration) HasSelected(positionID string) bool {
	for _, id := range c.SelectedPositions {
		if id == positionID {
			return true
		}
	}
	return false
}
