package domain

// Tier is the subscription level that gates protection features.
// The set is closed: anything outside these five values is invalid.
type Tier int

const (
	TierEntry Tier = iota
	TierStandard
	TierElevated
	TierProfessional
	TierUnrestricted
)

// UnlimitedPositions marks a tier without a watched-position cap.
const UnlimitedPositions = -1

// EntryTierPositionCap is the hard limit on selected positions for the entry tier.
const EntryTierPositionCap = 2

func (t Tier) String() string {
	switch t {
	case TierEntry:
		return "entry"
	case TierStandard:
		return "standard"
	case TierElevated:
		return "elevated"
	case TierProfessional:
		return "professional"
	case TierUnrestricted:
		return "unrestricted"
	}
	return "unknown"
}

// ParseTier maps a stored tier name back to its enum value.
func ParseTier(s string) (Tier, bool) {
	switch s {
	case "entry":
		return TierEntry, true
	case "standard":
		return TierStandard, true
	case "elevated":
		return TierElevated, true
	case "professional":
		return TierProfessional, true
	case "unrestricted":
		return TierUnrestricted, true
	}
	return 0, false
}

// Valid reports whether t is one of the five known tiers.
func (t Tier) Valid() bool {
	return t >= TierEntry && t <= TierUnrestricted
}

// Capabilities describes what a tier may configure.
type Capabilities struct {
	MaxPositions            int
	SupportsIndividualConfig bool
	SupportsMultipleModes   bool
	SupportsAdvancedChannels bool
	AllowedActions          []ActionKind
	AllowedModes            []ProtectionMode
	AllowedChannels         []Channel
}

var allActions = []ActionKind{ActionClose, ActionReduce, ActionAddMargin, ActionWidenLiquidation}

// capabilityTable is the single source of truth for tier gating.
// Each row is a superset of the previous one, except MaxPositions
// which becomes unlimited from the standard tier upward.
var capabilityTable = map[Tier]Capabilities{
	TierEntry: {
		MaxPositions:    EntryTierPositionCap,
		AllowedActions:  []ActionKind{ActionClose, ActionReduce},
		AllowedModes:    []ProtectionMode{ModeAggregate},
		AllowedChannels: []Channel{ChannelInApp},
	},
	TierStandard: {
		MaxPositions:    UnlimitedPositions,
		AllowedActions:  allActions,
		AllowedModes:    []ProtectionMode{ModeAggregate},
		AllowedChannels: []Channel{ChannelInApp},
	},
	TierElevated: {
		MaxPositions:          UnlimitedPositions,
		SupportsMultipleModes: true,
		AllowedActions:        allActions,
		AllowedModes:          []ProtectionMode{ModePerPosition, ModeAggregate, ModeBoth},
		AllowedChannels:       []Channel{ChannelInApp},
	},
	TierProfessional: {
		MaxPositions:             UnlimitedPositions,
		SupportsIndividualConfig: true,
		SupportsMultipleModes:    true,
		SupportsAdvancedChannels: true,
		AllowedActions:           allActions,
		AllowedModes:             []ProtectionMode{ModePerPosition, ModeAggregate, ModeBoth},
		AllowedChannels:          []Channel{ChannelInApp, ChannelEmail, ChannelTelegram, ChannelWhatsApp, ChannelWebhook},
	},
	TierUnrestricted: {
		MaxPositions:             UnlimitedPositions,
		SupportsIndividualConfig: true,
		SupportsMultipleModes:    true,
		SupportsAdvancedChannels: true,
		AllowedActions:           allActions,
		AllowedModes:             []ProtectionMode{ModePerPosition, ModeAggregate, ModeBoth},
		AllowedChannels:          []Channel{ChannelInApp, ChannelEmail, ChannelTelegram, ChannelWhatsApp, ChannelWebhook},
	},
}

// CapabilitiesFor returns the capability row for a tier. Unknown tiers
// collapse to the entry row so a corrupt value never widens access.
func CapabilitiesFor(t Tier) Capabilities {
	caps, ok := capabilityTable[t]
	if !ok {
		return capabilityTable[TierEntry]
	}
	return caps
}

// AllowsAction reports whether the tier may configure the given action.
func (c Capabilities) AllowsAction(kind ActionKind) bool {
	for _, a := range c.AllowedActions {
		if a == kind {
			return true
		}
	}
	return false
}

// AllowsMode reports whether the tier may configure the given protection mode.
func (c Capabilities) AllowsMode(mode ProtectionMode) bool {
	for _, m := range c.AllowedModes {
		if m == mode {
			return true
		}
	}
	return false
}

// AllowsChannel reports whether the tier may notify on the given channel.
func (c Capabilities) AllowsChannel(ch Channel) bool {
	for _, allowed := range c.AllowedChannels {
		if allowed == ch {
			return true
		}
	}
	return false
}
