package usecase

import (
	"fmt"

	"github.com/marginguard/marginguard/internal/domain"
)

// ValidationResult lists every reason a configuration does not fit its
// tier. Valid is true iff Errors is empty.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// PlanService validates configurations against tier capabilities and
// seeds tier-appropriate defaults. Validation never fails hard; callers
// decide whether to reject a write.
type PlanService struct{}

func NewPlanService() *PlanService {
	return &PlanService{}
}

// Validate checks structure plus tier rules and returns human-readable
// reasons for every violation found.
func (s *PlanService) Validate(tier domain.Tier, cfg domain.Configuration) ValidationResult {
	var errs []string

	if !tier.Valid() {
		return ValidationResult{Errors: []string{fmt.Sprintf("unknown tier %d", tier)}}
	}
	caps := domain.CapabilitiesFor(tier)

	errs = append(errs, s.validateBase(caps, cfg)...)

	if caps.MaxPositions != domain.UnlimitedPositions && len(cfg.SelectedPositions) > caps.MaxPositions {
		errs = append(errs, fmt.Sprintf("%s tier allows at most %d selected positions, got %d",
			tier, caps.MaxPositions, len(cfg.SelectedPositions)))
	}

	if len(cfg.IndividualConfigs) > 0 {
		if !caps.SupportsIndividualConfig {
			errs = append(errs, fmt.Sprintf("%s tier does not support per-position configuration overrides", tier))
		} else {
			for posID, override := range cfg.IndividualConfigs {
				if len(override.IndividualConfigs) > 0 {
					errs = append(errs, fmt.Sprintf("override for position %s must not nest further overrides", posID))
				}
				for _, e := range s.validateBase(caps, override) {
					errs = append(errs, fmt.Sprintf("override for position %s: %s", posID, e))
				}
			}
		}
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// validateBase checks the fields shared by a base configuration and a
// per-position override.
func (s *PlanService) validateBase(caps domain.Capabilities, cfg domain.Configuration) []string {
	var errs []string

	if cfg.MarginThreshold <= 0 || cfg.MarginThreshold > 100 {
		errs = append(errs, fmt.Sprintf("margin threshold must be within (0, 100], got %.2f", cfg.MarginThreshold))
	}

	switch cfg.Action.Kind {
	case domain.ActionClose:
		// no magnitude
	case domain.ActionReduce:
		if cfg.Action.Magnitude <= 0 || cfg.Action.Magnitude > 100 {
			errs = append(errs, fmt.Sprintf("reduce percentage must be within (0, 100], got %.2f", cfg.Action.Magnitude))
		}
	case domain.ActionAddMargin:
		if cfg.Action.Magnitude <= 0 {
			errs = append(errs, "add_margin amount must be positive")
		}
	case domain.ActionWidenLiquidation:
		if cfg.Action.Magnitude <= 0 || cfg.Action.Magnitude > 100 {
			errs = append(errs, fmt.Sprintf("widen_liquidation distance must be within (0, 100], got %.2f", cfg.Action.Magnitude))
		}
	default:
		errs = append(errs, fmt.Sprintf("unknown action %q", cfg.Action.Kind))
	}
	if cfg.Action.Kind != "" && !caps.AllowsAction(cfg.Action.Kind) {
		errs = append(errs, fmt.Sprintf("action %q is not available on this tier", cfg.Action.Kind))
	}

	// An empty mode means the tier's implicit aggregate behavior.
	if cfg.ProtectionMode != "" {
		switch cfg.ProtectionMode {
		case domain.ModePerPosition, domain.ModeAggregate, domain.ModeBoth:
			if !caps.AllowsMode(cfg.ProtectionMode) {
				errs = append(errs, fmt.Sprintf("protection mode %q is not available on this tier", cfg.ProtectionMode))
			}
		default:
			errs = append(errs, fmt.Sprintf("unknown protection mode %q", cfg.ProtectionMode))
		}
	}

	for _, ch := range cfg.NotificationChannels {
		switch ch {
		case domain.ChannelInApp, domain.ChannelEmail, domain.ChannelTelegram, domain.ChannelWhatsApp, domain.ChannelWebhook:
			if !caps.AllowsChannel(ch) {
				errs = append(errs, fmt.Sprintf("notification channel %q is not available on this tier", ch))
			}
		default:
			errs = append(errs, fmt.Sprintf("unknown notification channel %q", ch))
		}
	}

	return errs
}

// DefaultConfiguration seeds a safe rule-set for the tier: moderate
// threshold, reduce-by-half, default channel only. Mode breadth and extra
// channels are added only where the tier supports them.
func (s *PlanService) DefaultConfiguration(tier domain.Tier) domain.Configuration {
	caps := domain.CapabilitiesFor(tier)

	cfg := domain.Configuration{
		MarginThreshold:      80,
		Action:               domain.Action{Kind: domain.ActionReduce, Magnitude: 50},
		Enabled:              true,
		ProtectionMode:       domain.ModeAggregate,
		NotificationChannels: []domain.Channel{domain.ChannelInApp},
	}
	if caps.SupportsMultipleModes {
		cfg.ProtectionMode = domain.ModeBoth
	}
	if caps.SupportsAdvancedChannels {
		cfg.NotificationChannels = append(cfg.NotificationChannels, domain.ChannelEmail)
	}
	return cfg
}
