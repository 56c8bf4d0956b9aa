package usecase_test

import (
	"strings"
	"testing"

	"github.com/marginguard/marginguard/internal/domain"
	"github.com/marginguard/marginguard/internal/usecase"
)

func validConfig() domain.Configuration {
	return domain.Configuration{
		MarginThreshold:      80,
		Action:               domain.Action{Kind: domain.ActionReduce, Magnitude: 50},
		Enabled:              true,
		ProtectionMode:       domain.ModeAggregate,
		NotificationChannels: []domain.Channel{domain.ChannelInApp},
	}
}

func TestValidateTierRules(t *testing.T) {
	plan := usecase.NewPlanService()

	tests := []struct {
		name    string
		tier    domain.Tier
		mutate  func(*domain.Configuration)
		wantErr string // substring of one expected reason, empty = valid
	}{
		{"entry ok with two selected", domain.TierEntry, func(c *domain.Configuration) {
			c.SelectedPositions = []string{"p1", "p2"}
		}, ""},
		{"entry rejects three selected", domain.TierEntry, func(c *domain.Configuration) {
			c.SelectedPositions = []string{"p1", "p2", "p3"}
		}, "at most 2 selected positions"},
		{"entry rejects overrides", domain.TierEntry, func(c *domain.Configuration) {
			c.IndividualConfigs = map[string]domain.Configuration{"p1": validConfig()}
		}, "per-position configuration overrides"},
		{"entry rejects per-position mode", domain.TierEntry, func(c *domain.Configuration) {
			c.ProtectionMode = domain.ModePerPosition
		}, "not available on this tier"},
		{"entry rejects add_margin action", domain.TierEntry, func(c *domain.Configuration) {
			c.Action = domain.Action{Kind: domain.ActionAddMargin, Magnitude: 100}
		}, "not available on this tier"},
		{"standard unlimited selected", domain.TierStandard, func(c *domain.Configuration) {
			c.SelectedPositions = []string{"p1", "p2", "p3", "p4", "p5"}
		}, ""},
		{"standard rejects overrides", domain.TierStandard, func(c *domain.Configuration) {
			c.IndividualConfigs = map[string]domain.Configuration{"p1": validConfig()}
		}, "per-position configuration overrides"},
		{"standard rejects both mode", domain.TierStandard, func(c *domain.Configuration) {
			c.ProtectionMode = domain.ModeBoth
		}, "not available on this tier"},
		{"elevated accepts both mode", domain.TierElevated, func(c *domain.Configuration) {
			c.ProtectionMode = domain.ModeBoth
		}, ""},
		{"elevated rejects overrides", domain.TierElevated, func(c *domain.Configuration) {
			c.IndividualConfigs = map[string]domain.Configuration{"p1": validConfig()}
		}, "per-position configuration overrides"},
		{"elevated rejects telegram", domain.TierElevated, func(c *domain.Configuration) {
			c.NotificationChannels = append(c.NotificationChannels, domain.ChannelTelegram)
		}, "not available on this tier"},
		{"professional accepts everything", domain.TierProfessional, func(c *domain.Configuration) {
			c.ProtectionMode = domain.ModeBoth
			c.IndividualConfigs = map[string]domain.Configuration{"p1": validConfig()}
			c.NotificationChannels = []domain.Channel{domain.ChannelTelegram, domain.ChannelWebhook}
		}, ""},
		{"professional rejects nested overrides", domain.TierProfessional, func(c *domain.Configuration) {
			nested := validConfig()
			nested.IndividualConfigs = map[string]domain.Configuration{"p2": validConfig()}
			c.IndividualConfigs = map[string]domain.Configuration{"p1": nested}
		}, "must not nest"},
		{"unrestricted accepts everything", domain.TierUnrestricted, func(c *domain.Configuration) {
			c.IndividualConfigs = map[string]domain.Configuration{"p1": validConfig()}
			c.NotificationChannels = []domain.Channel{domain.ChannelWhatsApp}
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			res := plan.Validate(tt.tier, cfg)

			if tt.wantErr == "" {
				if !res.Valid {
					t.Errorf("Validate() = invalid, errors: %v", res.Errors)
				}
				return
			}
			if res.Valid {
				t.Fatalf("Validate() = valid, want error containing %q", tt.wantErr)
			}
			found := false
			for _, e := range res.Errors {
				if strings.Contains(e, tt.wantErr) {
					found = true
				}
			}
			if !found {
				t.Errorf("errors %v do not contain %q", res.Errors, tt.wantErr)
			}
		})
	}
}

func TestValidateStructure(t *testing.T) {
	plan := usecase.NewPlanService()

	tests := []struct {
		name    string
		mutate  func(*domain.Configuration)
		wantErr string
	}{
		{"threshold zero", func(c *domain.Configuration) { c.MarginThreshold = 0 }, "margin threshold"},
		{"threshold above 100", func(c *domain.Configuration) { c.MarginThreshold = 101 }, "margin threshold"},
		{"unknown action", func(c *domain.Configuration) { c.Action = domain.Action{Kind: "liquidate"} }, "unknown action"},
		{"reduce percent over 100", func(c *domain.Configuration) {
			c.Action = domain.Action{Kind: domain.ActionReduce, Magnitude: 150}
		}, "reduce percentage"},
		{"unknown mode", func(c *domain.Configuration) { c.ProtectionMode = "every" }, "unknown protection mode"},
		{"unknown channel", func(c *domain.Configuration) {
			c.NotificationChannels = []domain.Channel{"pager"}
		}, "unknown notification channel"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			res := plan.Validate(domain.TierUnrestricted, cfg)
			if res.Valid {
				t.Fatalf("Validate() = valid, want error containing %q", tt.wantErr)
			}
			joined := strings.Join(res.Errors, " | ")
			if !strings.Contains(joined, tt.wantErr) {
				t.Errorf("errors %q do not contain %q", joined, tt.wantErr)
			}
		})
	}
}

func TestValidateCollectsAllReasons(t *testing.T) {
	plan := usecase.NewPlanService()
	cfg := domain.Configuration{
		MarginThreshold: 150,
		Action:          domain.Action{Kind: "nuke"},
		ProtectionMode:  domain.ModeBoth,
		SelectedPositions: []string{
			"p1", "p2", "p3",
		},
	}
	res := plan.Validate(domain.TierEntry, cfg)
	if res.Valid {
		t.Fatal("Validate() accepted a configuration violating four rules")
	}
	if len(res.Errors) < 4 {
		t.Errorf("got %d reasons, want all violations reported: %v", len(res.Errors), res.Errors)
	}
}

func TestDefaultConfiguration(t *testing.T) {
	plan := usecase.NewPlanService()

	for _, tier := range []domain.Tier{
		domain.TierEntry, domain.TierStandard, domain.TierElevated,
		domain.TierProfessional, domain.TierUnrestricted,
	} {
		t.Run(tier.String(), func(t *testing.T) {
			cfg := plan.DefaultConfiguration(tier)
			if res := plan.Validate(tier, cfg); !res.Valid {
				t.Errorf("default configuration invalid for its own tier: %v", res.Errors)
			}
			if cfg.Action.Kind != domain.ActionReduce || cfg.Action.Magnitude != 50 {
				t.Errorf("default action = %+v, want reduce by half", cfg.Action)
			}
		})
	}

	if got := plan.DefaultConfiguration(domain.TierEntry).ProtectionMode; got != domain.ModeAggregate {
		t.Errorf("entry default mode = %v, want aggregate", got)
	}
	if got := plan.DefaultConfiguration(domain.TierElevated).ProtectionMode; got != domain.ModeBoth {
		t.Errorf("elevated default mode = %v, want both", got)
	}
}
