package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/marginguard/marginguard/internal/domain"
	"github.com/marginguard/marginguard/internal/usecase"
	"go.uber.org/zap"
)

type fakeTransport struct {
	sent   []domain.Channel
	failOn domain.Channel
}

func (f *fakeTransport) Send(ctx context.Context, ch domain.Channel, payload []byte) error {
	if ch == f.failOn {
		return errors.New("transport down")
	}
	f.sent = append(f.sent, ch)
	return nil
}

func resultWithActions() *domain.ExecutionResult {
	return &domain.ExecutionResult{
		AutomationID: "a1",
		Success:      true,
		Actions:      []domain.ActionRecord{{PositionID: "p1", Kind: domain.ActionClose}},
	}
}

func TestDispatchPerAllowedChannel(t *testing.T) {
	transport := &fakeTransport{}
	n := usecase.NewNotifier(transport, zap.NewNop())

	records := n.Dispatch(context.Background(), domain.TierProfessional, domain.Configuration{
		NotificationChannels: []domain.Channel{domain.ChannelInApp, domain.ChannelTelegram},
	}, resultWithActions())

	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	for _, r := range records {
		if !r.Dispatched {
			t.Errorf("channel %s not dispatched: %s", r.Channel, r.Detail)
		}
	}
	if len(transport.sent) != 2 {
		t.Errorf("transport called %d times, want 2", len(transport.sent))
	}
}

func TestDispatchFiltersTierForbiddenChannels(t *testing.T) {
	transport := &fakeTransport{}
	n := usecase.NewNotifier(transport, zap.NewNop())

	// telegram slipped into an entry-tier config; it must never be attempted.
	records := n.Dispatch(context.Background(), domain.TierEntry, domain.Configuration{
		NotificationChannels: []domain.Channel{domain.ChannelInApp, domain.ChannelTelegram},
	}, resultWithActions())

	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	for _, r := range records {
		if r.Channel == domain.ChannelTelegram && r.Dispatched {
			t.Error("tier-forbidden channel was dispatched")
		}
	}
	for _, ch := range transport.sent {
		if ch == domain.ChannelTelegram {
			t.Error("transport invoked for tier-forbidden channel")
		}
	}
}

func TestDispatchNothingWithoutActions(t *testing.T) {
	transport := &fakeTransport{}
	n := usecase.NewNotifier(transport, zap.NewNop())

	records := n.Dispatch(context.Background(), domain.TierProfessional, domain.Configuration{
		NotificationChannels: []domain.Channel{domain.ChannelInApp},
	}, &domain.ExecutionResult{AutomationID: "a1", Success: false})

	if len(records) != 0 || len(transport.sent) != 0 {
		t.Error("dispatch attempted for a result without actions")
	}
}

func TestDispatchTransportFailureIsIsolated(t *testing.T) {
	transport := &fakeTransport{failOn: domain.ChannelEmail}
	n := usecase.NewNotifier(transport, zap.NewNop())

	records := n.Dispatch(context.Background(), domain.TierProfessional, domain.Configuration{
		NotificationChannels: []domain.Channel{domain.ChannelEmail, domain.ChannelInApp},
	}, resultWithActions())

	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	byChannel := map[domain.Channel]domain.NotificationRecord{}
	for _, r := range records {
		byChannel[r.Channel] = r
	}
	if byChannel[domain.ChannelEmail].Dispatched {
		t.Error("failed channel marked dispatched")
	}
	if !byChannel[domain.ChannelInApp].Dispatched {
		t.Error("healthy channel not dispatched after another channel failed")
	}
}
