package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/marginguard/marginguard/internal/domain"
	"go.uber.org/zap"
)

// Transport routes a dispatch to the concrete sender for its channel.
// Channels without a configured sender fall back to the in-app log; the
// core never learns the wire format either way.
type Transport struct {
	webhookURL string
	client     *http.Client
	logger     *zap.Logger
}

func NewTransport(webhookURL string, logger *zap.Logger) *Transport {
	return &Transport{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

func (t *Transport) Send(ctx context.Context, ch domain.Channel, payload []byte) error {
	switch ch {
	case domain.ChannelWebhook:
		return t.postWebhook(ctx, payload)
	default:
		// In-app and message channels are delivered by an external
		// collaborator; recording the decision is our whole job here.
		t.logger.Info("notification dispatched",
			zap.String("channel", string(ch)),
			zap.ByteString("payload", payload))
		return nil
	}
}

func (t *Transport) postWebhook(ctx context.Context, payload []byte) error {
	if t.webhookURL == "" {
		return fmt.Errorf("webhook channel enabled but no webhook URL configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
