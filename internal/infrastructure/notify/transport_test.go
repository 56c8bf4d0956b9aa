package notify_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/marginguard/marginguard/internal/domain"
	"github.com/marginguard/marginguard/internal/infrastructure/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWebhookDelivery(t *testing.T) {
	var received []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		received = buf
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := notify.NewTransport(srv.URL, zap.NewNop())
	err := tr.Send(context.Background(), domain.ChannelWebhook, []byte(`{"automation_id":"a1"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"automation_id":"a1"}`, string(received))
}

func TestWebhookFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	tr := notify.NewTransport(srv.URL, zap.NewNop())
	err := tr.Send(context.Background(), domain.ChannelWebhook, []byte(`{}`))
	assert.Error(t, err)
}

func TestWebhookWithoutURL(t *testing.T) {
	tr := notify.NewTransport("", zap.NewNop())
	err := tr.Send(context.Background(), domain.ChannelWebhook, []byte(`{}`))
	assert.Error(t, err)
}

func TestNonWebhookChannelsAreLogged(t *testing.T) {
	tr := notify.NewTransport("", zap.NewNop())
	for _, ch := range []domain.Channel{domain.ChannelInApp, domain.ChannelEmail, domain.ChannelTelegram} {
		assert.NoError(t, tr.Send(context.Background(), ch, []byte(`{}`)))
	}
}
