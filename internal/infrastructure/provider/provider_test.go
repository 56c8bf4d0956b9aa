package provider_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/marginguard/marginguard/internal/domain"
	"github.com/marginguard/marginguard/internal/infrastructure/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBinanceFetchTicker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/24hr", r.URL.Path)
		assert.Equal(t, "BTCUSDT", r.URL.Query().Get("symbol"))
		w.Write([]byte(`{"lastPrice":"50123.45","priceChangePercent":"-2.31"}`))
	}))
	defer srv.Close()

	p := provider.NewBinance(srv.URL, "BTCUSDT")
	snap, err := p.FetchTicker(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50123.45, snap.Index)
	assert.Equal(t, -2.31, snap.Change24h)
	assert.Equal(t, domain.SourceFallback, p.Tier())
	assert.False(t, snap.FetchedAt.IsZero())
}

func TestBinanceFetchTickerErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
	}{
		{"http error", http.StatusTooManyRequests, `{"code":-1003}`},
		{"garbage body", http.StatusOK, `not json`},
		{"bad price", http.StatusOK, `{"lastPrice":"n/a"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := provider.NewBinance(srv.URL, "BTCUSDT").FetchTicker(context.Background())
			assert.Error(t, err)
		})
	}
}

func TestCoinGeckoFetchTicker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/simple/price", r.URL.Path)
		assert.Equal(t, "bitcoin", r.URL.Query().Get("ids"))
		w.Write([]byte(`{"bitcoin":{"usd":50200.1,"usd_24h_change":1.7}}`))
	}))
	defer srv.Close()

	p := provider.NewCoinGecko(srv.URL, "bitcoin", "usd")
	snap, err := p.FetchTicker(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 50200.1, snap.Index)
	assert.Equal(t, 1.7, snap.Change24h)
	assert.Equal(t, domain.SourceEmergency, p.Tier())
}

func TestCoinGeckoMissingCoin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := provider.NewCoinGecko(srv.URL, "bitcoin", "usd").FetchTicker(context.Background())
	assert.Error(t, err)
}
