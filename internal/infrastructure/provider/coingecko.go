package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/marginguard/marginguard/internal/domain"
)

const CoinGeckoBaseURL = "https://api.coingecko.com"

// CoinGecko is the emergency price source. Aggregated index, minutes of
// lag under load, but independent of every exchange.
type CoinGecko struct {
	baseURL string
	coinID  string // e.g. "bitcoin"
	vs      string // e.g. "usd"
	client  *http.Client
}

func NewCoinGecko(baseURL, coinID, vs string) *CoinGecko {
	return &CoinGecko{
		baseURL: baseURL,
		coinID:  coinID,
		vs:      vs,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *CoinGecko) Name() string            { return "coingecko" }
func (p *CoinGecko) Tier() domain.SourceTier { return domain.SourceEmergency }

func (p *CoinGecko) FetchTicker(ctx context.Context) (*domain.MarketSnapshot, error) {
	path := fmt.Sprintf("/api/v3/simple/price?ids=%s&vs_currencies=%s&include_24hr_change=true", p.coinID, p.vs)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coingecko price: status %d: %s", resp.StatusCode, string(body))
	}

	var payload map[string]map[string]float64
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}
	coin, ok := payload[p.coinID]
	if !ok {
		return nil, fmt.Errorf("coingecko price: coin %q missing from response", p.coinID)
	}
	price, ok := coin[p.vs]
	if !ok {
		return nil, fmt.Errorf("coingecko price: currency %q missing from response", p.vs)
	}

	return &domain.MarketSnapshot{
		Index:     price,
		Change24h: coin[p.vs+"_24h_change"],
		FetchedAt: time.Now(),
	}, nil
}
