package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/marginguard/marginguard/internal/domain"
)

const BinanceBaseURL = "https://api.binance.com"

// Binance is the fallback price source: public spot ticker, no auth.
type Binance struct {
	baseURL string
	symbol  string
	client  *http.Client
}

func NewBinance(baseURL, symbol string) *Binance {
	return &Binance{
		baseURL: baseURL,
		symbol:  symbol,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *Binance) Name() string            { return "binance" }
func (p *Binance) Tier() domain.SourceTier { return domain.SourceFallback }

func (p *Binance) FetchTicker(ctx context.Context) (*domain.MarketSnapshot, error) {
	path := "/api/v3/ticker/24hr?symbol=" + p.symbol
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
		return nil, fmt.Errorf("binance ticker: status %d: %s", resp.StatusCode, string(body))
	}

	var ticker struct {
		LastPrice          string `json:"lastPrice"`
		PriceChangePercent string `json:"priceChangePercent"`
	}
	if err := json.Unmarshal(body, &ticker); err != nil {
		return nil, err
	}

	last, err := strconv.ParseFloat(ticker.LastPrice, 64)
	if err != nil {
		return nil, fmt.Errorf("binance ticker: bad price %q", ticker.LastPrice)
	}
	change, _ := strconv.ParseFloat(ticker.PriceChangePercent, 64)

	return &domain.MarketSnapshot{
		Index:     last,
		Change24h: change,
		FetchedAt: time.Now(),
	}, nil
}
