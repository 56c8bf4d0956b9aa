package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/marginguard/marginguard/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	BybitBaseURL = "https://api.bybit.com"
	BybitWSURL   = "wss://stream.bybit.com/v5/public/linear"

	// Bybit allows 10 req/s per signed endpoint; stay under it.
	signedRatePerSec = 8

	wsPriceFreshness = 5 * time.Second
)

// BybitAdapter talks to Bybit v5. It serves three boundaries at once:
// the position source, the action executor, and the primary price
// provider (REST ticker backed by a live websocket stream).
//
// Position ids are Bybit linear one-way symbols: one position per symbol.
type BybitAdapter struct {
	apiKey    string
	apiSecret string
	baseURL   string
	wsURL     string
	refSymbol string
	client    *http.Client
	limiter   *rate.Limiter
	logger    *zap.Logger

	wsConn *websocket.Conn
	wsDone chan struct{}

	mu          sync.Mutex
	lastPrice   float64
	lastChange  float64
	lastPriceAt time.Time
}

func NewBybitAdapter(apiKey, apiSecret, baseURL, wsURL, refSymbol string, logger *zap.Logger) *BybitAdapter {
	return &BybitAdapter{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   baseURL,
		wsURL:     wsURL,
		refSymbol: refSymbol,
		client:    &http.Client{Timeout: 10 * time.Second},
		limiter:   rate.NewLimiter(rate.Limit(signedRatePerSec), signedRatePerSec),
		logger:    logger,
		wsDone:    make(chan struct{}),
	}
}

// --- REST plumbing ---

func (b *BybitAdapter) sign(params string, timestamp int64, recvWindow int) string {
	// timestamp + apiKey + recvWindow + params
	toSign := fmt.Sprintf("%d%s%d%s", timestamp, b.apiKey, recvWindow, params)
	h := hmac.New(sha256.New, []byte(b.apiSecret))
	h.Write([]byte(toSign))
	return hex.EncodeToString(h.Sum(nil))
}

func (b *BybitAdapter) sendRequest(ctx context.Context, method, path string, payload map[string]interface{}) ([]byte, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	timestamp := time.Now().UnixMilli()
	recvWindow := 5000

	var body []byte
	var paramsStr string

	if payload != nil {
		jsonBody, _ := json.Marshal(payload)
		body = jsonBody
		paramsStr = string(jsonBody)
	} else if method == http.MethodGet {
		if idx := strings.Index(path, "?"); idx != -1 {
			paramsStr = path[idx+1:]
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}

	signature := b.sign(paramsStr, timestamp, recvWindow)

	req.Header.Set("X-BAPI-API-KEY", b.apiKey)
	req.Header.Set("X-BAPI-TIMESTAMP", strconv.FormatInt(timestamp, 10))
	req.Header.Set("X-BAPI-SIGN", signature)
	req.Header.Set("X-BAPI-RECV-WINDOW", strconv.Itoa(recvWindow))
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("API error: %s", string(respBody))
	}

	return respBody, nil
}

func checkRetCode(resp []byte, op string) error {
	var result struct {
		RetCode int    `json:"retCode"`
		RetMsg  string `json:"retMsg"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	if result.RetCode != 0 {
		return fmt.Errorf("%s: bybit error %d: %s", op, result.RetCode, result.RetMsg)
	}
	return nil
}

// --- PositionSource ---

func (b *BybitAdapter) ListOpenPositions(ctx context.Context, accountID string) ([]*domain.Position, error) {
	path := "/v5/position/list?category=linear&settleCoin=USDT"
	resp, err := b.sendRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if err := checkRetCode(resp, "list positions"); err != nil {
		return nil, err
	}

	var result struct {
		Result struct {
			List []struct {
				Symbol     string `json:"symbol"`
				Side       string `json:"side"`
				Size       string `json:"size"`
				PositionIM string `json:"positionIM"`
				LiqPrice   string `json:"liqPrice"`
				MarkPrice  string `json:"markPrice"`
				Leverage   string `json:"leverage"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, err
	}

	var positions []*domain.Position
	for _, p := range result.Result.List {
		size, _ := strconv.ParseFloat(p.Size, 64)
		if size == 0 {
			continue
		}
		side := domain.SideLong
		if p.Side == "Sell" {
			side = domain.SideShort
		}
		margin, _ := strconv.ParseFloat(p.PositionIM, 64)
		liq, _ := strconv.ParseFloat(p.LiqPrice, 64)
		mark, _ := strconv.ParseFloat(p.MarkPrice, 64)
		lev, _ := strconv.ParseFloat(p.Leverage, 64)

		positions = append(positions, &domain.Position{
			ID:               p.Symbol,
			Symbol:           p.Symbol,
			Side:             side,
			Size:             size,
			Margin:           margin,
			LiquidationPrice: liq,
			MarkPrice:        mark,
			Leverage:         int(lev),
		})
	}
	return positions, nil
}

func (b *BybitAdapter) getPosition(ctx context.Context, symbol string) (*domain.Position, error) {
	positions, err := b.ListOpenPositions(ctx, "")
	if err != nil {
		return nil, err
	}
	for _, p := range positions {
		if p.Symbol == symbol {
			return p, nil
		}
	}
	return nil, fmt.Errorf("position %s: %w", symbol, domain.ErrNotFound)
}

// --- ActionExecutor ---

func (b *BybitAdapter) ApplyAction(ctx context.Context, positionID string, action domain.Action) error {
	switch action.Kind {
	case domain.ActionClose:
		return b.closePosition(ctx, positionID)
	case domain.ActionReduce:
		return b.reducePosition(ctx, positionID, action.Magnitude)
	case domain.ActionAddMargin:
		return b.addMargin(ctx, positionID, action.Magnitude)
	case domain.ActionWidenLiquidation:
		return b.widenLiquidation(ctx, positionID, action.Magnitude)
	}
	return fmt.Errorf("unsupported action %q", action.Kind)
}

func (b *BybitAdapter) closePosition(ctx context.Context, symbol string) error {
	pos, err := b.getPosition(ctx, symbol)
	if err != nil {
		return err
	}
	return b.reduceOnlyOrder(ctx, pos, pos.Size)
}

func (b *BybitAdapter) reducePosition(ctx context.Context, symbol string, percentage float64) error {
	pos, err := b.getPosition(ctx, symbol)
	if err != nil {
		return err
	}
	qty := pos.Size * percentage / 100
	if qty <= 0 {
		return nil
	}
	return b.reduceOnlyOrder(ctx, pos, qty)
}

func (b *BybitAdapter) reduceOnlyOrder(ctx context.Context, pos *domain.Position, qty float64) error {
	closeSide := "Sell"
	if pos.Side == domain.SideShort {
		closeSide = "Buy"
	}
	payload := map[string]interface{}{
		"category":   "linear",
		"symbol":     pos.Symbol,
		"side":       closeSide,
		"orderType":  "Market",
		"qty":        fmt.Sprintf("%f", qty),
		"reduceOnly": true,
	}
	resp, err := b.sendRequest(ctx, http.MethodPost, "/v5/order/create", payload)
	if err != nil {
		return err
	}
	b.logger.Info("reduce-only order placed",
		zap.String("symbol", pos.Symbol),
		zap.Float64("qty", qty))
	return checkRetCode(resp, "reduce-only order")
}

func (b *BybitAdapter) addMargin(ctx context.Context, symbol string, amount float64) error {
	payload := map[string]interface{}{
		"category": "linear",
		"symbol":   symbol,
		"margin":   fmt.Sprintf("%f", amount),
	}
	resp, err := b.sendRequest(ctx, http.MethodPost, "/v5/position/add-margin", payload)
	if err != nil {
		return err
	}
	return checkRetCode(resp, "add margin")
}

// widenLiquidation rebalances isolated margin until the distance between
// mark and liquidation price reaches targetDistance percent of the mark.
// Liquidation distance scales roughly linearly with isolated margin, so
// the required top-up is the proportional margin delta.
func (b *BybitAdapter) widenLiquidation(ctx context.Context, symbol string, targetDistance float64) error {
	pos, err := b.getPosition(ctx, symbol)
	if err != nil {
		return err
	}
	if pos.MarkPrice <= 0 || pos.LiquidationPrice <= 0 || pos.Margin <= 0 {
		return fmt.Errorf("position %s: cannot compute liquidation distance", symbol)
	}

	dist := pos.MarkPrice - pos.LiquidationPrice
	if dist < 0 {
		dist = -dist
	}
	currentDistance := dist / pos.MarkPrice * 100
	if currentDistance >= targetDistance {
		return nil // already wide enough
	}

	delta := pos.Margin * (targetDistance/currentDistance - 1)
	b.logger.Info("widening liquidation buffer",
		zap.String("symbol", symbol),
		zap.Float64("current_distance_pct", currentDistance),
		zap.Float64("target_distance_pct", targetDistance),
		zap.Float64("margin_delta", delta))
	return b.addMargin(ctx, symbol, delta)
}

// --- PriceProvider (primary) ---

func (b *BybitAdapter) Name() string            { return "bybit" }
func (b *BybitAdapter) Tier() domain.SourceTier { return domain.SourcePrimary }

func (b *BybitAdapter) FetchTicker(ctx context.Context) (*domain.MarketSnapshot, error) {
	// Prefer the live stream; REST only when the stream is quiet.
	b.mu.Lock()
	price, change, at := b.lastPrice, b.lastChange, b.lastPriceAt
	b.mu.Unlock()
	if price > 0 && time.Since(at) <= wsPriceFreshness {
		return &domain.MarketSnapshot{Index: price, Change24h: change, FetchedAt: at}, nil
	}

	path := "/v5/market/tickers?category=linear&symbol=" + b.refSymbol
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var result struct {
		RetCode int `json:"retCode"`
		Result  struct {
			List []struct {
				LastPrice    string `json:"lastPrice"`
				Price24hPcnt string `json:"price24hPcnt"`
			} `json:"list"`
		} `json:"result"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, err
	}
	if result.RetCode != 0 || len(result.Result.List) == 0 {
		return nil, fmt.Errorf("ticker %s not found", b.refSymbol)
	}

	last, err := strconv.ParseFloat(result.Result.List[0].LastPrice, 64)
	if err != nil {
		return nil, err
	}
	pcnt, _ := strconv.ParseFloat(result.Result.List[0].Price24hPcnt, 64)
	return &domain.MarketSnapshot{Index: last, Change24h: pcnt * 100, FetchedAt: time.Now()}, nil
}

// --- Websocket stream ---

// ConnectWS dials the public ticker stream for the reference symbol and
// keeps lastPrice current. Reconnection is the read loop's job.
func (b *BybitAdapter) ConnectWS() error {
	conn, _, err := websocket.DefaultDialer.Dial(b.wsURL, nil)
	if err != nil {
		return err
	}

	sub := map[string]interface{}{
		"op":   "subscribe",
		"args": []string{"tickers." + b.refSymbol},
	}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return err
	}

	b.mu.Lock()
	b.wsConn = conn
	b.mu.Unlock()

	go b.readLoop()
	return nil
}

// CloseWS stops the read loop and closes the connection.
func (b *BybitAdapter) CloseWS() {
	close(b.wsDone)
	b.mu.Lock()
	conn := b.wsConn
	b.wsConn = nil
	b.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// streamConn is the read loop's view of the connection; reconnect and
// CloseWS swap it under b.mu.
func (b *BybitAdapter) streamConn() *websocket.Conn {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.wsConn
}

func (b *BybitAdapter) readLoop() {
	for {
		select {
		case <-b.wsDone:
			return
		default:
		}

		conn := b.streamConn()
		if conn == nil {
			return
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			b.logger.Warn("websocket read failed, reconnecting", zap.Error(err))
			select {
			case <-b.wsDone:
				return
			case <-time.After(5 * time.Second):
			}
			if err := b.reconnect(); err != nil {
				b.logger.Warn("websocket reconnect failed", zap.Error(err))
			}
			continue
		}

		var tick struct {
			Topic string `json:"topic"`
			Data  struct {
				LastPrice    string `json:"lastPrice"`
				Price24hPcnt string `json:"price24hPcnt"`
			} `json:"data"`
		}
		if err := json.Unmarshal(msg, &tick); err != nil || tick.Topic == "" {
			continue
		}
		price, err := strconv.ParseFloat(tick.Data.LastPrice, 64)
		if err != nil || price <= 0 {
			continue
		}
		pcnt, _ := strconv.ParseFloat(tick.Data.Price24hPcnt, 64)

		b.mu.Lock()
		b.lastPrice = price
		b.lastChange = pcnt * 100
		b.lastPriceAt = time.Now()
		b.mu.Unlock()
	}
}

func (b *BybitAdapter) reconnect() error {
	if old := b.streamConn(); old != nil {
		old.Close()
	}
	conn, _, err := websocket.DefaultDialer.Dial(b.wsURL, nil)
	if err != nil {
		return err
	}
	if err := conn.WriteJSON(map[string]interface{}{
		"op":   "subscribe",
		"args": []string{"tickers." + b.refSymbol},
	}); err != nil {
		conn.Close()
		return err
	}
	b.mu.Lock()
	b.wsConn = conn
	b.mu.Unlock()
	return nil
}
