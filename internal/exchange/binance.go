package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
	"triscan/internal/config"
	"triscan/internal/model"
)

// SymbolInfo is the part of an exchangeInfo symbol entry the scanner uses.
type SymbolInfo struct {
	Symbol     string `json:"symbol"`
	Status     string `json:"status"`
	BaseAsset  string `json:"baseAsset"`
	QuoteAsset string `json:"quoteAsset"`
}

// Pair converts the entry to a TradingPair.
func (s SymbolInfo) Pair() model.TradingPair {
	return model.TradingPair{Symbol: s.Symbol, BaseAsset: s.BaseAsset, QuoteAsset: s.QuoteAsset}
}

type exchangeInfoResp struct {
	Symbols []SymbolInfo `json:"symbols"`
}

type depthResp struct {
	LastUpdateID int64      `json:"lastUpdateId"`
	Bids         [][]string `json:"bids"`
	Asks         [][]string `json:"asks"`
}

// BinanceClient talks to the Binance (or Binance.US) REST API.
type BinanceClient struct {
	name   string
	logger *slog.Logger
	cfg    config.ExchangeConfig
	http   *http.Client
}

// NewBinanceClient creates a new BinanceClient for the given venue name.
func NewBinanceClient(name string, logger *slog.Logger, cfg config.ExchangeConfig) *BinanceClient {
	return &BinanceClient{
		name:   name,
		logger: logger,
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout()},
	}
}

func (b *BinanceClient) GetName() string {
	return b.name
}

// FetchSymbols returns every symbol entry from exchangeInfo, whatever its status.
func (b *BinanceClient) FetchSymbols(ctx context.Context) ([]SymbolInfo, error) {
	body, err := b.get(ctx, "exchangeInfo", "/api/v3/exchangeInfo", nil)
	if err != nil {
		return nil, err
	}
	var info exchangeInfoResp
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, &model.ParseError{Op: "exchangeInfo", Err: err}
	}
	if info.Symbols == nil {
		return nil, &model.ParseError{Op: "exchangeInfo", Err: errors.New("missing symbols")}
	}
	b.logger.Debug("BinanceClient: fetched exchange info", "symbols", len(info.Symbols))
	return info.Symbols, nil
}

// FetchPairs returns the pairs listed in exchangeInfo. With TradingOnly set, halted symbols are left out.
func (b *BinanceClient) FetchPairs(ctx context.Context) ([]model.TradingPair, error) {
	symbols, err := b.FetchSymbols(ctx)
	if err != nil {
		return nil, err
	}
	pairs := make([]model.TradingPair, 0, len(symbols))
	for _, s := range symbols {
		if b.cfg.TradingOnly && s.Status != "TRADING" {
			continue
		}
		pairs = append(pairs, s.Pair())
	}
	return pairs, nil
}

// ExchangeInfoRaw returns the exchangeInfo body untouched.
func (b *BinanceClient) ExchangeInfoRaw(ctx context.Context) ([]byte, error) {
	return b.get(ctx, "exchangeInfo", "/api/v3/exchangeInfo", nil)
}

// BestAsk returns the lowest ask currently on the book.
func (b *BinanceClient) BestAsk(ctx context.Context, symbol string) (float64, error) {
	d, err := b.depth(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return topOfBook(symbol, model.SideAsk, d.Asks)
}

// BestBid returns the highest bid currently on the book.
func (b *BinanceClient) BestBid(ctx context.Context, symbol string) (float64, error) {
	d, err := b.depth(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return topOfBook(symbol, model.SideBid, d.Bids)
}

func (b *BinanceClient) depth(ctx context.Context, symbol string) (depthResp, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("limit", "1")
	body, err := b.get(ctx, "depth "+symbol, "/api/v3/depth", q)
	if err != nil {
		return depthResp{}, err
	}
	var d depthResp
	if err := json.Unmarshal(body, &d); err != nil {
		return depthResp{}, &model.ParseError{Op: "depth " + symbol, Err: err}
	}
	return d, nil
}

func (b *BinanceClient) get(ctx context.Context, op, path string, q url.Values) ([]byte, error) {
	endpoint := strings.TrimRight(b.cfg.RestURL, "/") + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &model.TransportError{Op: op, Err: err}
	}
	if b.cfg.APIKey != "" {
		req.Header.Set("X-MBX-APIKEY", b.cfg.APIKey)
	}

	resp, err := b.http.Do(req)
	if err != nil {
		return nil, &model.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &model.TransportError{Op: op, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &model.TransportError{Op: op, Err: fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}
	return body, nil
}

// topOfBook parses the first level of one side of a depth response.
// An empty side or a non-positive price means there is no usable quote.
func topOfBook(symbol string, side model.Side, levels [][]string) (float64, error) {
	if len(levels) == 0 {
		return 0, &model.QuoteUnavailableError{Symbol: symbol, Side: side}
	}
	op := fmt.Sprintf("%s %s price", symbol, side)
	if len(levels[0]) == 0 {
		return 0, &model.ParseError{Op: op, Err: errors.New("empty price level")}
	}
	px, err := decimal.NewFromString(levels[0][0])
	if err != nil {
		return 0, &model.ParseError{Op: op, Err: err}
	}
	if !px.IsPositive() {
		return 0, &model.QuoteUnavailableError{Symbol: symbol, Side: side}
	}
	f, _ := px.Float64()
	return f, nil
}

var _ ExchangeClient = (*BinanceClient)(nil)
