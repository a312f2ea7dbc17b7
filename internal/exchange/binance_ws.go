package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"triscan/internal/config"
	"triscan/internal/model"
)

type wsRequest struct {
	ID     string         `json:"id"`
	Method string         `json:"method"`
	Params map[string]any `json:"params"`
}

type wsError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

type wsResponse struct {
	ID     string          `json:"id"`
	Status int             `json:"status"`
	Result json.RawMessage `json:"result"`
	Error  *wsError        `json:"error"`
}

// BinanceWSOracle prices legs through the Binance WebSocket API "depth" method.
// Requests are serialized over one connection; a broken connection is dropped and redialed on the next call.
type BinanceWSOracle struct {
	logger  *slog.Logger
	url     string
	apiKey  string
	timeout time.Duration
	dialer  *websocket.Dialer

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewBinanceWSOracle creates an oracle for cfg.WSAPIURL. No connection is made until the first query.
func NewBinanceWSOracle(logger *slog.Logger, cfg config.ExchangeConfig) *BinanceWSOracle {
	return &BinanceWSOracle{
		logger:  logger,
		url:     cfg.WSAPIURL,
		apiKey:  cfg.APIKey,
		timeout: cfg.Timeout(),
		dialer:  websocket.DefaultDialer,
	}
}

// BestAsk returns the lowest ask currently on the book.
func (o *BinanceWSOracle) BestAsk(ctx context.Context, symbol string) (float64, error) {
	d, err := o.depth(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return topOfBook(symbol, model.SideAsk, d.Asks)
}

// BestBid returns the highest bid currently on the book.
func (o *BinanceWSOracle) BestBid(ctx context.Context, symbol string) (float64, error) {
	d, err := o.depth(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return topOfBook(symbol, model.SideBid, d.Bids)
}

// Close closes the underlying connection if one is open.
func (o *BinanceWSOracle) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.conn == nil {
		return nil
	}
	err := o.conn.Close()
	o.conn = nil
	return err
}

func (o *BinanceWSOracle) depth(ctx context.Context, symbol string) (depthResp, error) {
	op := "ws depth " + symbol

	o.mu.Lock()
	defer o.mu.Unlock()

	// Callers may have queued on the lock past their deadline.
	if err := ctx.Err(); err != nil {
		return depthResp{}, &model.TransportError{Op: op, Err: err}
	}

	conn, err := o.connect(ctx)
	if err != nil {
		return depthResp{}, &model.TransportError{Op: op, Err: err}
	}

	deadline := o.deadline(ctx)
	_ = conn.SetWriteDeadline(deadline)
	_ = conn.SetReadDeadline(deadline)

	// Cancellation unblocks a pending write or read. Once that has fired the
	// connection's deadlines are no longer ours, so it is not reused.
	stop := context.AfterFunc(ctx, func() {
		now := time.Now()
		_ = conn.SetWriteDeadline(now)
		_ = conn.SetReadDeadline(now)
	})
	defer func() {
		if !stop() {
			o.drop()
		}
	}()

	req := wsRequest{
		ID:     uuid.NewString(),
		Method: "depth",
		Params: map[string]any{"symbol": symbol, "limit": 1},
	}
	if err := conn.WriteJSON(req); err != nil {
		o.drop()
		return depthResp{}, &model.TransportError{Op: op, Err: ioErr(ctx, err)}
	}

	var resp wsResponse
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			o.drop()
			return depthResp{}, &model.TransportError{Op: op, Err: ioErr(ctx, err)}
		}
		resp = wsResponse{}
		if err := json.Unmarshal(message, &resp); err != nil {
			return depthResp{}, &model.ParseError{Op: op, Err: err}
		}
		if resp.ID == req.ID {
			break
		}
		o.logger.Debug("BinanceWSOracle: skipping unrelated message", "id", resp.ID)
	}

	if resp.Status != http.StatusOK {
		if resp.Error != nil {
			return depthResp{}, &model.TransportError{Op: op, Err: fmt.Errorf("status %d: code %d: %s", resp.Status, resp.Error.Code, resp.Error.Msg)}
		}
		return depthResp{}, &model.TransportError{Op: op, Err: fmt.Errorf("status %d", resp.Status)}
	}

	var d depthResp
	if err := json.Unmarshal(resp.Result, &d); err != nil {
		return depthResp{}, &model.ParseError{Op: op, Err: err}
	}
	return d, nil
}

// connect must be called with o.mu held.
func (o *BinanceWSOracle) connect(ctx context.Context) (*websocket.Conn, error) {
	if o.conn != nil {
		return o.conn, nil
	}
	var header http.Header
	if o.apiKey != "" {
		header = http.Header{"X-MBX-APIKEY": []string{o.apiKey}}
	}
	o.logger.Info("BinanceWSOracle: connecting to WebSocket API", "url", o.url)
	c, _, err := o.dialer.DialContext(ctx, o.url, header)
	if err != nil {
		o.logger.Error("BinanceWSOracle: WebSocket connection failed", "error", err)
		return nil, err
	}
	o.conn = c
	return c, nil
}

// drop must be called with o.mu held.
func (o *BinanceWSOracle) drop() {
	if o.conn != nil {
		_ = o.conn.Close()
		o.conn = nil
	}
}

// ioErr reports the context error when cancellation is what broke the round trip.
func ioErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

func (o *BinanceWSOracle) deadline(ctx context.Context) time.Time {
	var deadline time.Time
	if o.timeout > 0 {
		deadline = time.Now().Add(o.timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	return deadline
}

var _ PriceOracle = (*BinanceWSOracle)(nil)
