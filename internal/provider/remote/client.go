// Package remote talks to an out-of-process evaluator over WebSocket. Every
// request and response is a single binary frame holding a CBOR envelope;
// requests are strictly sequential, matching the evaluator's single key/value
// cache.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"parley/internal/provider"
	"parley/pkg/logger"
)

const (
	name               = "remote"
	defaultTimeout     = 2 * time.Minute
	defaultDialTimeout = 15 * time.Second
)

func init() {
	provider.Register("ws", Open)
	provider.Register("wss", Open)
}

// Client implements provider.Provider, provider.Snapshotter and
// provider.Closer.
type Client struct {
	endpoint string
	timeout  time.Duration
	ctxSize  int
	logger   zerolog.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	nextID uint64
	closed bool

	pieceMu sync.RWMutex
	pieces  map[provider.Token]string
}

// Open is the provider.Factory for ws:// and wss:// endpoints. The connection
// is established lazily on the first request.
func Open(endpoint string, opts provider.Options) (provider.Provider, error) {
	return New(endpoint, opts), nil
}

// New creates a client for endpoint.
func New(endpoint string, opts provider.Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		endpoint: endpoint,
		timeout:  timeout,
		ctxSize:  opts.ContextSize,
		logger:   logger.Component("provider.remote"),
		pieces:   make(map[provider.Token]string),
	}
}

func (c *Client) Name() string { return name }

// Info returns the evaluator's model metadata. A configured context size
// overrides the reported one when it is smaller.
func (c *Client) Info(ctx context.Context) (provider.ModelInfo, error) {
	resp, err := c.call(ctx, &Request{Op: OpInfo})
	if err != nil {
		return provider.ModelInfo{}, err
	}
	if resp.Info == nil {
		return provider.ModelInfo{}, c.protocolError("info response without payload")
	}
	info := *resp.Info
	if c.ctxSize > 0 && (info.ContextSize == 0 || c.ctxSize < info.ContextSize) {
		info.ContextSize = c.ctxSize
	}
	return info, nil
}

func (c *Client) Tokenize(ctx context.Context, text string, addBOS bool) ([]provider.Token, error) {
	resp, err := c.call(ctx, &Request{Op: OpTokenize, Text: text, AddBOS: addBOS})
	if err != nil {
		return nil, err
	}
	return resp.Tokens, nil
}

// TokenToPiece is cached per token; pieces never change for a loaded model.
func (c *Client) TokenToPiece(ctx context.Context, tok provider.Token) (string, error) {
	c.pieceMu.RLock()
	piece, ok := c.pieces[tok]
	c.pieceMu.RUnlock()
	if ok {
		return piece, nil
	}

	resp, err := c.call(ctx, &Request{Op: OpPiece, Token: tok})
	if err != nil {
		return "", err
	}

	c.pieceMu.Lock()
	c.pieces[tok] = resp.Piece
	c.pieceMu.Unlock()
	return resp.Piece, nil
}

func (c *Client) Evaluate(ctx context.Context, tokens []provider.Token, nPast int) ([]float32, error) {
	resp, err := c.call(ctx, &Request{Op: OpEval, Tokens: tokens, NPast: nPast})
	if err != nil {
		return nil, err
	}
	if len(resp.Logits) == 0 {
		return nil, c.protocolError("eval response without logits")
	}
	return resp.Logits, nil
}

func (c *Client) Snapshot(ctx context.Context) ([]byte, error) {
	resp, err := c.call(ctx, &Request{Op: OpSnapshot})
	if err != nil {
		return nil, err
	}
	return resp.State, nil
}

func (c *Client) Restore(ctx context.Context, state []byte) error {
	_, err := c.call(ctx, &Request{Op: OpRestore, State: state})
	return err
}

// Close sends a close frame and releases the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.conn == nil {
		return nil
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := c.conn.Close()
	c.conn = nil
	return err
}

func (c *Client) call(ctx context.Context, req *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, provider.NewProviderError(provider.ErrCodeServiceUnavailable, "client closed", name, false)
	}
	if err := c.connectLocked(ctx); err != nil {
		return nil, err
	}

	c.nextID++
	req.ID = c.nextID

	data, err := marshal(req)
	if err != nil {
		return nil, provider.NewProviderError(provider.ErrCodeInvalidRequest, err.Error(), name, false)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	conn := c.conn
	_ = conn.SetWriteDeadline(deadline)
	_ = conn.SetReadDeadline(deadline)

	// A cancelled context interrupts a blocked read by expiring the deadline.
	// The callback holds its own reference; dropLocked may clear c.conn first.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetReadDeadline(time.Now())
	})
	defer stop()

	start := time.Now()
	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return nil, c.transportErrorLocked(ctx, req.Op, err)
	}

	msgType, payload, err := conn.ReadMessage()
	if err != nil {
		return nil, c.transportErrorLocked(ctx, req.Op, err)
	}
	if msgType != websocket.BinaryMessage {
		c.dropLocked()
		return nil, c.protocolError(fmt.Sprintf("unexpected frame type %d", msgType))
	}

	var resp Response
	if err := unmarshal(payload, &resp); err != nil {
		c.dropLocked()
		return nil, c.protocolError("decode response: " + err.Error())
	}
	if resp.ID != req.ID {
		c.dropLocked()
		return nil, c.protocolError(fmt.Sprintf("response id %d for request %d", resp.ID, req.ID))
	}

	c.logger.Trace().
		Str("op", req.Op).
		Int("tokens", len(req.Tokens)).
		Int("n_past", req.NPast).
		Dur("elapsed", time.Since(start)).
		Msg("evaluator call")

	if resp.Error != nil {
		pe := *resp.Error
		if pe.Provider == "" {
			pe.Provider = name
		}
		return nil, &pe
	}
	return &resp, nil
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	dialCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, defaultDialTimeout)
		defer cancel()
	}

	dialer := websocket.Dialer{HandshakeTimeout: defaultDialTimeout}
	conn, resp, err := dialer.DialContext(dialCtx, c.endpoint, nil)
	if err != nil {
		msg := err.Error()
		if resp != nil {
			msg = fmt.Sprintf("dial %s (status %d): %v", c.endpoint, resp.StatusCode, err)
		}
		return provider.NewProviderError(provider.ErrCodeServiceUnavailable, msg, name, true)
	}
	conn.SetReadLimit(256 << 20)

	c.conn = conn
	c.logger.Debug().Str("endpoint", c.endpoint).Msg("connected to evaluator")
	return nil
}

// dropLocked discards a connection whose framing can no longer be trusted.
// The next request redials.
func (c *Client) dropLocked() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) transportErrorLocked(ctx context.Context, op string, err error) error {
	c.dropLocked()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return provider.NewProviderError(provider.ErrCodeTimeout,
			fmt.Sprintf("%s: no response within %s", op, c.timeout), name, true)
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return provider.NewProviderError(provider.ErrCodeServiceUnavailable,
			fmt.Sprintf("%s: evaluator closed the connection", op), name, true)
	}
	return provider.NewProviderError(provider.ErrCodeNetworkError, fmt.Sprintf("%s: %v", op, err), name, true)
}

func (c *Client) protocolError(msg string) error {
	return provider.NewProviderError(provider.ErrCodeUnknown, "protocol: "+msg, name, false)
}
