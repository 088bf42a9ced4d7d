package remote

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"parley/internal/provider"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler serves the evaluator protocol on top of a local Provider. Each
// connection is handled sequentially; the provider's key/value cache is
// shared by all connections.
type Handler struct {
	p      provider.Provider
	logger zerolog.Logger
}

// NewHandler wraps p.
func NewHandler(p provider.Provider, logger zerolog.Logger) *Handler {
	return &Handler{p: p, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx := r.Context()
	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug().Err(err).Msg("evaluator connection closed")
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		var req Request
		var resp *Response
		if err := unmarshal(payload, &req); err != nil {
			resp = &Response{Error: provider.NewProviderError(provider.ErrCodeInvalidRequest, err.Error(), h.p.Name(), false)}
		} else {
			resp = h.dispatch(ctx, &req)
		}
		resp.ID = req.ID

		data, err := marshal(resp)
		if err != nil {
			h.logger.Error().Err(err).Str("op", req.Op).Msg("encode response")
			return
		}
		_ = conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
		if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
			return
		}
	}
}

func (h *Handler) dispatch(ctx context.Context, req *Request) *Response {
	var resp Response
	var err error

	switch req.Op {
	case OpInfo:
		var info provider.ModelInfo
		info, err = h.p.Info(ctx)
		resp.Info = &info
	case OpTokenize:
		resp.Tokens, err = h.p.Tokenize(ctx, req.Text, req.AddBOS)
	case OpPiece:
		resp.Piece, err = h.p.TokenToPiece(ctx, req.Token)
	case OpEval:
		resp.Logits, err = h.p.Evaluate(ctx, req.Tokens, req.NPast)
	case OpSnapshot, OpRestore:
		s, ok := h.p.(provider.Snapshotter)
		if !ok {
			err = provider.NewProviderError(provider.ErrCodeStateUnsupported, "provider has no state snapshots", h.p.Name(), false)
			break
		}
		if req.Op == OpSnapshot {
			resp.State, err = s.Snapshot(ctx)
		} else {
			err = s.Restore(ctx, req.State)
		}
	default:
		err = provider.NewProviderError(provider.ErrCodeInvalidRequest, "unknown op "+req.Op, h.p.Name(), false)
	}

	if err != nil {
		return &Response{Error: toProviderError(req.Op, err, h.p.Name())}
	}
	return &resp
}

// opErrorCodes classifies untyped provider errors by the op that failed.
var opErrorCodes = map[string]provider.ErrorCode{
	OpInfo:     provider.ErrCodeServiceUnavailable,
	OpTokenize: provider.ErrCodeTokenizeFailed,
	OpPiece:    provider.ErrCodePieceFailed,
	OpEval:     provider.ErrCodeEvalFailed,
}

func toProviderError(op string, err error, providerName string) *provider.ProviderError {
	var pe *provider.ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return provider.NewProviderError(provider.ErrCodeTimeout, op+": "+err.Error(), providerName, true)
	}
	code, ok := opErrorCodes[op]
	if !ok {
		code = provider.ErrCodeUnknown
	}
	return provider.NewProviderError(code, err.Error(), providerName, false)
}
