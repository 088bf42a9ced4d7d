package gateway

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"parley/internal/gateway/handlers"
	"parley/internal/provider"
	"parley/internal/provider/remote"
	"parley/internal/provider/scripted"
)

func TestServerHealthEndpoint(t *testing.T) {
	srv := NewServer(Config{}, scripted.New(256, "LLaMA:"), zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp handlers.HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if resp.Model == nil || resp.Model.Model != "scripted" {
		t.Errorf("model = %+v, want scripted", resp.Model)
	}
}

func TestServerNotFound(t *testing.T) {
	srv := NewServer(Config{}, scripted.New(256, "LLaMA:"), zerolog.Nop())

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v2/eval", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestServerEvaluatorRoute(t *testing.T) {
	model := scripted.New(256, "LLaMA:", " Hi.")
	srv := NewServer(Config{EvalPath: "/eval"}, model, zerolog.Nop())

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client := remote.New("ws"+strings.TrimPrefix(ts.URL, "http")+"/eval", provider.Options{Timeout: 5 * time.Second})
	defer client.Close()

	ctx := context.Background()
	info, err := client.Info(ctx)
	if err != nil {
		t.Fatalf("Info() error = %v", err)
	}
	if info.ContextSize != 256 {
		t.Errorf("context size = %d, want 256", info.ContextSize)
	}

	toks, err := client.Tokenize(ctx, "Georgi: hello\nLLaMA:", true)
	if err != nil {
		t.Fatalf("Tokenize() error = %v", err)
	}
	logits, err := client.Evaluate(ctx, toks, 0)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if len(logits) != info.VocabSize {
		t.Errorf("len(logits) = %d, want %d", len(logits), info.VocabSize)
	}
	if got := model.EvaluatedTokens(); got != len(toks) {
		t.Errorf("evaluated = %d, want %d", got, len(toks))
	}
}

func TestServerStartShutdown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := NewServer(Config{}, scripted.New(64, "LLaMA:"), zerolog.Nop())

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()

	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}
}
