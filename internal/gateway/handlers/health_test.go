package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"parley/internal/provider"
	"parley/internal/provider/scripted"
)

type brokenProvider struct {
	provider.Provider
	err error
}

func (b brokenProvider) Info(context.Context) (provider.ModelInfo, error) {
	return provider.ModelInfo{}, b.err
}

func TestHealthHandler(t *testing.T) {
	handler := HealthHandler(scripted.New(512, "LLaMA:"), time.Now().Add(-3*time.Second), time.Second)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}

	if resp.Status != "ok" {
		t.Errorf("status = %s, want ok", resp.Status)
	}
	if resp.Uptime < 3 {
		t.Errorf("uptime = %d, want >= 3", resp.Uptime)
	}
	if resp.Model == nil || resp.Model.ContextSize != 512 {
		t.Errorf("model = %+v, want context size 512", resp.Model)
	}
}

func TestHealthHandler_Unavailable(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   provider.ErrorCode
		wantMsg    string
	}{
		{
			name:       "untyped error",
			err:        errors.New("model not loaded"),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   provider.ErrCodeUnknown,
			wantMsg:    "model not loaded",
		},
		{
			name:       "timeout",
			err:        provider.NewProviderError(provider.ErrCodeTimeout, "info timed out", "remote", true),
			wantStatus: http.StatusGatewayTimeout,
			wantCode:   provider.ErrCodeTimeout,
			wantMsg:    "info timed out",
		},
		{
			name:       "unreachable",
			err:        provider.NewProviderError(provider.ErrCodeServiceUnavailable, "dial failed", "remote", true),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   provider.ErrCodeServiceUnavailable,
			wantMsg:    "dial failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := HealthHandler(brokenProvider{err: tt.err}, time.Now(), time.Second)

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}

			var resp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("unmarshal error: %v", err)
			}
			if resp.Error.Code != string(tt.wantCode) {
				t.Errorf("code = %s, want %s", resp.Error.Code, tt.wantCode)
			}
			if resp.Error.Message != tt.wantMsg {
				t.Errorf("message = %s, want %s", resp.Error.Message, tt.wantMsg)
			}
		})
	}
}

func TestNotFound(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	w := httptest.NewRecorder()

	NotFound(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestSendJSON_NoBody(t *testing.T) {
	w := httptest.NewRecorder()
	SendJSON(w, http.StatusNoContent, nil)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if w.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %s, want application/json", ct)
	}
}
