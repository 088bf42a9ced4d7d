package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"parley/internal/audio"
)

// Config configures the whisper.cpp server client.
type Config struct {
	Endpoint   string
	Language   string
	Translate  bool
	MaxTokens  int
	AudioCtx   int
	SampleRate int
	Timeout    time.Duration
}

// Default values.
const (
	DefaultEndpoint = "http://127.0.0.1:8080"
	DefaultTimeout  = 30 * time.Second
)

// WhisperClient posts audio to a whisper.cpp server's /inference endpoint.
type WhisperClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewWhisperClient creates a client, filling unset fields with defaults.
func NewWhisperClient(cfg Config) *WhisperClient {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")

	return &WhisperClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type inferenceResponse struct {
	Text     string             `json:"text"`
	Segments []inferenceSegment `json:"segments"`
	Error    string             `json:"error"`
}

type inferenceSegment struct {
	Text       string          `json:"text"`
	AvgLogprob *float64        `json:"avg_logprob"`
	Words      []inferenceWord `json:"words"`
}

type inferenceWord struct {
	Word        string  `json:"word"`
	Probability float64 `json:"probability"`
}

// Transcribe sends samples as a 16-bit WAV file.
func (c *WhisperClient) Transcribe(ctx context.Context, samples []float32, prompt string) (Result, error) {
	start := time.Now()

	body, contentType, err := c.buildForm(samples, prompt)
	if err != nil {
		return Result{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint+"/inference", body)
	if err != nil {
		return Result{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Result{}, ErrRequestTimeout
		}
		if errors.Is(err, context.Canceled) {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, handleErrorResponse(resp.StatusCode, data)
	}

	var out inferenceResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if out.Error != "" {
		return Result{}, fmt.Errorf("whisper error: %s", out.Error)
	}

	return Result{
		Text:       strings.TrimSpace(out.Text),
		Confidence: confidence(out.Segments),
		Latency:    time.Since(start),
	}, nil
}

func (c *WhisperClient) buildForm(samples []float32, prompt string) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", "speech.wav")
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(audio.EncodeWAV(samples, c.cfg.SampleRate)); err != nil {
		return nil, "", fmt.Errorf("failed to write audio: %w", err)
	}

	fields := map[string]string{
		"response_format": "verbose_json",
		"temperature":     "0.0",
		"language":        c.cfg.Language,
		"translate":       strconv.FormatBool(c.cfg.Translate),
		"no_timestamps":   "true",
	}
	if prompt != "" {
		fields["prompt"] = prompt
	}
	if c.cfg.MaxTokens > 0 {
		fields["max_tokens"] = strconv.Itoa(c.cfg.MaxTokens)
	}
	if c.cfg.AudioCtx > 0 {
		fields["audio_ctx"] = strconv.Itoa(c.cfg.AudioCtx)
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("failed to write field %s: %w", k, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// confidence averages word probabilities when the server reports them,
// falling back to the segments' mean log probability.
func confidence(segments []inferenceSegment) float64 {
	var sum float64
	var n int
	for _, s := range segments {
		for _, w := range s.Words {
			sum += w.Probability
			n++
		}
	}
	if n > 0 {
		return sum / float64(n)
	}
	for _, s := range segments {
		if s.AvgLogprob != nil {
			sum += math.Exp(*s.AvgLogprob)
			n++
		}
	}
	if n > 0 {
		return sum / float64(n)
	}
	return 0
}

func handleErrorResponse(statusCode int, body []byte) error {
	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return fmt.Errorf("whisper error (status %d): %s", statusCode, errResp.Error)
	}
	if statusCode == http.StatusServiceUnavailable {
		return ErrConnectionFailed
	}
	return fmt.Errorf("whisper returned status %d: %s", statusCode, string(body))
}
