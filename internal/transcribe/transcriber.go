// Package transcribe turns captured audio into text through a speech
// recognition service.
package transcribe

import (
	"context"
	"errors"
	"time"
)

// Error definitions.
var (
	ErrConnectionFailed = errors.New("failed to connect to whisper server")
	ErrInvalidResponse  = errors.New("invalid response from whisper server")
	ErrRequestTimeout   = errors.New("request timeout")
)

// Result is one transcription.
type Result struct {
	Text       string
	Confidence float64 // mean token probability, 0 when unknown
	Latency    time.Duration
}

// Transcriber converts mono float32 samples to text. prompt biases the
// recognizer toward the conversation's vocabulary.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []float32, prompt string) (Result, error)
}
