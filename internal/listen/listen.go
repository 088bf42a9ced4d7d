// Package listen produces the person's utterances, either from live audio
// through voice activity detection and a transcriber, or from text lines.
package listen

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"parley/internal/audio"
	"parley/internal/transcribe"
)

// ErrNoSpeech means speech was detected but nothing usable was heard.
var ErrNoSpeech = errors.New("listen: no speech recognized")

// Utterance is one cleaned line of the person's speech.
type Utterance struct {
	Text       string
	Raw        string
	Confidence float64
	Latency    time.Duration
}

// Listener blocks until the person has said something. Reset discards
// anything heard while the bot was talking.
type Listener interface {
	Listen(ctx context.Context) (Utterance, error)
	Reset()
}

// VoiceConfig tunes the voice listener.
type VoiceConfig struct {
	PollInterval time.Duration // delay between VAD checks
	WindowMs     int           // audio examined by the VAD
	VoiceMs      int           // audio sent to the transcriber
	VAD          audio.VADConfig
	Prompt       string // transcriber hint
}

// DefaultVoiceConfig returns the defaults for 16 kHz capture.
func DefaultVoiceConfig() VoiceConfig {
	return VoiceConfig{
		PollInterval: 100 * time.Millisecond,
		WindowMs:     2000,
		VoiceMs:      10000,
		VAD:          audio.DefaultVADConfig(),
	}
}

// Voice listens on an audio source.
type Voice struct {
	src         audio.Source
	transcriber transcribe.Transcriber
	cfg         VoiceConfig
	logger      zerolog.Logger
}

// NewVoice creates a voice listener.
func NewVoice(src audio.Source, t transcribe.Transcriber, cfg VoiceConfig, logger zerolog.Logger) *Voice {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultVoiceConfig().PollInterval
	}
	cfg.VAD.SampleRate = src.SampleRate()
	return &Voice{src: src, transcriber: t, cfg: cfg, logger: logger}
}

// Listen polls the VAD until an utterance ends, then transcribes the last
// VoiceMs of audio. Transcriber failures and text that cleans to nothing
// return ErrNoSpeech.
func (v *Voice) Listen(ctx context.Context) (Utterance, error) {
	ticker := time.NewTicker(v.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return Utterance{}, ctx.Err()
		case <-ticker.C:
		}

		window := v.src.Get(v.cfg.WindowMs)
		if ok, _ := audio.DetectSpeech(window, v.cfg.VAD, v.logger); !ok {
			continue
		}

		samples := v.src.Get(v.cfg.VoiceMs)
		res, err := v.transcriber.Transcribe(ctx, samples, v.cfg.Prompt)
		if err != nil {
			if ctx.Err() != nil {
				return Utterance{}, ctx.Err()
			}
			v.logger.Warn().Err(err).Msg("transcription failed")
			return Utterance{}, ErrNoSpeech
		}

		text := transcribe.Clean(res.Text)
		v.logger.Debug().
			Str("raw", res.Text).
			Str("text", text).
			Float64("confidence", res.Confidence).
			Dur("latency", res.Latency).
			Msg("heard")
		if text == "" {
			return Utterance{}, ErrNoSpeech
		}
		return Utterance{Text: text, Raw: res.Text, Confidence: res.Confidence, Latency: res.Latency}, nil
	}
}

// Reset clears the audio buffer.
func (v *Voice) Reset() { v.src.Clear() }

// Lines reads one utterance per line, for typing instead of talking.
type Lines struct {
	mu      sync.Mutex
	scanner *bufio.Scanner
	lines   chan string
	err     error // set before lines is closed
	once    sync.Once
}

// NewLines reads from r.
func NewLines(r io.Reader) *Lines {
	return &Lines{
		scanner: bufio.NewScanner(r),
		lines:   make(chan string),
	}
}

func (l *Lines) start() {
	go func() {
		for l.scanner.Scan() {
			l.lines <- l.scanner.Text()
		}
		l.err = l.scanner.Err()
		if l.err == nil {
			l.err = io.EOF
		}
		close(l.lines)
	}()
}

// Listen returns the next line, cleaned the same way as transcribed speech.
// io.EOF ends the conversation.
func (l *Lines) Listen(ctx context.Context) (Utterance, error) {
	l.once.Do(l.start)

	l.mu.Lock()
	defer l.mu.Unlock()

	select {
	case <-ctx.Done():
		return Utterance{}, ctx.Err()
	case line, ok := <-l.lines:
		if !ok {
			return Utterance{}, l.err
		}
		text := transcribe.Clean(line)
		if text == "" {
			return Utterance{Raw: line}, ErrNoSpeech
		}
		return Utterance{Text: text, Raw: strings.TrimSpace(line), Confidence: 1}, nil
	}
}

// Reset is a no-op; typed lines are never stale.
func (l *Lines) Reset() {}
