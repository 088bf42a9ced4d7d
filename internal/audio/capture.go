// Package audio buffers captured microphone samples and decides when the
// person has finished an utterance.
package audio

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/rs/zerolog"
)

// Source is what the listener needs from a capture device.
type Source interface {
	// Get returns up to the last ms milliseconds of audio.
	Get(ms int) []float32
	// Clear drops everything buffered so far.
	Clear()
	// SampleRate returns samples per second.
	SampleRate() int
}

// Capture is a fixed-size ring buffer of mono float32 samples in [-1, 1].
// It is filled by a reader goroutine and safe for concurrent use.
type Capture struct {
	sampleRate int

	mu   sync.Mutex
	buf  []float32
	pos  int // next write index
	size int // valid samples

	done chan struct{}
	err  error
}

// NewCapture allocates a buffer holding bufferMs of audio.
func NewCapture(sampleRate, bufferMs int) *Capture {
	n := max(1, sampleRate*bufferMs/1000)
	return &Capture{
		sampleRate: sampleRate,
		buf:        make([]float32, n),
		done:       make(chan struct{}),
	}
}

// SampleRate returns samples per second.
func (c *Capture) SampleRate() int { return c.sampleRate }

// Push appends samples, overwriting the oldest when full.
func (c *Capture) Push(samples []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(samples) >= len(c.buf) {
		copy(c.buf, samples[len(samples)-len(c.buf):])
		c.pos = 0
		c.size = len(c.buf)
		return
	}
	for len(samples) > 0 {
		n := copy(c.buf[c.pos:], samples)
		samples = samples[n:]
		c.pos = (c.pos + n) % len(c.buf)
		c.size = min(len(c.buf), c.size+n)
	}
}

// Get returns a copy of the most recent ms milliseconds, oldest first.
func (c *Capture) Get(ms int) []float32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := min(c.size, c.sampleRate*ms/1000)
	out := make([]float32, n)
	start := (c.pos - n + len(c.buf)) % len(c.buf)
	k := copy(out, c.buf[start:min(len(c.buf), start+n)])
	copy(out[k:], c.buf[:n-k])
	return out
}

// Clear drops all buffered audio.
func (c *Capture) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pos = 0
	c.size = 0
}

// Start reads signed 16-bit little-endian mono PCM from r until EOF, an
// error or ctx cancellation. Wait reports the outcome.
func (c *Capture) Start(ctx context.Context, r io.Reader, logger zerolog.Logger) {
	go func() {
		defer close(c.done)
		c.err = c.readLoop(ctx, r)
		if c.err != nil && !errors.Is(c.err, context.Canceled) {
			logger.Error().Err(c.err).Msg("audio capture stopped")
		} else {
			logger.Debug().Msg("audio capture finished")
		}
	}()
}

// StartCommand runs argv and captures its stdout as PCM.
func (c *Capture) StartCommand(ctx context.Context, argv []string, logger zerolog.Logger) error {
	if len(argv) == 0 {
		return errors.New("audio: empty capture command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("audio: capture command pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("audio: start %s: %w", argv[0], err)
	}
	logger.Info().Strs("command", argv).Int("sample_rate", c.sampleRate).Msg("audio capture started")

	c.Start(ctx, stdout, logger)
	go func() {
		<-c.done
		_ = cmd.Wait()
	}()
	return nil
}

// Wait blocks until the reader goroutine exits and returns its error; io.EOF
// is reported as nil.
func (c *Capture) Wait() error {
	<-c.done
	return c.err
}

const readChunkSamples = 1024

func (c *Capture) readLoop(ctx context.Context, r io.Reader) error {
	br := bufio.NewReaderSize(r, readChunkSamples*2)
	raw := make([]byte, readChunkSamples*2)
	samples := make([]float32, 0, readChunkSamples)
	var carry []byte

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := br.Read(raw)
		if n > 0 {
			data := append(carry, raw[:n]...)
			samples = samples[:0]
			i := 0
			for ; i+1 < len(data); i += 2 {
				s := int16(binary.LittleEndian.Uint16(data[i:]))
				samples = append(samples, float32(s)/32768)
			}
			carry = append(carry[:0], data[i:]...)
			c.Push(samples)
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
