package audio

import (
	"math"

	"github.com/rs/zerolog"
)

// VADConfig tunes DetectSpeech.
type VADConfig struct {
	SampleRate int
	LastMs     int     // trailing window compared against the whole buffer
	Threshold  float64 // energy ratio below which the utterance is over
	FreqCutoff float64 // high-pass cutoff in Hz, 0 disables the filter
	Verbose    bool
}

// DefaultVADConfig returns the defaults for 16 kHz capture.
func DefaultVADConfig() VADConfig {
	return VADConfig{
		SampleRate: 16000,
		LastMs:     1250,
		Threshold:  0.6,
		FreqCutoff: 100,
	}
}

// Energy is the mean absolute amplitude of a window.
type Energy struct {
	All  float64
	Last float64
}

// HighPassFilter applies a single-pole high-pass filter in place.
func HighPassFilter(data []float32, cutoff float64, sampleRate int) {
	if len(data) == 0 {
		return
	}
	rc := 1.0 / (2.0 * math.Pi * cutoff)
	dt := 1.0 / float64(sampleRate)
	alpha := dt / (rc + dt)

	y := float64(data[0])
	prev := float64(data[0])
	for i := 1; i < len(data); i++ {
		cur := float64(data[i])
		y = alpha * (y + cur - prev)
		prev = cur
		data[i] = float32(y)
	}
}

// DetectSpeech reports whether an utterance just ended: the trailing LastMs
// are quiet compared with the window as a whole. A window no longer than
// LastMs never counts. samples is filtered in place.
func DetectSpeech(samples []float32, cfg VADConfig, logger zerolog.Logger) (bool, Energy) {
	nLast := cfg.SampleRate * cfg.LastMs / 1000
	if nLast <= 0 || nLast >= len(samples) {
		return false, Energy{}
	}
	if cfg.FreqCutoff > 0 {
		HighPassFilter(samples, cfg.FreqCutoff, cfg.SampleRate)
	}

	var e Energy
	for i, s := range samples {
		a := math.Abs(float64(s))
		e.All += a
		if i >= len(samples)-nLast {
			e.Last += a
		}
	}
	e.All /= float64(len(samples))
	e.Last /= float64(nLast)

	if cfg.Verbose {
		logger.Debug().
			Float64("energy_all", e.All).
			Float64("energy_last", e.Last).
			Float64("vad_thold", cfg.Threshold).
			Float64("freq_thold", cfg.FreqCutoff).
			Msg("vad")
	}

	return e.Last <= cfg.Threshold*e.All, e
}
