package audio

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func tone(n int, amp float64, sampleRate int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
	}
	return out
}

func TestDetectSpeech_UtteranceEnded(t *testing.T) {
	cfg := DefaultVADConfig()
	// 750 ms of speech followed by 1250 ms of near silence
	samples := append(tone(12000, 0.5, 16000), tone(20000, 0.001, 16000)...)

	ok, e := DetectSpeech(samples, cfg, zerolog.Nop())
	assert.True(t, ok)
	assert.Less(t, e.Last, e.All)
}

func TestDetectSpeech_StillTalking(t *testing.T) {
	cfg := DefaultVADConfig()
	samples := tone(32000, 0.5, 16000)

	ok, _ := DetectSpeech(samples, cfg, zerolog.Nop())
	assert.False(t, ok)
}

func TestDetectSpeech_TooShort(t *testing.T) {
	cfg := DefaultVADConfig()
	ok, e := DetectSpeech(tone(20000, 0.5, 16000), cfg, zerolog.Nop())

	assert.False(t, ok)
	assert.Zero(t, e.All)
}

func TestHighPassFilter_RemovesDC(t *testing.T) {
	data := make([]float32, 16000)
	for i := range data {
		data[i] = 0.8
	}
	HighPassFilter(data, 100, 16000)

	assert.InDelta(t, 0.0, data[len(data)-1], 1e-3)
}

func TestHighPassFilter_Empty(t *testing.T) {
	HighPassFilter(nil, 100, 16000)
}
