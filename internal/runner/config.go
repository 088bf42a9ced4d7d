package runner

import "parley/internal/sampling"

// Config holds configuration for the dialogue runner.
type Config struct {
	// ContextSize overrides the evaluator's reported context size when
	// positive.
	ContextSize int `json:"context_size"`

	// NPrev is how many trailing conversation tokens are re-evaluated after
	// a context overflow.
	// Default is 64.
	NPrev int `json:"n_prev"`

	// MaxTokens caps generated tokens per turn. Zero means unbounded.
	MaxTokens int `json:"max_tokens"`

	// VoiceID is passed to the synthesizer.
	// Default is 2.
	VoiceID int `json:"voice_id"`

	// Antiprompts are extra end-of-turn markers besides "<person><symbol>".
	Antiprompts []string `json:"antiprompts,omitempty"`

	Sampling sampling.Config `json:"sampling"`
}

// DefaultConfig returns a Config with the conversational defaults.
func DefaultConfig() Config {
	return Config{
		NPrev:    64,
		VoiceID:  2,
		Sampling: sampling.DefaultConfig(),
	}
}

// WithContextSize returns a copy of the config with the specified context size.
func (c Config) WithContextSize(n int) Config {
	c.ContextSize = n
	return c
}

// WithNPrev returns a copy of the config with the specified overflow tail.
func (c Config) WithNPrev(n int) Config {
	c.NPrev = n
	return c
}

// WithMaxTokens returns a copy of the config with the specified per-turn cap.
func (c Config) WithMaxTokens(n int) Config {
	c.MaxTokens = n
	return c
}

// WithSampling returns a copy of the config with the specified sampler settings.
func (c Config) WithSampling(s sampling.Config) Config {
	c.Sampling = s
	return c
}
