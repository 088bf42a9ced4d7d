// Package sampling turns a logit vector into the next token: end-of-turn
// bias, repetition penalties, then greedy or top-k/top-p/temperature
// sampling with a seeded generator.
package sampling

// Config holds sampler parameters.
type Config struct {
	TopK             int     `json:"top_k" yaml:"top_k"`
	TopP             float64 `json:"top_p" yaml:"top_p"`
	Temperature      float64 `json:"temperature" yaml:"temperature"`
	RepeatPenalty    float64 `json:"repeat_penalty" yaml:"repeat_penalty"`
	RepeatLastN      int     `json:"repeat_last_n" yaml:"repeat_last_n"`
	FrequencyPenalty float64 `json:"frequency_penalty" yaml:"frequency_penalty"`
	PresencePenalty  float64 `json:"presence_penalty" yaml:"presence_penalty"`
	PenalizeNewline  bool    `json:"penalize_nl" yaml:"penalize_nl"`
	EOSLogit         float64 `json:"eos_logit" yaml:"eos_logit"`
	Seed             uint64  `json:"seed" yaml:"seed"`
}

// DefaultConfig returns the conversational defaults: a short, low-temperature
// nucleus over the five best tokens.
func DefaultConfig() Config {
	return Config{
		TopK:          5,
		TopP:          0.80,
		Temperature:   0.30,
		RepeatPenalty: 1.1764,
		RepeatLastN:   256,
		Seed:          1,
	}
}
