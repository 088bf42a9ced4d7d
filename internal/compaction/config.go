package compaction

// Config holds configuration for context window management.
type Config struct {
	// Capacity is the model context size in tokens.
	Capacity int `json:"capacity" yaml:"capacity"`

	// NPrev is how many recent conversation tokens are re-evaluated after an
	// overflow.
	// Default: 64
	NPrev int `json:"n_prev" yaml:"n_prev"`
}

// DefaultConfig returns a Config with default values for a 2048 token window.
func DefaultConfig() Config {
	return Config{
		Capacity: 2048,
		NPrev:    64,
	}
}
