package transcribe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "What is a cat?", "What is a cat?"},
		{"brackets", "[BLANK_AUDIO] Hello there.", "Hello there."},
		{"parentheses", "(music) Name a color (softly).", "Name a color ."},
		{"lazy brackets", "[a] keep [b]", "keep"},
		{"disallowed chars", "Héllo, wörld! #1 — don't-stop: ok", "Hllo, wrld! 1  don't-stop: ok"},
		{"first line only", "first line\nsecond line", "first line"},
		{"whitespace", "  \t padded \t ", "padded"},
		{"only annotation", "[BLANK_AUDIO]", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.in))
		})
	}
}
