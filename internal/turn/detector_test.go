package turn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheck(t *testing.T) {
	d := NewDetector("Georgi:", "User:")

	tests := []struct {
		name  string
		tail  string
		match string
		ok    bool
	}{
		{"person antiprompt", " Sure, I can help.\nGeorgi:", "Georgi:", true},
		{"second antiprompt", "bye\nUser:", "User:", true},
		{"not a suffix", "Georgi: said hello", "", false},
		{"partial", "\nGeorg", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			match, ok := d.Check(tt.tail)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.match, match)
		})
	}
}

func TestCheck_FirstMatchWins(t *testing.T) {
	d := NewDetector("a:", "ba:")
	match, ok := d.Check("xba:")

	assert.True(t, ok)
	assert.Equal(t, "a:", match)
}

func TestNewDetector_DropsEmptyAndDuplicates(t *testing.T) {
	d := NewDetector("Georgi:", "", "Georgi:", "User:")
	assert.Equal(t, []string{"Georgi:", "User:"}, d.Antiprompts())

	_, ok := NewDetector().Check("anything")
	assert.False(t, ok)
}

func TestStrip(t *testing.T) {
	d := NewDetector("Georgi:")

	assert.Equal(t, " Hello there!\n", d.Strip(" Hello there!\nGeorgi:", "Georgi:"))
	assert.Equal(t, "unchanged", d.Strip("unchanged", ""))
}

func TestSpeakable(t *testing.T) {
	assert.Equal(t, `He said hi.`, Speakable(` He said "hi".`+"\n"))
	assert.Equal(t, "", Speakable(" \n "))
}
