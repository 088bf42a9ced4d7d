package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testVars() Vars {
	return Vars{
		Person:     "Georgi",
		BotName:    "LLaMA",
		ChatSymbol: ":",
		Now:        time.Date(2024, 3, 9, 7, 5, 0, 0, time.Local),
	}
}

func TestDialogue_Default(t *testing.T) {
	out, err := NewBuilder(testVars()).Dialogue()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, " Text transcript of a never ending dialog, where Georgi interacts"))
	assert.Contains(t, out, "LLaMA: It is 07:05 o'clock.")
	assert.Contains(t, out, "LLaMA: We are in 2024.")
	assert.True(t, strings.HasSuffix(out, "\nGeorgi:"))
	assert.NotContains(t, out, "{")
}

func TestDialogue_CustomTemplate(t *testing.T) {
	out, err := NewBuilder(testVars()).WithTemplate("{0} talks to {1} at {2} in {3}{4}").Dialogue()
	require.NoError(t, err)
	assert.Equal(t, " Georgi talks to LLaMA at 07:05 in 2024:", out)
}

func TestDialogue_Empty(t *testing.T) {
	_, err := NewBuilder(testVars()).WithTemplate("  ").Dialogue()
	assert.ErrorIs(t, err, ErrEmptyPrompt)
}

func TestLoadTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.txt")
	require.NoError(t, os.WriteFile(path, []byte("Chat between {0} and {1}.\n{0}{4}\n"), 0644))

	b := NewBuilder(testVars())
	require.NoError(t, b.LoadTemplate(path))

	out, err := b.Dialogue()
	require.NoError(t, err)
	assert.Equal(t, " Chat between Georgi and LLaMA.\nGeorgi:", out)
}

func TestLoadTemplate_Missing(t *testing.T) {
	err := NewBuilder(testVars()).LoadTemplate(filepath.Join(t.TempDir(), "absent.txt"))
	assert.ErrorIs(t, err, ErrPromptFile)
}

func TestWhisperAndTurnHelpers(t *testing.T) {
	b := NewBuilder(testVars())

	assert.Equal(t, "A conversation with a person called LLaMA.", b.Whisper())
	assert.Equal(t, "Georgi:", b.Antiprompt())
	assert.Equal(t, " what is a dog\nLLaMA:", b.UserTurn("what is a dog"))
}

func TestNewBuilder_DefaultsNow(t *testing.T) {
	v := testVars()
	v.Now = time.Time{}

	out, err := NewBuilder(v).WithTemplate("{3}").Dialogue()
	require.NoError(t, err)
	assert.Equal(t, " "+time.Now().Format("2006"), out)
}
