package speech

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "speak")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
	return path
}

func TestCommand_PassesVoiceAndText(t *testing.T) {
	outFile := filepath.Join(t.TempDir(), "out.txt")
	script := writeScript(t, `printf '%s|%s' "$1" "$2" > `+outFile+"\n")

	status, err := NewCommand(script, time.Second, zerolog.Nop()).Speak(context.Background(), 2, `He said "hello"; $(rm -rf /)`)
	require.NoError(t, err)
	assert.Zero(t, status)

	got, err := os.ReadFile(outFile)
	require.NoError(t, err)
	assert.Equal(t, "2|He said hello; $(rm -rf /)", string(got))
}

func TestCommand_NonZeroStatus(t *testing.T) {
	script := writeScript(t, "exit 3\n")

	status, err := NewCommand(script, time.Second, zerolog.Nop()).Speak(context.Background(), 2, "hi")
	require.NoError(t, err)
	assert.Equal(t, 3, status)
}

func TestCommand_Missing(t *testing.T) {
	status, err := NewCommand(filepath.Join(t.TempDir(), "nope"), time.Second, zerolog.Nop()).Speak(context.Background(), 2, "hi")
	assert.Error(t, err)
	assert.Equal(t, -1, status)
}

func TestCommand_EmptyTextSkipped(t *testing.T) {
	status, err := NewCommand("/definitely/not/here", 0, zerolog.Nop()).Speak(context.Background(), 2, ` "" `)
	require.NoError(t, err)
	assert.Zero(t, status)
}

func TestSilent(t *testing.T) {
	status, err := Silent{}.Speak(context.Background(), 1, "anything")
	assert.NoError(t, err)
	assert.Zero(t, status)
}
