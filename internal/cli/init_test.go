package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/internal/config"
	"parley/internal/prompt"
)

func TestRunInit(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer

	require.NoError(t, RunInit(&out, &InitOptions{Dir: dir}))

	assert.FileExists(t, filepath.Join(dir, "config.yaml"))
	assert.FileExists(t, filepath.Join(dir, "history.db"))
	assert.DirExists(t, filepath.Join(dir, "logs"))
	assert.Contains(t, out.String(), "Initialized parley at "+dir)

	data, err := os.ReadFile(filepath.Join(dir, "prompts", "dialogue.txt"))
	require.NoError(t, err)
	assert.Equal(t, prompt.DefaultDialogueTemplate+"\n", string(data))

	config.Reset()
	t.Cleanup(config.Reset)
	cfg, err := config.Load(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "history.db"), cfg.Storage.Path)
	assert.Equal(t, filepath.Join(dir, "session.bin"), cfg.Dialogue.SessionPath)
	assert.Equal(t, filepath.Join(dir, "prompts", "dialogue.txt"), cfg.Dialogue.PromptFile)
	assert.Equal(t, "Georgi", cfg.Dialogue.Person)
}

func TestRunInit_ExistingConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, RunInit(&bytes.Buffer{}, &InitOptions{Dir: dir}))

	err := RunInit(&bytes.Buffer{}, &InitOptions{Dir: dir})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")
}

func TestRunInit_KeepsEditedPromptUnlessForced(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, RunInit(&bytes.Buffer{}, &InitOptions{Dir: dir}))

	promptPath := filepath.Join(dir, "prompts", "dialogue.txt")
	require.NoError(t, os.WriteFile(promptPath, []byte("custom {0}{4}"), 0644))
	require.NoError(t, os.Remove(filepath.Join(dir, "config.yaml")))

	require.NoError(t, RunInit(&bytes.Buffer{}, &InitOptions{Dir: dir}))
	data, err := os.ReadFile(promptPath)
	require.NoError(t, err)
	assert.Equal(t, "custom {0}{4}", string(data))

	require.NoError(t, RunInit(&bytes.Buffer{}, &InitOptions{Dir: dir, Force: true}))
	data, err = os.ReadFile(promptPath)
	require.NoError(t, err)
	assert.Equal(t, prompt.DefaultDialogueTemplate+"\n", string(data))
}
