package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/internal/config"
)

func loadTestConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dialogue:\n  person: Ada\n"), 0644))
	config.Reset()
	t.Cleanup(config.Reset)
	_, err := config.Load(path)
	require.NoError(t, err)
	return path
}

func runConfigCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewConfigCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigCmd_Get(t *testing.T) {
	loadTestConfig(t)

	out, err := runConfigCmd(t, "get", "dialogue.person")
	require.NoError(t, err)
	assert.Equal(t, "Ada\n", out)

	_, err = runConfigCmd(t, "get", "dialogue.nope")
	assert.Error(t, err)
}

func TestConfigCmd_Set(t *testing.T) {
	path := loadTestConfig(t)

	out, err := runConfigCmd(t, "set", "sampling.top_k", "40")
	require.NoError(t, err)
	assert.Equal(t, "Set sampling.top_k = 40\n", out)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "top_k: 40")

	_, err = runConfigCmd(t, "set", "sampling.top_p", "1.5")
	assert.Error(t, err)

	_, err = runConfigCmd(t, "set", "nonexistent.key", "1")
	assert.Error(t, err)
}

func TestConfigCmd_ListAndPath(t *testing.T) {
	path := loadTestConfig(t)

	out, err := runConfigCmd(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "dialogue.person = Ada\n")
	assert.Contains(t, out, "sampling.repeat_last_n = 256\n")

	out, err = runConfigCmd(t, "path")
	require.NoError(t, err)
	assert.Equal(t, path+"\n", out)
}

func TestFlattenSettings(t *testing.T) {
	keys := flattenSettings("", map[string]any{
		"a": 1,
		"b": map[string]any{"c": 2, "d": map[string]any{"e": 3}},
	})
	assert.ElementsMatch(t, []string{"a", "b.c", "b.d.e"}, keys)
}
