package cli

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/internal/provider"
	"parley/internal/sessioncache"
)

func TestRunCacheInfo_Missing(t *testing.T) {
	store := sessioncache.NewStore(filepath.Join(t.TempDir(), "session.bin"), sessioncache.CompressionNone)

	var out bytes.Buffer
	require.NoError(t, runCacheInfo(&out, store))
	assert.Contains(t, out.String(), "No session cache at")
}

func TestRunCacheInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.bin")
	require.NoError(t, sessioncache.NewStore(path, sessioncache.CompressionZstd).Save(&sessioncache.Record{
		Tokens:  []provider.Token{1, 2, 3, 4},
		State:   bytes.Repeat([]byte{7}, 1024),
		Model:   "scripted",
		SavedAt: time.Unix(1700000000, 0),
	}))

	var out bytes.Buffer
	require.NoError(t, runCacheInfo(&out, sessioncache.NewStore(path, sessioncache.CompressionNone)))

	assert.Contains(t, out.String(), "Tokens:      4")
	assert.Contains(t, out.String(), "State:       1024 bytes")
	assert.Contains(t, out.String(), "Compression: zstd")
	assert.Contains(t, out.String(), "Model:       scripted")
}

func TestCacheCmd_Clear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.bin")
	require.NoError(t, sessioncache.NewStore(path, sessioncache.CompressionNone).Save(&sessioncache.Record{
		Tokens: []provider.Token{1},
	}))

	cmd := NewCacheCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"clear", "--session", path})
	require.NoError(t, cmd.Execute())

	assert.NoFileExists(t, path)
	assert.Contains(t, out.String(), "Removed "+path)

	// Clearing twice is fine.
	cmd.SetArgs([]string{"clear", "--session", path})
	require.NoError(t, cmd.Execute())
}

func TestCacheCmd_NoPath(t *testing.T) {
	cmd := NewCacheCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"info"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no session cache configured")
}
