package sessioncache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/internal/provider"
)

func sampleRecord(n int) *Record {
	tokens := make([]provider.Token, n)
	for i := range tokens {
		tokens[i] = provider.Token(i % 17)
	}
	state := make([]byte, 4096)
	for i := range state {
		state[i] = byte(i % 7)
	}
	return &Record{
		Tokens:  tokens,
		State:   state,
		Model:   "llama-7b",
		SavedAt: time.Unix(1700000000, 0).UTC(),
	}
}

func TestEncodeDecode_AllCompressions(t *testing.T) {
	for _, tag := range []CompressionTag{CompressionNone, CompressionLZ4, CompressionZstd} {
		t.Run(tag.String(), func(t *testing.T) {
			rec := sampleRecord(500)

			data, err := Encode(rec, tag)
			require.NoError(t, err)

			got, used, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, tag, used)
			assert.Equal(t, rec.Tokens, got.Tokens)
			assert.Equal(t, rec.State, got.State)
			assert.Equal(t, rec.Model, got.Model)
			assert.True(t, rec.SavedAt.Equal(got.SavedAt))
		})
	}
}

func TestEncode_IncompressibleStoredRaw(t *testing.T) {
	rec := &Record{Tokens: []provider.Token{1}}

	data, err := Encode(rec, CompressionLZ4)
	require.NoError(t, err)

	_, used, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, CompressionNone, used)
}

func TestDecode_Corrupt(t *testing.T) {
	good, err := Encode(sampleRecord(100), CompressionZstd)
	require.NoError(t, err)

	flip := func(i int) []byte {
		b := append([]byte(nil), good...)
		b[i] ^= 0xff
		return b
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short", good[:10]},
		{"bad magic", flip(0)},
		{"bad version", flip(4)},
		{"bad checksum", flip(20)},
		{"bad payload", flip(len(good) - 1)},
		{"truncated payload", good[:len(good)-3]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Decode(tt.data)
			assert.ErrorIs(t, err, ErrCorrupt)
		})
	}
}

func TestStore_LoadAbsent(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "session.bin"), CompressionZstd)

	rec, ok, err := s.Load()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, rec)
}

func TestStore_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.bin")
	s := NewStore(path, CompressionLZ4)
	rec := sampleRecord(64)

	require.NoError(t, s.Save(rec))

	got, ok, err := s.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rec.Tokens, got.Tokens)

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStore_SaveOverwrites(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "session.bin"), CompressionNone)

	require.NoError(t, s.Save(sampleRecord(10)))
	require.NoError(t, s.Save(sampleRecord(20)))

	got, _, err := s.Load()
	require.NoError(t, err)
	assert.Len(t, got.Tokens, 20)
}

func TestStore_LoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.bin")
	require.NoError(t, os.WriteFile(path, []byte("definitely not a cache"), 0644))

	_, _, err := NewStore(path, CompressionNone).Load()
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestStore_EmptyRecordMatchesAbsent(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "session.bin"), CompressionZstd)
	require.NoError(t, s.Save(&Record{}))

	rec, ok, err := s.Load()
	require.NoError(t, err)
	require.True(t, ok)

	prompt := []provider.Token{1, 2, 3}
	fromEmpty := NewCache(rec, true)
	fromAbsent := NewCache(nil, true)
	assert.Equal(t, fromAbsent.Reuse(prompt), fromEmpty.Reuse(prompt))
	assert.Equal(t, fromAbsent.Consumed(), fromEmpty.Consumed())
}

func TestStore_StatAndRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.bin")
	s := NewStore(path, CompressionZstd)
	require.NoError(t, s.Save(sampleRecord(300)))

	info, err := s.Stat()
	require.NoError(t, err)
	assert.Equal(t, 300, info.Tokens)
	assert.Equal(t, 4096, info.StateBytes)
	assert.Equal(t, "llama-7b", info.Model)
	assert.Equal(t, CompressionZstd, info.Compression)
	assert.Positive(t, info.Size)

	require.NoError(t, s.Remove())
	require.NoError(t, s.Remove())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestParseCompressionTag(t *testing.T) {
	for _, name := range []string{"none", "lz4", "zstd"} {
		tag, err := ParseCompressionTag(name)
		require.NoError(t, err)
		assert.Equal(t, name, tag.String())
	}
	_, err := ParseCompressionTag("brotli")
	assert.Error(t, err)
}

func TestDecompress_LengthMismatch(t *testing.T) {
	for _, tag := range []CompressionTag{CompressionNone, CompressionZstd} {
		_, err := decompress([]byte("abc"), tag, 4)
		assert.Error(t, err, tag.String())
	}
	_, err := decompress([]byte("abc"), CompressionTag(9), 3)
	assert.ErrorContains(t, err, "unknown(9)")
}
