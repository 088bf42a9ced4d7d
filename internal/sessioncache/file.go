package sessioncache

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"parley/internal/provider"
)

// File layout:
//
//	magic "PRLY" | version u8 | compression u8 | raw length u64 LE | blake3(payload) [32] | payload
//
// The payload is the CBOR encoded Record, compressed per the tag.
const (
	magic         = "PRLY"
	formatVersion = 1
	headerSize    = len(magic) + 1 + 1 + 8 + blake3Size
	blake3Size    = 32
)

// Record is the persisted cache content.
type Record struct {
	Tokens  []provider.Token `cbor:"1,keyasint"`
	State   []byte           `cbor:"2,keyasint,omitempty"`
	Model   string           `cbor:"3,keyasint,omitempty"`
	SavedAt time.Time        `cbor:"4,keyasint"`
}

// Info describes a cache file without the evaluator state.
type Info struct {
	Path        string
	Size        int64
	Compression CompressionTag
	Tokens      int
	StateBytes  int
	Model       string
	SavedAt     time.Time
}

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("sessioncache: CBOR encoder initialization failed: " + err.Error())
	}
}

// Encode serializes rec using the requested compression.
func Encode(rec *Record, tag CompressionTag) ([]byte, error) {
	raw, err := encMode.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	payload, used, err := compress(raw, tag)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, headerSize+len(payload))
	buf = append(buf, magic...)
	buf = append(buf, formatVersion, byte(used))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(raw)))
	sum := blake3.Sum256(payload)
	buf = append(buf, sum[:]...)
	buf = append(buf, payload...)
	return buf, nil
}

// Decode parses a cache file image. Every failure wraps ErrCorrupt.
func Decode(data []byte) (*Record, CompressionTag, error) {
	if len(data) < headerSize {
		return nil, 0, fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorrupt, len(data))
	}
	if string(data[:4]) != magic {
		return nil, 0, fmt.Errorf("%w: bad magic %q", ErrCorrupt, data[:4])
	}
	if v := data[4]; v != formatVersion {
		return nil, 0, fmt.Errorf("%w: unsupported format version %d", ErrCorrupt, v)
	}
	tag := CompressionTag(data[5])
	rawLen := binary.LittleEndian.Uint64(data[6:14])
	payload := data[headerSize:]

	sum := blake3.Sum256(payload)
	if !bytes.Equal(sum[:], data[14:headerSize]) {
		return nil, 0, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	// the checksum passed, so a huge length is a writer bug, not noise
	if rawLen > 1<<34 {
		return nil, 0, fmt.Errorf("%w: implausible payload length %d", ErrCorrupt, rawLen)
	}

	raw, err := decompress(payload, tag, int(rawLen))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	var rec Record
	if err := cbor.Unmarshal(raw, &rec); err != nil {
		return nil, 0, fmt.Errorf("%w: decode record: %v", ErrCorrupt, err)
	}
	return &rec, tag, nil
}

// Store reads and writes one cache file.
type Store struct {
	path        string
	compression CompressionTag
	watcher     *Watcher
}

// NewStore creates a Store for path.
func NewStore(path string, compression CompressionTag) *Store {
	return &Store{path: path, compression: compression}
}

// Path returns the cache file path.
func (s *Store) Path() string { return s.path }

// SetWatcher lets Save tell w about its own writes.
func (s *Store) SetWatcher(w *Watcher) { s.watcher = w }

// Load reads the cache file. A missing file returns (nil, false, nil).
func (s *Store) Load() (*Record, bool, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read session cache %s: %w", s.path, err)
	}
	rec, _, err := Decode(data)
	if err != nil {
		return nil, false, fmt.Errorf("load %s: %w", s.path, err)
	}
	return rec, true, nil
}

// Save writes rec to a temp file in the same directory and renames it over
// the cache path.
func (s *Store) Save(rec *Record) error {
	data, err := Encode(rec, s.compression)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp cache file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp cache file: %w", err)
	}

	if s.watcher != nil {
		s.watcher.Expect()
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("rename cache file: %w", err)
	}
	return nil
}

// Stat decodes the file and summarizes it.
func (s *Store) Stat() (*Info, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	rec, tag, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return &Info{
		Path:        s.path,
		Size:        int64(len(data)),
		Compression: tag,
		Tokens:      len(rec.Tokens),
		StateBytes:  len(rec.State),
		Model:       rec.Model,
		SavedAt:     rec.SavedAt,
	}, nil
}

// Remove deletes the cache file. A missing file is not an error.
func (s *Store) Remove() error {
	err := os.Remove(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
