package sessioncache

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// CompressionTag is the header byte saying how the record payload is packed.
// The numeric values are written to disk and must not change.
type CompressionTag uint8

const (
	CompressionNone CompressionTag = 0
	CompressionLZ4  CompressionTag = 1
	CompressionZstd CompressionTag = 2
)

// codec packs and unpacks a record payload. pack returns errIncompressible
// when the result would not be smaller than the input.
type codec struct {
	name   string
	pack   func(raw []byte) ([]byte, error)
	unpack func(payload []byte, rawLen int) ([]byte, error)
}

var codecs = map[CompressionTag]codec{
	CompressionNone: {name: "none", pack: packRaw, unpack: unpackRaw},
	CompressionLZ4:  {name: "lz4", pack: packLZ4, unpack: unpackLZ4},
	CompressionZstd: {name: "zstd", pack: packZstd, unpack: unpackZstd},
}

// String is the name used in config files and by 'parley cache info'.
func (tag CompressionTag) String() string {
	if c, ok := codecs[tag]; ok {
		return c.name
	}
	return fmt.Sprintf("unknown(%d)", uint8(tag))
}

// ParseCompressionTag maps dialogue.compression to a tag; empty means none.
func ParseCompressionTag(name string) (CompressionTag, error) {
	if name == "" {
		return CompressionNone, nil
	}
	for tag, c := range codecs {
		if c.name == name {
			return tag, nil
		}
	}
	return 0, fmt.Errorf("session cache compression %q not supported (none, lz4, zstd)", name)
}

// compress packs raw with tag and reports the tag actually written: a payload
// that does not shrink is stored as is.
func compress(raw []byte, tag CompressionTag) ([]byte, CompressionTag, error) {
	c, ok := codecs[tag]
	if !ok {
		return nil, 0, fmt.Errorf("session cache compression %s not supported", tag)
	}
	out, err := c.pack(raw)
	switch {
	case err == errIncompressible:
		return raw, CompressionNone, nil
	case err != nil:
		return nil, 0, err
	}
	return out, tag, nil
}

// decompress unpacks payload and checks it against the length in the header.
func decompress(payload []byte, tag CompressionTag, rawLen int) ([]byte, error) {
	c, ok := codecs[tag]
	if !ok {
		return nil, fmt.Errorf("session cache compression %s not supported", tag)
	}
	raw, err := c.unpack(payload, rawLen)
	if err != nil {
		return nil, fmt.Errorf("%s payload: %w", c.name, err)
	}
	if len(raw) != rawLen {
		return nil, fmt.Errorf("%s payload: %d bytes, header says %d", c.name, len(raw), rawLen)
	}
	return raw, nil
}

func packRaw(raw []byte) ([]byte, error) { return raw, nil }

func unpackRaw(payload []byte, _ int) ([]byte, error) { return payload, nil }

// LZ4 block format; the header already carries the raw length, so the frame
// format's own size fields would be redundant.
func packLZ4(raw []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(raw)))
	n, err := lz4.CompressBlock(raw, dst, nil)
	if err != nil {
		return nil, err
	}
	if n == 0 || n >= len(raw) {
		return nil, errIncompressible
	}
	return dst[:n], nil
}

func unpackLZ4(payload []byte, rawLen int) ([]byte, error) {
	dst := make([]byte, rawLen)
	n, err := lz4.UncompressBlock(payload, dst)
	if err != nil {
		return nil, err
	}
	return dst[:n], nil
}

// Shared by all stores; EncodeAll and DecodeAll are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	if zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault)); err != nil {
		panic("sessioncache: zstd encoder: " + err.Error())
	}
	if zstdDecoder, err = zstd.NewReader(nil); err != nil {
		panic("sessioncache: zstd decoder: " + err.Error())
	}
}

func packZstd(raw []byte) ([]byte, error) {
	out := zstdEncoder.EncodeAll(raw, nil)
	if len(out) >= len(raw) {
		return nil, errIncompressible
	}
	return out, nil
}

func unpackZstd(payload []byte, rawLen int) ([]byte, error) {
	return zstdDecoder.DecodeAll(payload, make([]byte, 0, rawLen))
}
