package pagecache

import (
	"fmt"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// Compressor is a pluggable page codec. It is exercised by MemBackend
// (a FileBackend's fixed-offset slots cannot hold a variable-length
// compressed page), letting a caller trade CPU for backing-store size
// on a Backend that supports it.
type Compressor interface {
	Name() string
	Compress(page []byte) []byte
	Decompress(compressed []byte) ([]byte, error)
}

// NewCompressor resolves a Compressor by name. An empty name returns
// (nil, nil): no compression.
func NewCompressor(name string) (Compressor, error) {
	switch name {
	case "":
		return nil, nil
	case "snappy":
		return &snappyCompressor{}, nil
	case "zstd":
		return newZstdCompressor()
	default:
		return nil, fmt.Errorf("pagecache: unknown compressor %q", name)
	}
}

// snappyCompressor is a thin, stateless wrapper: snappy's package-level
// Encode/Decode functions need no persistent encoder/decoder state.
type snappyCompressor struct{}

func (snappyCompressor) Name() string { return "snappy" }

func (snappyCompressor) Compress(page []byte) []byte {
	return snappy.Encode(nil, page)
}

func (snappyCompressor) Decompress(compressed []byte) ([]byte, error) {
	return snappy.Decode(nil, compressed)
}

// zstdCompressor holds a reusable encoder/decoder pair, unlike snappy:
// klauspost/compress/zstd's types carry internal state and goroutines
// that are worth amortizing across calls rather than rebuilding per page.
type zstdCompressor struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func newZstdCompressor() (*zstdCompressor, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("pagecache: zstd writer: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("pagecache: zstd reader: %w", err)
	}
	return &zstdCompressor{encoder: enc, decoder: dec}, nil
}

func (c *zstdCompressor) Name() string { return "zstd" }

func (c *zstdCompressor) Compress(page []byte) []byte {
	return c.encoder.EncodeAll(page, nil)
}

func (c *zstdCompressor) Decompress(compressed []byte) ([]byte, error) {
	return c.decoder.DecodeAll(compressed, nil)
}
