package http

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"fmt"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// Compression type constants.
const (
	CompressionNone   = "none"
	CompressionGzip   = "gzip"
	CompressionZstd   = "zstd"
	CompressionZlib   = "zlib"
	CompressionSnappy = "snappy"
)

// compressor compresses request bodies using a fixed algorithm and
// knows the matching Content-Encoding header value.
type compressor struct {
	algorithm string
	encoding  string
	encoder   *zstd.Encoder
}

// newCompressor creates a compressor for the given algorithm.
func newCompressor(algorithm string) (*compressor, error) {
	c := &compressor{algorithm: algorithm}

	switch algorithm {
	case CompressionNone, "":
	case CompressionGzip:
		c.encoding = "gzip"
	case CompressionZlib:
		c.encoding = "deflate"
	case CompressionSnappy:
		c.encoding = "snappy"
	case CompressionZstd:
		c.encoding = "zstd"

		// Pre-create the zstd encoder since it is expensive to create.
		encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, fmt.Errorf("creating zstd encoder: %w", err)
		}

		c.encoder = encoder
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", algorithm)
	}

	return c, nil
}

// compress compresses data with the configured algorithm.
func (c *compressor) compress(data []byte) ([]byte, error) {
	switch c.algorithm {
	case CompressionNone, "":
		return data, nil
	case CompressionGzip:
		return writerCompress(data, func(buf *bytes.Buffer) writeCloser {
			return gzip.NewWriter(buf)
		})
	case CompressionZlib:
		return writerCompress(data, func(buf *bytes.Buffer) writeCloser {
			return zlib.NewWriter(buf)
		})
	case CompressionSnappy:
		return snappy.Encode(nil, data), nil
	case CompressionZstd:
		return c.encoder.EncodeAll(data, make([]byte, 0, len(data))), nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", c.algorithm)
	}
}

// contentEncoding returns the Content-Encoding header value, or ""
// when the body is sent uncompressed.
func (c *compressor) contentEncoding() string {
	return c.encoding
}

// close releases compressor resources.
func (c *compressor) close() error {
	if c.encoder != nil {
		return c.encoder.Close()
	}

	return nil
}

type writeCloser interface {
	Write(p []byte) (int, error)
	Close() error
}

func writerCompress(data []byte, newWriter func(*bytes.Buffer) writeCloser) ([]byte, error) {
	var buf bytes.Buffer

	w := newWriter(&buf)

	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("compress write: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compress close: %w", err)
	}

	return buf.Bytes(), nil
}
