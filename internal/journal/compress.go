package journal

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/golang/snappy"
)

// Compressor applies symmetric compression to journal payloads.
type Compressor interface {
	//1.- Name returns the codec identifier embedded in journal file names.
	Name() string
	//2.- Compress encodes the provided payload into a compressed representation.
	Compress(data []byte) ([]byte, error)
	//3.- Decompress restores the original payload from its compressed form.
	Decompress(data []byte) ([]byte, error)
}

// snappyCompressor wraps the snappy block format.
type snappyCompressor struct{}

// NewSnappyCompressor constructs the default journal Compressor.
func NewSnappyCompressor() Compressor {
	return snappyCompressor{}
}

// Name reports the identifier used for snappy encoded journals.
func (snappyCompressor) Name() string { return "snappy" }

// Compress encodes data using the snappy block format.
func (snappyCompressor) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

// Decompress decodes a snappy block and returns the raw payload.
func (snappyCompressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("snappy decompress: empty payload")
	}
	decoded, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("snappy decode: %w", err)
	}
	return decoded, nil
}

// gzipCompressor wraps the standard library gzip implementation.
type gzipCompressor struct{}

// NewGZIPCompressor constructs a Compressor backed by gzip.
func NewGZIPCompressor() Compressor {
	return gzipCompressor{}
}

// Name reports the identifier used for gzip encoded journals.
func (gzipCompressor) Name() string { return "gzip" }

// Compress encodes data using the gzip format.
func (gzipCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, fmt.Errorf("gzip write: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress decodes gzip-encoded data and returns the raw payload.
func (gzipCompressor) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("gzip decompress: empty payload")
	}
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer reader.Close()
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return nil, fmt.Errorf("gzip copy: %w", err)
	}
	return buf.Bytes(), nil
}
