// Package codec handles the compressed-topic payload convention: values
// are raw-deflate-compressed (no zlib or gzip header) and carried as
// base64 text.
package codec

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// Inflate decodes a base64 payload and decompresses the headerless
// deflate stream inside it.
func Inflate(encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding base64 payload: %w", err)
	}

	r := flate.NewReader(bytes.NewReader(raw))
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("inflating payload: %w", err)
	}
	return data, nil
}

// Deflate compresses data as a headerless deflate stream and encodes it
// as base64, the inverse of Inflate. Used by tests and fixtures.
func Deflate(data []byte) (string, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.DefaultCompression)
	if err != nil {
		return "", fmt.Errorf("creating deflate writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return "", fmt.Errorf("compressing payload: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("flushing deflate stream: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
