package codec

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	payload, err := json.Marshal(map[string]any{
		"Entries": []any{
			map[string]any{"Utc": "2024-03-02T15:03:01.234Z", "Cars": map[string]any{"44": map[string]any{"Channels": map[string]any{"2": 287}}}},
		},
	})
	require.NoError(t, err)

	encoded, err := Deflate(payload)
	require.NoError(t, err)

	decoded, err := Inflate(encoded)
	require.NoError(t, err)
	assert.JSONEq(t, string(payload), string(decoded))
}

func TestRoundTripEmpty(t *testing.T) {
	encoded, err := Deflate(nil)
	require.NoError(t, err)

	decoded, err := Inflate(encoded)
	require.NoError(t, err)
	assert.Empty(t, decoded)
}

func TestInflateRejectsBadBase64(t *testing.T) {
	_, err := Inflate("not base64!!!")
	assert.Error(t, err)
}

func TestInflateRejectsGarbage(t *testing.T) {
	// Valid base64, not a deflate stream.
	_, err := Inflate("aGVsbG8gd29ybGQhISEhISEhIQ==")
	assert.Error(t, err)
}
