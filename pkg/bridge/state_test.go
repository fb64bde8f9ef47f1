package bridge

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		transfer StateTransfer
	}{
		{
			name:     "simple values",
			transfer: StateTransfer{RequestID: "abc123", RelayState: "xyz"},
		},
		{
			name: "url characters in relay state",
			transfer: StateTransfer{
				RequestID:  "_49e5d480b7f8462c9c6d0e1a2b3c4d5e",
				RelayState: "https://sp.example.com/app?next=/home&tab=2",
			},
		},
		{
			name: "json-sensitive characters",
			transfer: StateTransfer{
				RequestID:  `id-with-"quotes"`,
				RelayState: "state/with+symbols=&?",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := EncodeState(tt.transfer)
			require.NoError(t, err)
			assert.NotEmpty(t, encoded)

			decoded, err := DecodeState(encoded)
			require.NoError(t, err)
			assert.Equal(t, tt.transfer, decoded)
		})
	}
}

func TestEncodeStateRequiresBothFields(t *testing.T) {
	tests := []struct {
		name     string
		transfer StateTransfer
	}{
		{"missing request id", StateTransfer{RelayState: "xyz"}},
		{"missing relay state", StateTransfer{RequestID: "abc123"}},
		{"both missing", StateTransfer{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := EncodeState(tt.transfer)
			assert.Error(t, err)
		})
	}
}

func TestDecodeStateMalformed(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"not base64", "%%%not-base64%%%"},
		{"base64 but not json", base64.RawURLEncoding.EncodeToString([]byte("plain text"))},
		{"json missing request id", base64.RawURLEncoding.EncodeToString([]byte(`{"RelayState":"xyz"}`))},
		{"json missing relay state", base64.RawURLEncoding.EncodeToString([]byte(`{"request_id":"abc123"}`))},
		{"empty string", ""},
		{"json wrong shape", base64.RawURLEncoding.EncodeToString([]byte(`[1,2,3]`))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeState(tt.value)
			assert.ErrorIs(t, err, ErrMalformedState)
		})
	}
}

func TestDecodeStateAcceptsPaddedStandardBase64(t *testing.T) {
	payload := []byte(`{"request_id":"abc123","RelayState":"xyz"}`)
	encoded := base64.StdEncoding.EncodeToString(payload)

	decoded, err := DecodeState(encoded)
	require.NoError(t, err)
	assert.Equal(t, StateTransfer{RequestID: "abc123", RelayState: "xyz"}, decoded)
}
