package bridge

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// StateTransfer is the correlation record carried through the OIDC state
// parameter. It is the only channel connecting the two halves of an SSO
// attempt; nothing else is persisted between the handler invocations.
//
// JSON field names match the wire format of existing deployments.
type StateTransfer struct {
	RequestID  string `json:"request_id"`
	RelayState string `json:"RelayState"`
}

// EncodeState serializes a transfer record into an opaque, URL-safe string.
// Both fields are required; an empty field is a hard failure at encode time.
func EncodeState(transfer StateTransfer) (string, error) {
	if transfer.RequestID == "" {
		return "", fmt.Errorf("state transfer requires a request id")
	}
	if transfer.RelayState == "" {
		return "", fmt.Errorf("state transfer requires a relay state")
	}

	payload, err := json.Marshal(transfer)
	if err != nil {
		return "", fmt.Errorf("failed to serialize state transfer: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(payload), nil
}

// DecodeState recovers a transfer record from an opaque state value. The
// value round-trips through the browser and the OIDC provider, so it is
// untrusted input: it is validated structurally before use and never
// consulted for authorization decisions beyond correlation.
func DecodeState(value string) (StateTransfer, error) {
	var transfer StateTransfer

	payload, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		// Older issuers used standard base64 with padding
		payload, err = base64.StdEncoding.DecodeString(value)
		if err != nil {
			return transfer, fmt.Errorf("%w: %v", ErrMalformedState, err)
		}
	}

	if err := json.Unmarshal(payload, &transfer); err != nil {
		return transfer, fmt.Errorf("%w: %v", ErrMalformedState, err)
	}

	if transfer.RequestID == "" || transfer.RelayState == "" {
		return StateTransfer{}, fmt.Errorf("%w: missing request id or relay state", ErrMalformedState)
	}

	return transfer, nil
}
