package bridge

import (
	"errors"
	"fmt"
)

// Sentinel errors for the bridge flows. Handlers catch all of these at the
// boundary and surface HTTP 500; the distinction matters for logs, metrics,
// and tests.
var (
	// ErrMissingRequest indicates no SAMLRequest payload was present
	ErrMissingRequest = errors.New("SAMLRequest not found for processing")

	// ErrMissingRelayState indicates no RelayState accompanied the request;
	// it is required to return control to the right place after the OIDC leg
	ErrMissingRelayState = errors.New("RelayState not found, needed for callback")

	// ErrMissingCode indicates the OIDC redirect-back carried no
	// authorization code
	ErrMissingCode = errors.New("authorization code not found in request")

	// ErrMissingState indicates the OIDC redirect-back carried no state
	// value, so the original SAML request cannot be correlated
	ErrMissingState = errors.New("state not found, needed to reconstruct transfer")

	// ErrMalformedState indicates the state value failed to decode into a
	// valid transfer record
	ErrMalformedState = errors.New("state parameter is malformed")

	// ErrUpstreamConfiguration indicates a blank or unusable upstream
	// endpoint (OIDC authorization URL, SP login URL)
	ErrUpstreamConfiguration = errors.New("upstream endpoint is misconfigured")
)

// UpstreamProtocolError wraps a failure surfaced by the SAML or OIDC
// capabilities: signature failure, expired code, network failure.
type UpstreamProtocolError struct {
	Op  string
	Err error
}

func (e *UpstreamProtocolError) Error() string {
	return fmt.Sprintf("upstream %s failed: %v", e.Op, e.Err)
}

func (e *UpstreamProtocolError) Unwrap() error {
	return e.Err
}

// upstreamErr wraps err as an UpstreamProtocolError, or returns nil
func upstreamErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &UpstreamProtocolError{Op: op, Err: err}
}
