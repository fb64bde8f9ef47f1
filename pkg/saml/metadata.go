package saml

import (
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/russellhaering/gosaml2/types"
)

// SAML 2.0 binding URNs
const (
	BindingHTTPPost     = "urn:oasis:names:tc:SAML:2.0:bindings:HTTP-POST"
	BindingHTTPRedirect = "urn:oasis:names:tc:SAML:2.0:bindings:HTTP-Redirect"
)

// ErrACSNotConfigured indicates the trusted SP metadata carries no ACS entry
// for the requested binding.
var ErrACSNotConfigured = errors.New("SP ACS URL not configured, check SP metadata for POST binding")

// ACSEndpoint is one Assertion Consumer Service entry from SP metadata
type ACSEndpoint struct {
	Binding  string
	Location string
}

// SPMetadata holds the trusted Service Provider metadata. Entries come from
// the operator-provided metadata file only, never from inbound requests.
// The store is safe for concurrent readers and supports reload on file
// change.
type SPMetadata struct {
	mu       sync.RWMutex
	path     string
	entityID string
	acs      []ACSEndpoint
	raw      []byte
}

// LoadSPMetadata reads and parses the SP metadata XML file
func LoadSPMetadata(path string) (*SPMetadata, error) {
	m := &SPMetadata{path: path}
	if err := m.Reload(); err != nil {
		return nil, err
	}
	return m, nil
}

// Reload re-reads the metadata file from disk
func (m *SPMetadata) Reload() error {
	raw, err := os.ReadFile(m.path)
	if err != nil {
		return fmt.Errorf("failed to read SP metadata file: %w", err)
	}

	var descriptor types.EntityDescriptor
	if err := xml.Unmarshal(raw, &descriptor); err != nil {
		return fmt.Errorf("failed to parse SP metadata: %w", err)
	}

	if descriptor.SPSSODescriptor == nil {
		return fmt.Errorf("SP metadata has no SPSSODescriptor")
	}

	acs := make([]ACSEndpoint, 0, len(descriptor.SPSSODescriptor.AssertionConsumerServices))
	for _, entry := range descriptor.SPSSODescriptor.AssertionConsumerServices {
		acs = append(acs, ACSEndpoint{
			Binding:  entry.Binding,
			Location: entry.Location,
		})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entityID = descriptor.EntityID
	m.acs = acs
	m.raw = raw
	return nil
}

// EntityID returns the SP entity identifier
func (m *SPMetadata) EntityID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entityID
}

// Raw returns the metadata document as loaded from disk
func (m *SPMetadata) Raw() []byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	raw := make([]byte, len(m.raw))
	copy(raw, m.raw)
	return raw
}

// ResolveACS returns the location of the first ACS entry matching the given
// binding. The resolved URL always comes from the pre-loaded metadata; a
// request-supplied destination is never consulted.
func (m *SPMetadata) ResolveACS(binding string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, entry := range m.acs {
		if entry.Binding == binding && entry.Location != "" {
			return entry.Location, nil
		}
	}
	return "", ErrACSNotConfigured
}
