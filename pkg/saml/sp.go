package saml

import (
	"fmt"

	saml2 "github.com/russellhaering/gosaml2"
	dsig "github.com/russellhaering/goxmldsig"
)

// ServiceProvider implements the SP role mirroring the upstream
// application's metadata: it can create AuthnRequests addressed to this
// bridge's IdP and validate the responses the IdP issues. Used by the
// SP-initiated login and /sp/acs verification flows.
type ServiceProvider struct {
	sp       *saml2.SAMLServiceProvider
	metadata *SPMetadata
}

// NewServiceProvider builds the SP role from the trusted SP metadata and the
// IdP this bridge exposes.
func NewServiceProvider(metadata *SPMetadata, idpEntityID, idpSSOURL string, idpKeys *KeyPair, clock *dsig.Clock) (*ServiceProvider, error) {
	if clock == nil {
		clock = dsig.NewRealClock()
	}

	acsURL, err := metadata.ResolveACS(BindingHTTPPost)
	if err != nil {
		return nil, fmt.Errorf("SP metadata unusable for SP role: %w", err)
	}

	sp := &saml2.SAMLServiceProvider{
		IdentityProviderSSOURL:      idpSSOURL,
		IdentityProviderIssuer:      idpEntityID,
		ServiceProviderIssuer:       metadata.EntityID(),
		AssertionConsumerServiceURL: acsURL,
		AudienceURI:                 metadata.EntityID(),
		IDPCertificateStore:         idpKeys.CertificateStore(),
		NameIdFormat:                "urn:oasis:names:tc:SAML:1.1:nameid-format:emailAddress",
		Clock:                       clock,
	}

	return &ServiceProvider{sp: sp, metadata: metadata}, nil
}

// BuildLoginURL creates a redirect-binding AuthnRequest URL addressed to the
// bridge's own IdP SSO endpoint.
func (s *ServiceProvider) BuildLoginURL(relayState string) (string, error) {
	url, err := s.sp.BuildAuthURL(relayState)
	if err != nil {
		return "", fmt.Errorf("failed to build auth URL: %w", err)
	}
	if url == "" {
		return "", fmt.Errorf("built auth URL is blank, check IdP SSO URL configuration")
	}
	return url, nil
}

// ParseResponse validates a base64-encoded SAML response and returns the
// assertion contents.
func (s *ServiceProvider) ParseResponse(encodedResponse string) (*saml2.AssertionInfo, error) {
	info, err := s.sp.RetrieveAssertionInfo(encodedResponse)
	if err != nil {
		return nil, fmt.Errorf("failed to validate assertion: %w", err)
	}

	if info.WarningInfo != nil {
		if info.WarningInfo.InvalidTime {
			return nil, fmt.Errorf("assertion has invalid time")
		}
		if info.WarningInfo.NotInAudience {
			return nil, fmt.Errorf("assertion not in expected audience")
		}
	}

	return info, nil
}

// Metadata returns the SP metadata document as configured by the operator
func (s *ServiceProvider) Metadata() ([]byte, error) {
	raw := s.metadata.Raw()
	if len(raw) == 0 {
		return nil, fmt.Errorf("SP metadata is not loaded")
	}
	return raw, nil
}
