// Package saml provides the two SAML protocol capabilities the bridge is
// built on.
//
// IdentityProvider is the IdP role this bridge plays towards the upstream
// application's Service Provider: it parses inbound AuthnRequests, fills and
// signs login responses, and publishes IdP metadata.
//
// ServiceProvider mirrors the upstream application's SP using its trusted
// metadata file. It exists for the reverse verification flow: creating an
// AuthnRequest addressed to this bridge and validating the responses the
// bridge issues.
//
// Signing and response validation are delegated to
// github.com/russellhaering/goxmldsig and github.com/russellhaering/gosaml2;
// this package only assembles documents and extracts correlation data.
package saml
