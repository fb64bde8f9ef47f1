// Package bridge implements the protocol-bridge core: it terminates SAML
// AuthnRequests as an Identity Provider, delegates authentication to an
// OpenID Connect provider, and returns signed SAML responses to the Service
// Provider's assertion consumer endpoint.
//
// The bridge keeps no server-side session. The two halves of an SSO attempt
// are correlated exclusively through the StateTransfer record round-tripped
// in the OIDC state parameter, so any number of concurrent attempts proceed
// independently.
//
// Protocol heavy lifting (XML signatures, assertion validation, token
// verification) is delegated to the capability interfaces defined here and
// implemented by pkg/saml and pkg/oidcrp.
package bridge
