package saml

import (
	"bytes"
	"compress/flate"
	"encoding/base64"
	"fmt"
	"io"
	"os"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
)

// AuthnRequestContext carries the correlation data extracted from an inbound
// SAML AuthnRequest. Only the request ID survives the redirect round trip;
// issuer identity is validated once, at parse time.
type AuthnRequestContext struct {
	RequestID string
	Issuer    string
}

// FilledResponse is a login response document produced by a template fill
type FilledResponse struct {
	ID       string
	Document string
}

// TemplateFiller fills the IdP's login response template with per-session
// values. The bridge core supplies the implementation.
type TemplateFiller func(template string) (FilledResponse, error)

// IdentityProvider implements the SAML IdP role: parsing AuthnRequests from
// the trusted SP and issuing signed login responses.
type IdentityProvider struct {
	entityID         string
	ssoURL           string
	keys             *KeyPair
	template         string
	schemaValidation bool
}

// IdentityProviderOptions configure the IdP role
type IdentityProviderOptions struct {
	EntityID             string
	SSOURL               string
	ResponseTemplateFile string

	// SchemaValidation enables structural checks on inbound AuthnRequests.
	// Off by default; the deployments this bridge replaces skip it, and
	// turning it on changes security posture.
	SchemaValidation bool
}

// NewIdentityProvider constructs the IdP role from signing keys and the
// login response template asset.
func NewIdentityProvider(opts IdentityProviderOptions, keys *KeyPair) (*IdentityProvider, error) {
	if opts.EntityID == "" {
		return nil, fmt.Errorf("IdP entity ID is required")
	}
	if keys == nil {
		return nil, fmt.Errorf("IdP signing keys are required")
	}

	template, err := os.ReadFile(opts.ResponseTemplateFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read login response template: %w", err)
	}

	return &IdentityProvider{
		entityID:         opts.EntityID,
		ssoURL:           opts.SSOURL,
		keys:             keys,
		template:         string(bytes.TrimSpace(template)),
		schemaValidation: opts.SchemaValidation,
	}, nil
}

// EntityID returns the IdP entity identifier
func (idp *IdentityProvider) EntityID() string {
	return idp.entityID
}

// ParseAuthnRequest decodes and parses an inbound AuthnRequest payload.
// Redirect-binding payloads are base64 + deflate; POST-binding payloads are
// base64 only. Both are accepted regardless of the binding the SP chose.
func (idp *IdentityProvider) ParseAuthnRequest(payload string) (*AuthnRequestContext, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("invalid AuthnRequest encoding: %w", err)
	}

	if inflated, err := inflate(raw); err == nil {
		raw = inflated
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(raw); err != nil {
		return nil, fmt.Errorf("invalid AuthnRequest XML: %w", err)
	}

	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("empty AuthnRequest document")
	}

	requestID := root.SelectAttrValue("ID", "")
	if requestID == "" {
		return nil, fmt.Errorf("AuthnRequest has no ID attribute")
	}

	issuer := ""
	if el := root.FindElement("./Issuer"); el != nil {
		issuer = el.Text()
	}

	if idp.schemaValidation {
		if err := validateAuthnRequest(root, issuer); err != nil {
			return nil, err
		}
	}

	return &AuthnRequestContext{
		RequestID: requestID,
		Issuer:    issuer,
	}, nil
}

// validateAuthnRequest performs the structural checks skipped in the default
// configuration
func validateAuthnRequest(root *etree.Element, issuer string) error {
	if root.Tag != "AuthnRequest" {
		return fmt.Errorf("unexpected root element %q, want AuthnRequest", root.Tag)
	}
	if version := root.SelectAttrValue("Version", ""); version != "2.0" {
		return fmt.Errorf("unsupported SAML version %q", version)
	}
	if root.SelectAttrValue("IssueInstant", "") == "" {
		return fmt.Errorf("AuthnRequest has no IssueInstant")
	}
	if issuer == "" {
		return fmt.Errorf("AuthnRequest has no Issuer")
	}
	return nil
}

// inflate decompresses a raw-deflate body as used by the redirect binding
func inflate(data []byte) ([]byte, error) {
	reader := flate.NewReader(bytes.NewReader(data))
	defer reader.Close()

	out, err := io.ReadAll(io.LimitReader(reader, 10*1024*1024))
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty deflate payload")
	}
	return out, nil
}

// CreateLoginResponse fills the login response template, signs the resulting
// document with the IdP key, and returns the response ID together with the
// base64-encoded signed XML ready for the POST binding.
func (idp *IdentityProvider) CreateLoginResponse(fill TemplateFiller) (string, string, error) {
	filled, err := fill(idp.template)
	if err != nil {
		return "", "", fmt.Errorf("failed to fill login response template: %w", err)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromString(filled.Document); err != nil {
		return "", "", fmt.Errorf("filled login response is not valid XML: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return "", "", fmt.Errorf("filled login response is empty")
	}

	signingCtx := dsig.NewDefaultSigningContext(idp.keys.SigningKeyStore())
	signed, err := signingCtx.SignEnveloped(root)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign login response: %w", err)
	}

	signedDoc := etree.NewDocument()
	signedDoc.SetRoot(signed)
	out, err := signedDoc.WriteToString()
	if err != nil {
		return "", "", fmt.Errorf("failed to serialize signed response: %w", err)
	}

	return filled.ID, base64.StdEncoding.EncodeToString([]byte(out)), nil
}

// Metadata returns the IdP's own SAML metadata document
func (idp *IdentityProvider) Metadata() ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	entity := doc.CreateElement("md:EntityDescriptor")
	entity.CreateAttr("xmlns:md", "urn:oasis:names:tc:SAML:2.0:metadata")
	entity.CreateAttr("entityID", idp.entityID)

	descriptor := entity.CreateElement("md:IDPSSODescriptor")
	descriptor.CreateAttr("WantAuthnRequestsSigned", "false")
	descriptor.CreateAttr("protocolSupportEnumeration", "urn:oasis:names:tc:SAML:2.0:protocol")

	keyDescriptor := descriptor.CreateElement("md:KeyDescriptor")
	keyDescriptor.CreateAttr("use", "signing")
	keyInfo := keyDescriptor.CreateElement("ds:KeyInfo")
	keyInfo.CreateAttr("xmlns:ds", "http://www.w3.org/2000/09/xmldsig#")
	x509Data := keyInfo.CreateElement("ds:X509Data")
	x509Cert := x509Data.CreateElement("ds:X509Certificate")
	x509Cert.SetText(base64.StdEncoding.EncodeToString(idp.keys.CertDER))

	nameIDFormat := descriptor.CreateElement("md:NameIDFormat")
	nameIDFormat.SetText("urn:oasis:names:tc:SAML:1.1:nameid-format:emailAddress")

	for _, binding := range []string{BindingHTTPPost, BindingHTTPRedirect} {
		sso := descriptor.CreateElement("md:SingleSignOnService")
		sso.CreateAttr("Binding", binding)
		sso.CreateAttr("Location", idp.ssoURL)
	}

	doc.Indent(2)
	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize IdP metadata: %w", err)
	}
	return out, nil
}
