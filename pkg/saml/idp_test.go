package saml

import (
	"bytes"
	"compress/flate"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const authnRequestXML = `<samlp:AuthnRequest xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol" xmlns:saml="urn:oasis:names:tc:SAML:2.0:assertion" ID="req-abc123" Version="2.0" IssueInstant="2025-03-14T09:26:53Z" Destination="https://bridge.example.com/idp/sso"><saml:Issuer>https://sp.example.com</saml:Issuer></samlp:AuthnRequest>`

// writeTestKeyPair generates a throwaway self-signed signing identity
func writeTestKeyPair(t *testing.T) *KeyPair {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "fedbridge-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)

	dir := t.TempDir()
	certFile := filepath.Join(dir, "cert.pem")
	keyFile := filepath.Join(dir, "key.pem")

	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{
		Type: "CERTIFICATE", Bytes: der,
	}), 0600))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{
		Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key),
	}), 0600))

	keys, err := LoadKeyPair(certFile, keyFile, "")
	require.NoError(t, err)
	return keys
}

func newTestIdP(t *testing.T, schemaValidation bool) *IdentityProvider {
	t.Helper()

	templateFile := filepath.Join(t.TempDir(), "login-response.xml")
	require.NoError(t, os.WriteFile(templateFile, []byte(
		`<samlp:Response xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol" ID="{ID}" Version="2.0" IssueInstant="{IssueInstant}" Destination="{Destination}" InResponseTo="{InResponseTo}"><samlp:Status><samlp:StatusCode Value="{StatusCode}"/></samlp:Status></samlp:Response>`,
	), 0644))

	idp, err := NewIdentityProvider(IdentityProviderOptions{
		EntityID:             "https://bridge.example.com/idp",
		SSOURL:               "https://bridge.example.com/idp/sso",
		ResponseTemplateFile: templateFile,
		SchemaValidation:     schemaValidation,
	}, writeTestKeyPair(t))
	require.NoError(t, err)
	return idp
}

func deflateEncode(t *testing.T, doc string) string {
	t.Helper()
	var buf bytes.Buffer
	writer, err := flate.NewWriter(&buf, flate.DefaultCompression)
	require.NoError(t, err)
	_, err = writer.Write([]byte(doc))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestParseAuthnRequestRedirectBinding(t *testing.T) {
	idp := newTestIdP(t, false)

	request, err := idp.ParseAuthnRequest(deflateEncode(t, authnRequestXML))
	require.NoError(t, err)
	assert.Equal(t, "req-abc123", request.RequestID)
	assert.Equal(t, "https://sp.example.com", request.Issuer)
}

func TestParseAuthnRequestPostBinding(t *testing.T) {
	idp := newTestIdP(t, false)

	request, err := idp.ParseAuthnRequest(base64.StdEncoding.EncodeToString([]byte(authnRequestXML)))
	require.NoError(t, err)
	assert.Equal(t, "req-abc123", request.RequestID)
}

func TestParseAuthnRequestRejectsGarbage(t *testing.T) {
	idp := newTestIdP(t, false)

	tests := []struct {
		name    string
		payload string
	}{
		{"not base64", "%%%"},
		{"base64 but not xml", base64.StdEncoding.EncodeToString([]byte("not xml"))},
		{"xml without id", base64.StdEncoding.EncodeToString([]byte(`<samlp:AuthnRequest xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol"/>`))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := idp.ParseAuthnRequest(tt.payload)
			assert.Error(t, err)
		})
	}
}

func TestParseAuthnRequestSchemaValidation(t *testing.T) {
	missingIssuer := `<samlp:AuthnRequest xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol" ID="req-1" Version="2.0" IssueInstant="2025-03-14T09:26:53Z"/>`

	relaxed := newTestIdP(t, false)
	_, err := relaxed.ParseAuthnRequest(base64.StdEncoding.EncodeToString([]byte(missingIssuer)))
	assert.NoError(t, err, "structural checks are skipped when validation is off")

	strict := newTestIdP(t, true)
	_, err = strict.ParseAuthnRequest(base64.StdEncoding.EncodeToString([]byte(missingIssuer)))
	assert.ErrorContains(t, err, "Issuer")

	wrongVersion := `<samlp:AuthnRequest xmlns:samlp="urn:oasis:names:tc:SAML:2.0:protocol" ID="req-1" Version="1.1" IssueInstant="2025-03-14T09:26:53Z"><Issuer>https://sp.example.com</Issuer></samlp:AuthnRequest>`
	_, err = strict.ParseAuthnRequest(base64.StdEncoding.EncodeToString([]byte(wrongVersion)))
	assert.ErrorContains(t, err, "version")
}

func TestCreateLoginResponseSignsDocument(t *testing.T) {
	idp := newTestIdP(t, false)

	replacer := strings.NewReplacer(
		"{ID}", "_response1",
		"{IssueInstant}", "2025-03-14T09:26:53.000Z",
		"{Destination}", "https://sp.example.com/acs",
		"{InResponseTo}", "req-abc123",
		"{StatusCode}", "urn:oasis:names:tc:SAML:2.0:status:Success",
	)
	responseID, encoded, err := idp.CreateLoginResponse(func(template string) (FilledResponse, error) {
		return FilledResponse{ID: "_response1", Document: replacer.Replace(template)}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "_response1", responseID)

	raw, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)

	doc := string(raw)
	assert.Contains(t, doc, "Signature")
	assert.Contains(t, doc, "SignatureValue")
	assert.Contains(t, doc, `InResponseTo="req-abc123"`)
}

func TestIdPMetadataDocument(t *testing.T) {
	idp := newTestIdP(t, false)

	doc, err := idp.Metadata()
	require.NoError(t, err)

	metadata := string(doc)
	assert.Contains(t, metadata, `entityID="https://bridge.example.com/idp"`)
	assert.Contains(t, metadata, "IDPSSODescriptor")
	assert.Contains(t, metadata, "X509Certificate")
	assert.Contains(t, metadata, `Location="https://bridge.example.com/idp/sso"`)
	assert.Contains(t, metadata, BindingHTTPPost)
	assert.Contains(t, metadata, BindingHTTPRedirect)
	assert.Contains(t, metadata, "emailAddress")
}
