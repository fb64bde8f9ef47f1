package saml

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	dsig "github.com/russellhaering/goxmldsig"
)

// KeyPair holds the IdP signing material loaded from PEM files
type KeyPair struct {
	PrivateKey  *rsa.PrivateKey
	Certificate *x509.Certificate
	CertDER     []byte
}

// LoadKeyPair loads the signing certificate and private key from PEM files.
// The key may be PKCS1 or PKCS8; an optional passphrase decrypts legacy
// encrypted PEM blocks.
func LoadKeyPair(certFile, keyFile, passphrase string) (*KeyPair, error) {
	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate file: %w", err)
	}

	certBlock, _ := pem.Decode(certPEM)
	if certBlock == nil {
		return nil, fmt.Errorf("failed to decode certificate PEM")
	}

	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}

	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil {
		return nil, fmt.Errorf("failed to decode private key PEM")
	}

	keyBytes := keyBlock.Bytes
	if passphrase != "" && x509.IsEncryptedPEMBlock(keyBlock) { //nolint:staticcheck // legacy encrypted PEM keys still exist in the field
		keyBytes, err = x509.DecryptPEMBlock(keyBlock, []byte(passphrase)) //nolint:staticcheck
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt private key: %w", err)
		}
	}

	privateKey, err := x509.ParsePKCS1PrivateKey(keyBytes)
	if err != nil {
		// Try PKCS8 format
		pkcs8Key, err := x509.ParsePKCS8PrivateKey(keyBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		var ok bool
		privateKey, ok = pkcs8Key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("private key is not RSA")
		}
	}

	return &KeyPair{
		PrivateKey:  privateKey,
		Certificate: cert,
		CertDER:     certBlock.Bytes,
	}, nil
}

// SigningKeyStore returns a goxmldsig key store for response signing
func (kp *KeyPair) SigningKeyStore() dsig.X509KeyStore {
	return &dsig.TLSCertKeyStore{
		PrivateKey:  kp.PrivateKey,
		Certificate: [][]byte{kp.CertDER},
	}
}

// CertificateStore returns a certificate store trusting the IdP's own
// signing certificate. Used by the SP role to validate responses this
// bridge issues.
func (kp *KeyPair) CertificateStore() dsig.X509CertificateStore {
	return &dsig.MemoryX509CertificateStore{
		Roots: []*x509.Certificate{kp.Certificate},
	}
}
