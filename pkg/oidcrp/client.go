// Package oidcrp implements the OpenID Connect relying-party capability:
// provider discovery, authorization URL construction, code exchange with
// ID-token verification, and userinfo retrieval. All protocol validation is
// delegated to github.com/coreos/go-oidc and golang.org/x/oauth2.
package oidcrp

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// Config holds the upstream provider settings
type Config struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	ResponseType string
	ResponseMode string
}

// Client is the OIDC relying-party capability. Constructed once per process
// lifetime and shared read-only across request handlers.
type Client struct {
	config       Config
	provider     *oidc.Provider
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
}

// Identity is the validated token material from a completed code exchange
type Identity struct {
	Token   *oauth2.Token
	IDToken *oidc.IDToken
	Subject string
}

// New discovers the OIDC provider and prepares the OAuth2 configuration
func New(ctx context.Context, config Config) (*Client, error) {
	if config.IssuerURL == "" {
		return nil, fmt.Errorf("issuer URL is required")
	}
	if config.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}

	provider, err := oidc.NewProvider(ctx, config.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{
		ClientID: config.ClientID,
	})

	oauth2Config := &oauth2.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		Endpoint:     provider.Endpoint(),
		RedirectURL:  config.RedirectURI,
		Scopes:       config.Scopes,
	}

	return &Client{
		config:       config,
		provider:     provider,
		verifier:     verifier,
		oauth2Config: oauth2Config,
	}, nil
}

// AuthorizationURL builds the provider's authorization endpoint URL carrying
// the given state value. Response mode and type come from configuration.
func (c *Client) AuthorizationURL(state string) (string, error) {
	opts := []oauth2.AuthCodeOption{}
	if c.config.ResponseMode != "" {
		opts = append(opts, oauth2.SetAuthURLParam("response_mode", c.config.ResponseMode))
	}
	if c.config.ResponseType != "" && c.config.ResponseType != "code" {
		opts = append(opts, oauth2.SetAuthURLParam("response_type", c.config.ResponseType))
	}

	url := c.oauth2Config.AuthCodeURL(state, opts...)
	if url == "" {
		return "", fmt.Errorf("authorization URL is blank, check issuer configuration")
	}
	return url, nil
}

// ExchangeCode trades the authorization code for tokens and verifies the
// returned ID token (signature, issuer, audience).
func (c *Client) ExchangeCode(ctx context.Context, code string) (*Identity, error) {
	token, err := c.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("missing id_token in token response")
	}

	idToken, err := c.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	return &Identity{
		Token:   token,
		IDToken: idToken,
		Subject: idToken.Subject,
	}, nil
}

// FetchUserInfo retrieves the userinfo claims using the validated token
func (c *Client) FetchUserInfo(ctx context.Context, identity *Identity) (map[string]interface{}, error) {
	userInfo, err := c.provider.UserInfo(ctx, oauth2.StaticTokenSource(identity.Token))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch userinfo: %w", err)
	}

	var claims map[string]interface{}
	if err := userInfo.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse userinfo claims: %w", err)
	}

	return claims, nil
}

// CheckDiscovery reports whether the provider metadata is usable. Used by
// the readiness probe.
func (c *Client) CheckDiscovery(ctx context.Context) error {
	if c.provider == nil {
		return fmt.Errorf("OIDC provider not discovered")
	}
	if c.oauth2Config.Endpoint.AuthURL == "" {
		return fmt.Errorf("OIDC provider has no authorization endpoint")
	}
	return nil
}
