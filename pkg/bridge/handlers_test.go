package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	saml2 "github.com/russellhaering/gosaml2"
	"github.com/russellhaering/gosaml2/types"

	"github.com/fedbridge/fedbridge/pkg/config"
	"github.com/fedbridge/fedbridge/pkg/oidcrp"
	"github.com/fedbridge/fedbridge/pkg/saml"
)

type fakeIdP struct {
	parseErr   error
	signCalled bool
	signErr    error
}

func (f *fakeIdP) ParseAuthnRequest(payload string) (*saml.AuthnRequestContext, error) {
	if f.parseErr != nil {
		return nil, f.parseErr
	}
	// The fake derives the request id from the payload so tests can assert
	// end-to-end correlation.
	return &saml.AuthnRequestContext{RequestID: "parsed-" + payload, Issuer: "https://sp.example.com"}, nil
}

func (f *fakeIdP) CreateLoginResponse(fill saml.TemplateFiller) (string, string, error) {
	f.signCalled = true
	if f.signErr != nil {
		return "", "", f.signErr
	}
	filled, err := fill(testResponseTemplate)
	if err != nil {
		return "", "", err
	}
	return filled.ID, "signed:" + filled.ID, nil
}

func (f *fakeIdP) EntityID() string { return "https://bridge.example.com/idp" }

func (f *fakeIdP) Metadata() ([]byte, error) {
	return []byte(`<md:EntityDescriptor entityID="https://bridge.example.com/idp"/>`), nil
}

type fakeSP struct {
	loginURL string
	loginErr error
	info     *saml2.AssertionInfo
	parseErr error
}

func (f *fakeSP) BuildLoginURL(relayState string) (string, error) {
	if f.loginErr != nil {
		return "", f.loginErr
	}
	return f.loginURL + "?RelayState=" + url.QueryEscape(relayState), nil
}

func (f *fakeSP) ParseResponse(encodedResponse string) (*saml2.AssertionInfo, error) {
	if f.parseErr != nil {
		return nil, f.parseErr
	}
	return f.info, nil
}

func (f *fakeSP) Metadata() ([]byte, error) {
	return []byte(`<md:EntityDescriptor entityID="https://sp.example.com"/>`), nil
}

type fakeOIDC struct {
	exchangeErr error
	userinfoErr error
	claims      map[string]interface{}
}

func (f *fakeOIDC) AuthorizationURL(state string) (string, error) {
	return "https://auth.example.com/authorize?" + url.Values{"state": {state}}.Encode(), nil
}

func (f *fakeOIDC) ExchangeCode(ctx context.Context, code string) (*oidcrp.Identity, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return &oidcrp.Identity{Subject: "subject-1"}, nil
}

func (f *fakeOIDC) FetchUserInfo(ctx context.Context, identity *oidcrp.Identity) (map[string]interface{}, error) {
	if f.userinfoErr != nil {
		return nil, f.userinfoErr
	}
	return f.claims, nil
}

type fakeTrusted struct {
	entityID string
	acsURL   string
	acsErr   error
}

func (f *fakeTrusted) EntityID() string { return f.entityID }

func (f *fakeTrusted) ResolveACS(binding string) (string, error) {
	if f.acsErr != nil {
		return "", f.acsErr
	}
	return f.acsURL, nil
}

type testBridge struct {
	router  *mux.Router
	idp     *fakeIdP
	sp      *fakeSP
	oidc    *fakeOIDC
	trusted *fakeTrusted
}

func newTestBridge() *testBridge {
	cfg := &config.Config{
		SP: config.SPConfig{LoginURL: "https://sp.example.com/login"},
		Users: config.UserConfig{
			Roles:              "agent,admin,supervisor",
			DefaultDisplayName: "OAuth User",
		},
	}

	tb := &testBridge{
		idp: &fakeIdP{},
		sp:  &fakeSP{loginURL: "https://bridge.example.com/idp/sso"},
		oidc: &fakeOIDC{
			claims: map[string]interface{}{"email": "a@b.com", "name": "A B"},
		},
		trusted: &fakeTrusted{
			entityID: "https://sp.example.com",
			acsURL:   "https://sp.example.com/acs",
		},
	}

	handlers := NewHandlers(cfg, tb.idp, tb.sp, tb.oidc, tb.trusted, NewTemplateEngine(), nil)
	tb.router = mux.NewRouter()
	handlers.RegisterRoutes(tb.router)
	return tb
}

func (tb *testBridge) do(r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	tb.router.ServeHTTP(w, r)
	return w
}

func TestIdPSSORedirectCarriesCorrelationState(t *testing.T) {
	tb := newTestBridge()

	r := httptest.NewRequest(http.MethodGet, "/idp/sso?SAMLRequest=req-payload&RelayState=xyz", nil)
	w := tb.do(r)

	require.Equal(t, http.StatusFound, w.Code)

	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "auth.example.com", location.Host)

	transfer, err := DecodeState(location.Query().Get("state"))
	require.NoError(t, err)
	assert.Equal(t, StateTransfer{RequestID: "parsed-req-payload", RelayState: "xyz"}, transfer)
}

func TestIdPSSOMissingRequest(t *testing.T) {
	tb := newTestBridge()

	w := tb.do(httptest.NewRequest(http.MethodGet, "/idp/sso?RelayState=xyz", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "SAMLRequest not found")
}

func TestIdPSSOMissingRelayState(t *testing.T) {
	tb := newTestBridge()

	w := tb.do(httptest.NewRequest(http.MethodGet, "/idp/sso?SAMLRequest=req-payload", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "RelayState not found")
}

func TestIdPSSOAcceptsPostBinding(t *testing.T) {
	tb := newTestBridge()

	form := url.Values{"SAMLRequest": {"req-payload"}, "RelayState": {"xyz"}}
	r := httptest.NewRequest(http.MethodPost, "/idp/sso", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := tb.do(r)

	assert.Equal(t, http.StatusFound, w.Code)
}

func TestOAuthCallbackDeliversResponseToTrustedACS(t *testing.T) {
	tb := newTestBridge()

	state, err := EncodeState(StateTransfer{RequestID: "abc123", RelayState: "rs1"})
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/oauth/callback?code=good&state="+url.QueryEscape(state), nil)
	w := tb.do(r)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()

	assert.Contains(t, body, `action="https://sp.example.com/acs"`)
	assert.Contains(t, body, `name="RelayState" value="rs1"`)
	assert.Contains(t, body, `name="SAMLResponse" value="signed:`)
	assert.True(t, tb.idp.signCalled)
}

func TestOAuthCallbackMissingCode(t *testing.T) {
	tb := newTestBridge()

	w := tb.do(httptest.NewRequest(http.MethodGet, "/oauth/callback?state=whatever", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "authorization code not found")
	assert.False(t, tb.idp.signCalled)
}

func TestOAuthCallbackMalformedState(t *testing.T) {
	tb := newTestBridge()

	w := tb.do(httptest.NewRequest(http.MethodGet, "/oauth/callback?code=good&state=not-a-valid-state", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "malformed")
	assert.False(t, tb.idp.signCalled, "response construction must not run on undecodable state")
}

func TestOAuthCallbackExchangeFailure(t *testing.T) {
	tb := newTestBridge()
	tb.oidc.exchangeErr = errors.New("expired code")

	state, err := EncodeState(StateTransfer{RequestID: "abc123", RelayState: "rs1"})
	require.NoError(t, err)

	w := tb.do(httptest.NewRequest(http.MethodGet, "/oauth/callback?code=bad&state="+url.QueryEscape(state), nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "oidc_exchange")
}

func TestOAuthCallbackACSNotConfigured(t *testing.T) {
	tb := newTestBridge()
	tb.trusted.acsErr = saml.ErrACSNotConfigured

	state, err := EncodeState(StateTransfer{RequestID: "abc123", RelayState: "rs1"})
	require.NoError(t, err)

	w := tb.do(httptest.NewRequest(http.MethodGet, "/oauth/callback?code=good&state="+url.QueryEscape(state), nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "ACS URL not configured")
	assert.False(t, tb.idp.signCalled)
}

func TestIdPSSOUnparsableRequest(t *testing.T) {
	tb := newTestBridge()
	tb.idp.parseErr = errors.New("invalid AuthnRequest encoding")

	w := tb.do(httptest.NewRequest(http.MethodGet, "/idp/sso?SAMLRequest=junk&RelayState=xyz", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "saml_parse")
}

func TestSPLoginUpstreamConfigurationError(t *testing.T) {
	tb := newTestBridge()
	tb.sp.loginErr = errors.New("built auth URL is blank, check IdP SSO URL configuration")

	w := tb.do(httptest.NewRequest(http.MethodGet, "/sp/login", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "misconfigured")
}

func TestSPLoginRedirects(t *testing.T) {
	tb := newTestBridge()

	for _, path := range []string{"/sp/login", "/sso/login"} {
		w := tb.do(httptest.NewRequest(http.MethodGet, path+"?RelayState=deep-link", nil))

		assert.Equal(t, http.StatusFound, w.Code, path)
		assert.Contains(t, w.Header().Get("Location"), "https://bridge.example.com/idp/sso")
		assert.Contains(t, w.Header().Get("Location"), "RelayState=deep-link")
	}
}

func TestIdPLoginRedirectsToSPLoginPage(t *testing.T) {
	tb := newTestBridge()

	w := tb.do(httptest.NewRequest(http.MethodGet, "/idp/login", nil))

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://sp.example.com/login", w.Header().Get("Location"))
}

func TestSPACSReturnsAssertionContents(t *testing.T) {
	tb := newTestBridge()
	tb.sp.info = &saml2.AssertionInfo{
		NameID: "a@b.com",
		Values: saml2.Values{
			"email": types.Attribute{
				Name:   "email",
				Values: []types.AttributeValue{{Value: "a@b.com"}},
			},
		},
	}

	form := url.Values{"SAMLResponse": {"encoded-response"}}
	r := httptest.NewRequest(http.MethodPost, "/sp/acs", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := tb.do(r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name_id":"a@b.com"`)
	assert.Contains(t, w.Body.String(), `"email":["a@b.com"]`)
}

func TestSPACSRejectsInvalidResponse(t *testing.T) {
	tb := newTestBridge()
	tb.sp.parseErr = fmt.Errorf("failed to validate assertion: bad signature")

	form := url.Values{"SAMLResponse": {"tampered"}}
	r := httptest.NewRequest(http.MethodPost, "/sp/acs", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := tb.do(r)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestMetadataEndpoints(t *testing.T) {
	tb := newTestBridge()

	for _, path := range []string{"/idp/metadata", "/sp/metadata"} {
		w := tb.do(httptest.NewRequest(http.MethodGet, path, nil))

		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.Equal(t, "application/xml", w.Header().Get("Content-Type"), path)
		assert.Contains(t, w.Body.String(), "EntityDescriptor", path)
	}
}
