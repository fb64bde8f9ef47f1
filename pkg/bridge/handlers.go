package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	saml2 "github.com/russellhaering/gosaml2"

	"github.com/fedbridge/fedbridge/pkg/config"
	"github.com/fedbridge/fedbridge/pkg/httputil"
	"github.com/fedbridge/fedbridge/pkg/observability"
	"github.com/fedbridge/fedbridge/pkg/oidcrp"
	"github.com/fedbridge/fedbridge/pkg/saml"
)

// Flow names used in logs and metrics
const (
	FlowIdPSSO        = "idp_sso"
	FlowOAuthCallback = "oauth_callback"
	FlowIdPLogin      = "idp_login"
	FlowSPLogin       = "sp_login"
	FlowSPACS         = "sp_acs"
	FlowMetadata      = "metadata"
)

// IdentityProviderRole is the SAML IdP capability the handlers depend on
type IdentityProviderRole interface {
	ParseAuthnRequest(payload string) (*saml.AuthnRequestContext, error)
	CreateLoginResponse(fill saml.TemplateFiller) (string, string, error)
	EntityID() string
	Metadata() ([]byte, error)
}

// ServiceProviderRole is the SAML SP capability used by the SP-side flows
type ServiceProviderRole interface {
	BuildLoginURL(relayState string) (string, error)
	ParseResponse(encodedResponse string) (*saml2.AssertionInfo, error)
	Metadata() ([]byte, error)
}

// OidcClient is the relying-party capability towards the OAuth provider
type OidcClient interface {
	AuthorizationURL(state string) (string, error)
	ExchangeCode(ctx context.Context, code string) (*oidcrp.Identity, error)
	FetchUserInfo(ctx context.Context, identity *oidcrp.Identity) (map[string]interface{}, error)
}

// TrustedServiceProvider exposes the operator-loaded SP metadata. The ACS
// destination comes from here and only here, never from request fields.
type TrustedServiceProvider interface {
	EntityID() string
	ResolveACS(binding string) (string, error)
}

// Handlers hold the bridge's HTTP entry points. All capabilities are
// constructed once per process lifetime and shared read-only.
type Handlers struct {
	cfg     *config.Config
	idp     IdentityProviderRole
	sp      ServiceProviderRole
	oidc    OidcClient
	trusted TrustedServiceProvider
	engine  *TemplateEngine
	metrics *observability.Metrics
}

// NewHandlers wires the bridge core to its capabilities
func NewHandlers(
	cfg *config.Config,
	idp IdentityProviderRole,
	sp ServiceProviderRole,
	oidc OidcClient,
	trusted TrustedServiceProvider,
	engine *TemplateEngine,
	metrics *observability.Metrics,
) *Handlers {
	return &Handlers{
		cfg:     cfg,
		idp:     idp,
		sp:      sp,
		oidc:    oidc,
		trusted: trusted,
		engine:  engine,
		metrics: metrics,
	}
}

// RegisterRoutes mounts the bridge endpoints on the router
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/idp/sso", h.flow(FlowIdPSSO, h.idpSSO)).
		Methods(http.MethodGet, http.MethodPost)
	router.HandleFunc("/oauth/callback", h.flow(FlowOAuthCallback, h.oauthCallback)).
		Methods(http.MethodGet, http.MethodPost)
	router.HandleFunc("/idp/login", h.flow(FlowIdPLogin, h.idpLogin)).
		Methods(http.MethodGet)
	router.HandleFunc("/sp/login", h.flow(FlowSPLogin, h.spLogin)).
		Methods(http.MethodGet)
	router.HandleFunc("/sso/login", h.flow(FlowSPLogin, h.spLogin)).
		Methods(http.MethodGet)
	router.HandleFunc("/sp/acs", h.flow(FlowSPACS, h.spACS)).
		Methods(http.MethodGet, http.MethodPost)
	router.HandleFunc("/idp/metadata", h.flow(FlowMetadata, h.idpMetadata)).
		Methods(http.MethodGet)
	router.HandleFunc("/sp/metadata", h.flow(FlowMetadata, h.spMetadata)).
		Methods(http.MethodGet)
}

// flow wraps a handler with the flow-boundary policy: tag the context,
// record metrics, and translate any error into HTTP 500. Nothing below this
// wrapper writes an error response itself.
func (h *Handlers) flow(name string, fn func(w http.ResponseWriter, r *http.Request) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r = r.WithContext(observability.WithFlow(r.Context(), name))

		start := time.Now()
		err := fn(w, r)
		if h.metrics != nil {
			h.metrics.ObserveFlow(name, start, err)
		}
		if err == nil {
			return
		}

		observability.FromContext(r.Context()).WithError(err).Error("sso flow failed")
		if h.metrics != nil {
			h.metrics.SSOErrorsTotal.WithLabelValues(name, errorReason(err)).Inc()
		}
		httputil.WriteError(w, http.StatusInternalServerError, err)
	}
}

// idpSSO is the SP-initiated SSO entry point. It parses the inbound
// AuthnRequest, packs the correlation record into the OIDC state value, and
// redirects the browser to the provider's authorization endpoint.
func (h *Handlers) idpSSO(w http.ResponseWriter, r *http.Request) error {
	logger := observability.FromContext(r.Context())

	payload := r.FormValue("SAMLRequest")
	if payload == "" {
		return ErrMissingRequest
	}

	request, err := h.idp.ParseAuthnRequest(payload)
	if err != nil {
		return upstreamErr("saml_parse", err)
	}

	relayState := r.FormValue("RelayState")
	if relayState == "" {
		return ErrMissingRelayState
	}

	state, err := EncodeState(StateTransfer{
		RequestID:  request.RequestID,
		RelayState: relayState,
	})
	if err != nil {
		return err
	}

	authURL, err := h.oidc.AuthorizationURL(state)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamConfiguration, err)
	}

	logger.WithFields(map[string]interface{}{
		"saml_request_id": request.RequestID,
		"sp_issuer":       request.Issuer,
	}).Info("delegating authentication to OAuth provider")

	http.Redirect(w, r, authURL, http.StatusFound)
	return nil
}

// oauthCallback is the OIDC redirect-back entry point. It exchanges the
// authorization code, recovers the correlation record from the state value,
// and delivers the signed login response to the SP's trusted ACS.
func (h *Handlers) oauthCallback(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	logger := observability.FromContext(ctx)

	code := r.FormValue("code")
	if code == "" {
		return ErrMissingCode
	}

	start := time.Now()
	identity, err := h.oidc.ExchangeCode(ctx, code)
	if h.metrics != nil {
		h.metrics.ObserveUpstream("oidc_exchange", start, err)
	}
	if err != nil {
		return upstreamErr("oidc_exchange", err)
	}

	start = time.Now()
	claims, err := h.oidc.FetchUserInfo(ctx, identity)
	if h.metrics != nil {
		h.metrics.ObserveUpstream("oidc_userinfo", start, err)
	}
	if err != nil {
		return upstreamErr("oidc_userinfo", err)
	}

	user := NewUserFromClaims(claims, identity.Subject, h.cfg.Users)

	state := r.FormValue("state")
	if state == "" {
		return ErrMissingState
	}
	transfer, err := DecodeState(state)
	if err != nil {
		return err
	}

	acsURL, err := h.trusted.ResolveACS(saml.BindingHTTPPost)
	if err != nil {
		return err
	}

	fill := h.engine.Filler(ResponseParams{
		RequestID:   transfer.RequestID,
		Destination: acsURL,
		Audience:    h.trusted.EntityID(),
		IdPEntityID: h.idp.EntityID(),
		NameID:      user.Email,
		Attributes:  user.Attributes(),
	})

	start = time.Now()
	responseID, encodedResponse, err := h.idp.CreateLoginResponse(fill)
	if h.metrics != nil {
		h.metrics.ObserveUpstream("saml_sign", start, err)
	}
	if err != nil {
		return upstreamErr("saml_sign", err)
	}
	if h.metrics != nil {
		h.metrics.ResponsesIssuedTotal.Inc()
	}

	logger.WithFields(map[string]interface{}{
		"saml_request_id":  transfer.RequestID,
		"saml_response_id": responseID,
		"subject":          user.Email,
		"destination":      acsURL,
	}).Info("issuing signed login response")

	return httputil.WriteAutoPostForm(w, acsURL, map[string]string{
		"SAMLResponse": encodedResponse,
		"RelayState":   transfer.RelayState,
	})
}

// idpLogin redirects the browser to the SP's own login page
func (h *Handlers) idpLogin(w http.ResponseWriter, r *http.Request) error {
	if h.cfg.SP.LoginURL == "" {
		return fmt.Errorf("%w: SP login URL is not set", ErrUpstreamConfiguration)
	}
	http.Redirect(w, r, h.cfg.SP.LoginURL, http.StatusFound)
	return nil
}

// spLogin starts an SP-initiated login: it creates an AuthnRequest addressed
// to this bridge's own IdP endpoint and redirects the browser there.
func (h *Handlers) spLogin(w http.ResponseWriter, r *http.Request) error {
	relayState := r.FormValue("RelayState")
	if relayState == "" {
		relayState = h.cfg.SP.LoginURL
	}

	loginURL, err := h.sp.BuildLoginURL(relayState)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamConfiguration, err)
	}

	http.Redirect(w, r, loginURL, http.StatusFound)
	return nil
}

// spACS validates an inbound login response the way the upstream SP would.
// Exists for verifying the bridge against itself end to end.
func (h *Handlers) spACS(w http.ResponseWriter, r *http.Request) error {
	encoded := r.FormValue("SAMLResponse")
	if encoded == "" {
		return errors.New("SAMLResponse not found for processing")
	}

	info, err := h.sp.ParseResponse(encoded)
	if err != nil {
		return upstreamErr("saml_validate", err)
	}

	attributes := map[string][]string{}
	for name, attribute := range info.Values {
		for _, value := range attribute.Values {
			attributes[name] = append(attributes[name], value.Value)
		}
	}

	return httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"name_id":    info.NameID,
		"attributes": attributes,
	})
}

// idpMetadata publishes this bridge's IdP metadata document
func (h *Handlers) idpMetadata(w http.ResponseWriter, r *http.Request) error {
	doc, err := h.idp.Metadata()
	if err != nil {
		return upstreamErr("idp_metadata", err)
	}
	httputil.WriteXML(w, http.StatusOK, doc)
	return nil
}

// spMetadata republishes the trusted SP metadata document
func (h *Handlers) spMetadata(w http.ResponseWriter, r *http.Request) error {
	doc, err := h.sp.Metadata()
	if err != nil {
		return upstreamErr("sp_metadata", err)
	}
	httputil.WriteXML(w, http.StatusOK, doc)
	return nil
}

// errorReason maps an error to a low-cardinality metrics label
func errorReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingRequest):
		return "missing_request"
	case errors.Is(err, ErrMissingRelayState):
		return "missing_relay_state"
	case errors.Is(err, ErrMissingCode):
		return "missing_code"
	case errors.Is(err, ErrMissingState):
		return "missing_state"
	case errors.Is(err, ErrMalformedState):
		return "malformed_state"
	case errors.Is(err, ErrUpstreamConfiguration):
		return "upstream_configuration"
	case errors.Is(err, saml.ErrACSNotConfigured):
		return "acs_not_configured"
	}

	var upstream *UpstreamProtocolError
	if errors.As(err, &upstream) {
		return "upstream_" + upstream.Op
	}
	return "internal"
}
