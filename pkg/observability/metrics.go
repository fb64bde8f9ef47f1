package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the bridge
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// SSO flow metrics
	SSOFlowsTotal   *prometheus.CounterVec
	SSOFlowDuration *prometheus.HistogramVec
	SSOErrorsTotal  *prometheus.CounterVec

	// Upstream capability metrics (OIDC exchange, userinfo, SAML sign)
	UpstreamCallsTotal   *prometheus.CounterVec
	UpstreamCallDuration *prometheus.HistogramVec

	// SAML response metrics
	ResponsesIssuedTotal prometheus.Counter
	MetadataReloadsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fedbridge_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fedbridge_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		SSOFlowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fedbridge_sso_flows_total",
				Help: "Total number of SSO flow invocations",
			},
			[]string{"flow", "status"},
		),
		SSOFlowDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fedbridge_sso_flow_duration_seconds",
				Help:    "End to end duration of a single SSO flow handler",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"flow"},
		),
		SSOErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fedbridge_sso_errors_total",
				Help: "Total number of SSO flow failures",
			},
			[]string{"flow", "reason"},
		),

		UpstreamCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fedbridge_upstream_calls_total",
				Help: "Total number of calls to the OIDC provider or SAML capabilities",
			},
			[]string{"operation", "status"},
		),
		UpstreamCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fedbridge_upstream_call_duration_seconds",
				Help:    "Duration of upstream OIDC and SAML capability calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		ResponsesIssuedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fedbridge_saml_responses_issued_total",
				Help: "Total number of signed SAML responses issued",
			},
		),
		MetadataReloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fedbridge_sp_metadata_reloads_total",
				Help: "Total number of SP metadata reloads from disk",
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SSOFlowsTotal,
		m.SSOFlowDuration,
		m.SSOErrorsTotal,
		m.UpstreamCallsTotal,
		m.UpstreamCallDuration,
		m.ResponsesIssuedTotal,
		m.MetadataReloadsTotal,
	)

	return m
}

// ObserveFlow records the outcome and duration of one SSO flow invocation
func (m *Metrics) ObserveFlow(flow string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.SSOFlowsTotal.WithLabelValues(flow, status).Inc()
	m.SSOFlowDuration.WithLabelValues(flow).Observe(time.Since(start).Seconds())
}

// ObserveUpstream records one upstream capability call
func (m *Metrics) ObserveUpstream(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.UpstreamCallsTotal.WithLabelValues(operation, status).Inc()
	m.UpstreamCallDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// Handler returns the Prometheus metrics HTTP handler for the registry
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// HTTPMiddleware instruments HTTP handlers with request metrics
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		path := r.URL.Path
		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.statusCode)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *metricsResponseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
