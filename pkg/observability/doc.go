// Package observability provides structured logging, Prometheus metrics,
// health probes, and optional OpenTelemetry tracing for the bridge.
//
// The bridge is stateless, so there are no database or cache dependencies
// to report on: readiness is driven by DependencyCheck functions registered
// by the capabilities constructed at startup (OIDC discovery, SP metadata,
// IdP signing keys).
package observability
