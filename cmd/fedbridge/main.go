package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/fedbridge/fedbridge/pkg/bridge"
	"github.com/fedbridge/fedbridge/pkg/config"
	"github.com/fedbridge/fedbridge/pkg/httputil"
	"github.com/fedbridge/fedbridge/pkg/observability"
	"github.com/fedbridge/fedbridge/pkg/oidcrp"
	"github.com/fedbridge/fedbridge/pkg/saml"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("Starting fedbridge SSO bridge")

	if !cfg.IdP.SchemaValidation {
		logger.Warn("SAML AuthnRequest schema validation is disabled; set BRIDGE_SAML_SCHEMA_VALIDATION=true to enable structural checks")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize OpenTelemetry")
		os.Exit(1)
	}

	keys, err := saml.LoadKeyPair(cfg.IdP.CertificateFile, cfg.IdP.PrivateKeyFile, cfg.IdP.PrivateKeyPassphrase)
	if err != nil {
		logger.WithError(err).Error("Failed to load IdP signing keys")
		os.Exit(1)
	}

	spMetadata, err := saml.LoadSPMetadata(cfg.SP.MetadataFile)
	if err != nil {
		logger.WithError(err).Error("Failed to load SP metadata")
		os.Exit(1)
	}
	logger.Infof("Trusted SP metadata loaded for entity %s", spMetadata.EntityID())

	idp, err := saml.NewIdentityProvider(saml.IdentityProviderOptions{
		EntityID:             cfg.IdP.EntityID,
		SSOURL:               cfg.IdP.SSOURL,
		ResponseTemplateFile: cfg.IdP.ResponseTemplateFile,
		SchemaValidation:     cfg.IdP.SchemaValidation,
	}, keys)
	if err != nil {
		logger.WithError(err).Error("Failed to construct IdP role")
		os.Exit(1)
	}

	sp, err := saml.NewServiceProvider(spMetadata, cfg.IdP.EntityID, cfg.IdP.SSOURL, keys, nil)
	if err != nil {
		logger.WithError(err).Error("Failed to construct SP role")
		os.Exit(1)
	}

	oidcClient, err := oidcrp.New(ctx, oidcrp.Config{
		IssuerURL:    cfg.OIDC.IssuerURL,
		ClientID:     cfg.OIDC.ClientID,
		ClientSecret: cfg.OIDC.ClientSecret,
		RedirectURI:  cfg.OIDC.RedirectURI,
		Scopes:       cfg.OIDC.Scopes,
		ResponseType: cfg.OIDC.ResponseType,
		ResponseMode: cfg.OIDC.ResponseMode,
	})
	if err != nil {
		logger.WithError(err).Error("Failed to discover OIDC provider")
		os.Exit(1)
	}
	logger.Infof("OIDC provider discovered at %s", cfg.OIDC.IssuerURL)

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	handlers := bridge.NewHandlers(cfg, idp, sp, oidcClient, spMetadata, bridge.NewTemplateEngine(), metrics)

	router := mux.NewRouter()
	handlers.RegisterRoutes(router)

	middleware := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware(logger),
		httputil.LoggingMiddleware(logger),
		httputil.RecoveryMiddleware(logger),
		httputil.MaxBytesMiddleware(1 << 20),
	}
	if metrics != nil {
		middleware = append(middleware, metrics.HTTPMiddleware)
	}

	var handler http.Handler = httputil.Chain(middleware...)(router)
	if cfg.Observability.OTelEnabled {
		handler = otelhttp.NewHandler(handler, "fedbridge")
	}

	health := observability.NewHealthChecker()
	health.Register("oidc_provider", oidcClient.CheckDiscovery)
	health.Register("sp_metadata", func(ctx context.Context) error {
		_, err := spMetadata.ResolveACS(saml.BindingHTTPPost)
		return err
	})

	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/health/live", health.Liveness)
	healthMux.HandleFunc("/health/ready", health.Readiness)
	if cfg.Observability.MetricsEnabled {
		healthMux.Handle("/metrics", observability.Handler(registry))
	}

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Infof("Bridge listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	group.Go(func() error {
		logger.Infof("Health and metrics listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	if cfg.SP.WatchMetadata {
		watcher, err := saml.NewMetadataWatcher(spMetadata, logger, func(reloadErr error) {
			if metrics == nil {
				return
			}
			status := "success"
			if reloadErr != nil {
				status = "error"
			}
			metrics.MetadataReloadsTotal.WithLabelValues(status).Inc()
		})
		if err != nil {
			logger.WithError(err).Error("Failed to start SP metadata watcher")
			os.Exit(1)
		}
		group.Go(func() error {
			err := watcher.Run(groupCtx)
			if err == context.Canceled {
				return nil
			}
			return err
		})
	}

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Bridge server shutdown failed")
		}
		if err := healthServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("Health server shutdown failed")
		}
		return observability.ShutdownOTel(shutdownCtx, otelProviders, logger)
	})

	if err := group.Wait(); err != nil && err != context.Canceled {
		logger.WithError(err).Error("Bridge exited with error")
		os.Exit(1)
	}
	logger.Info("Bridge stopped")
}
