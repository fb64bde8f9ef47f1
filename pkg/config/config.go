package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fedbridge/fedbridge/pkg/observability"
)

// Config holds all bridge configuration. It is constructed once at startup
// and shared read-only across request handlers.
type Config struct {
	Server        ServerConfig
	IdP           IdPConfig
	SP            SPConfig
	OIDC          OIDCConfig
	Users         UserConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// IdPConfig holds the SAML Identity Provider role configuration
type IdPConfig struct {
	EntityID             string
	SSOURL               string
	CertificateFile      string
	PrivateKeyFile       string
	PrivateKeyPassphrase string

	// Login response XML template asset
	ResponseTemplateFile string

	// Structural validation of inbound AuthnRequests. Disabled by default
	// to match the upstream deployments this bridge replaces; enabling it
	// changes security posture.
	SchemaValidation bool
}

// SPConfig holds the trusted Service Provider configuration
type SPConfig struct {
	MetadataFile  string
	LoginURL      string
	WatchMetadata bool
}

// OIDCConfig holds the upstream OAuth/OIDC provider configuration
type OIDCConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	ResponseType string
	ResponseMode string
}

// UserConfig controls how authenticated users map into SAML attributes
type UserConfig struct {
	// Roles is the comma-joined role string asserted for every
	// authenticated user. Role claims from the OIDC provider are not
	// consulted.
	Roles string

	// DefaultDisplayName is used when the provider omits a name claim
	DefaultDisplayName string

	// AttributeFile optionally overrides Roles and supplies fixed profile
	// attributes (department, location, ...) from a YAML file
	AttributeFile string

	// Defaults loaded from AttributeFile
	Defaults AttributeDefaults
}

// AttributeDefaults are fixed profile attributes attached to every user
type AttributeDefaults struct {
	Roles      string `yaml:"roles"`
	Department string `yaml:"department"`
	Location   string `yaml:"location"`
	Manager    string `yaml:"manager"`
	Phone      string `yaml:"phone"`
	TeamID     string `yaml:"team_id"`
	TeamName   string `yaml:"team_name"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnv("BRIDGE_HOST", "0.0.0.0"),
			Port:            getEnv("BRIDGE_PORT", "8080"),
			ReadTimeout:     getEnvDuration("BRIDGE_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvDuration("BRIDGE_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvDuration("BRIDGE_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("BRIDGE_SHUTDOWN_TIMEOUT", 30*time.Second),
			HealthPort:      getEnv("BRIDGE_HEALTH_PORT", "9090"),
		},
		IdP: IdPConfig{
			EntityID:             getEnv("BRIDGE_IDP_ENTITY_ID", ""),
			SSOURL:               getEnv("BRIDGE_IDP_SSO_URL", "/idp/sso"),
			CertificateFile:      getEnv("BRIDGE_IDP_CERT_FILE", ""),
			PrivateKeyFile:       getEnv("BRIDGE_IDP_PRIVATE_KEY_FILE", ""),
			PrivateKeyPassphrase: getEnv("BRIDGE_IDP_PRIVATE_KEY_PASS", ""),
			ResponseTemplateFile: getEnv("BRIDGE_SAML_RESPONSE_TEMPLATE", ""),
			SchemaValidation:     getEnvBool("BRIDGE_SAML_SCHEMA_VALIDATION", false),
		},
		SP: SPConfig{
			MetadataFile:  getEnv("BRIDGE_SP_METADATA_FILE", ""),
			LoginURL:      getEnv("BRIDGE_SP_LOGIN_URL", ""),
			WatchMetadata: getEnvBool("BRIDGE_SP_METADATA_WATCH", true),
		},
		OIDC: OIDCConfig{
			IssuerURL:    getEnv("BRIDGE_OAUTH_ISSUER_URI", ""),
			ClientID:     getEnv("BRIDGE_OAUTH_CLIENT_ID", ""),
			ClientSecret: getEnv("BRIDGE_OAUTH_CLIENT_SECRET", ""),
			RedirectURI:  getEnv("BRIDGE_OAUTH_REDIRECT_URI", ""),
			Scopes:       strings.Fields(getEnv("BRIDGE_OAUTH_SCOPES", "openid profile email")),
			ResponseType: getEnv("BRIDGE_OAUTH_RESPONSE_TYPE", "code"),
			ResponseMode: getEnv("BRIDGE_OAUTH_RESPONSE_MODE", "form_post"),
		},
		Users: UserConfig{
			Roles:              getEnv("BRIDGE_USER_ROLES", "agent,admin,supervisor"),
			DefaultDisplayName: getEnv("BRIDGE_USER_DEFAULT_NAME", "OAuth User"),
			AttributeFile:      getEnv("BRIDGE_USER_ATTRIBUTE_FILE", ""),
		},
		Observability: ObservabilityConfig{
			LogLevel:           parseLogLevel(getEnv("BRIDGE_LOG_LEVEL", "info")),
			MetricsEnabled:     getEnvBool("BRIDGE_METRICS_ENABLED", true),
			OTelEnabled:        getEnvBool("BRIDGE_OTEL_ENABLED", false),
			OTelEndpoint:       getEnv("BRIDGE_OTEL_ENDPOINT", "localhost:4317"),
			OTelServiceName:    getEnv("BRIDGE_OTEL_SERVICE_NAME", "fedbridge"),
			OTelServiceVersion: getEnv("BRIDGE_OTEL_SERVICE_VERSION", "1.0.0"),
			OTelInsecure:       getEnvBool("BRIDGE_OTEL_INSECURE", true),
		},
	}

	if cfg.Users.AttributeFile != "" {
		defaults, err := loadAttributeDefaults(cfg.Users.AttributeFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load attribute file: %w", err)
		}
		cfg.Users.Defaults = defaults
		if defaults.Roles != "" {
			cfg.Users.Roles = defaults.Roles
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadAttributeDefaults reads the optional YAML attribute file
func loadAttributeDefaults(path string) (AttributeDefaults, error) {
	var defaults AttributeDefaults

	data, err := os.ReadFile(path)
	if err != nil {
		return defaults, err
	}

	if err := yaml.Unmarshal(data, &defaults); err != nil {
		return defaults, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}

	return defaults, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.IdP.EntityID == "" {
		return fmt.Errorf("IdP entity ID is required")
	}
	if c.IdP.CertificateFile == "" {
		return fmt.Errorf("IdP certificate file is required")
	}
	if c.IdP.PrivateKeyFile == "" {
		return fmt.Errorf("IdP private key file is required")
	}
	if c.IdP.ResponseTemplateFile == "" {
		return fmt.Errorf("SAML login response template file is required")
	}

	if c.SP.MetadataFile == "" {
		return fmt.Errorf("SP metadata file is required")
	}

	if c.OIDC.IssuerURL == "" {
		return fmt.Errorf("OAuth issuer URI is required")
	}
	if c.OIDC.ClientID == "" {
		return fmt.Errorf("OAuth client ID is required")
	}
	if c.OIDC.RedirectURI == "" {
		return fmt.Errorf("OAuth redirect URI is required")
	}
	hasOpenID := false
	for _, scope := range c.OIDC.Scopes {
		if scope == "openid" {
			hasOpenID = true
			break
		}
	}
	if !hasOpenID {
		return fmt.Errorf("'openid' scope is required")
	}

	if c.Observability.OTelEnabled && c.Observability.OTelEndpoint == "" {
		return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
