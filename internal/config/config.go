// Package config loads process settings for vhauth-server from the
// environment and an optional config file.
package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/virtualhospital/vhauth"
)

// Settings are the knobs an operator sets. Everything else comes from
// [vhauth.DefaultConfig].
type Settings struct {
	Port      string `mapstructure:"PORT"`
	Env       string `mapstructure:"APP_ENV"`
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	JWTSecret string `mapstructure:"JWT_SECRET"`
	Issuer    string `mapstructure:"JWT_ISSUER"`
	RedisURL  string `mapstructure:"REDIS_URL"`

	AccessTTL      time.Duration `mapstructure:"ACCESS_TOKEN_TTL"`
	RefreshTTL     time.Duration `mapstructure:"REFRESH_TOKEN_TTL"`
	EnforceVersion bool          `mapstructure:"TOKEN_VERSION_ENFORCE"`
	DeviceBinding  bool          `mapstructure:"DEVICE_BINDING_ON_VERIFY"`
	SessionIdle    time.Duration `mapstructure:"SESSION_IDLE_TIMEOUT"`

	TrustProxy     bool  `mapstructure:"TRUST_PROXY"`
	MaxBodyBytes   int64 `mapstructure:"MAX_BODY_BYTES"`
	CSRFSingleUse  bool  `mapstructure:"CSRF_SINGLE_USE"`
	CSRFCookieSafe bool  `mapstructure:"CSRF_COOKIE_SECURE"`

	AuditEnabled   bool `mapstructure:"AUDIT_ENABLED"`
	MetricsEnabled bool `mapstructure:"METRICS_ENABLED"`

	// FrontendURL is the browser origin allowed by CORS.
	FrontendURL string `mapstructure:"FRONTEND_URL"`
	// OTLPEndpoint enables OTLP metric export when set (host:port or URL).
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	ServiceName  string `mapstructure:"OTEL_SERVICE_NAME"`
	// SocialTrustClient mounts /firebase-login and accepts the identity the
	// frontend asserts after its own provider sign-in.
	SocialTrustClient bool `mapstructure:"SOCIAL_LOGIN_TRUST_CLIENT"`
}

var keys = []string{
	"PORT", "APP_ENV", "LOG_LEVEL", "JWT_SECRET", "JWT_ISSUER", "REDIS_URL",
	"ACCESS_TOKEN_TTL", "REFRESH_TOKEN_TTL", "TOKEN_VERSION_ENFORCE",
	"DEVICE_BINDING_ON_VERIFY", "SESSION_IDLE_TIMEOUT",
	"TRUST_PROXY", "MAX_BODY_BYTES", "CSRF_SINGLE_USE", "CSRF_COOKIE_SECURE",
	"AUDIT_ENABLED", "METRICS_ENABLED", "FRONTEND_URL",
	"OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_INSECURE", "OTEL_SERVICE_NAME",
	"SOCIAL_LOGIN_TRUST_CLIENT",
}

// devOrigins are allowed alongside FrontendURL outside production.
var devOrigins = []string{"http://localhost:3000", "http://127.0.0.1:3000"}

// Load reads settings. A non-empty file must exist; environment variables
// override values from it.
func Load(file string) (*Settings, error) {
	v := viper.New()

	defaults := vhauth.DefaultConfig()
	v.SetDefault("PORT", "5000")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("JWT_ISSUER", defaults.Token.Issuer)
	v.SetDefault("ACCESS_TOKEN_TTL", defaults.Token.AccessTTL)
	v.SetDefault("REFRESH_TOKEN_TTL", defaults.Token.RefreshTTL)
	v.SetDefault("TOKEN_VERSION_ENFORCE", defaults.Token.EnforceVersion)
	v.SetDefault("DEVICE_BINDING_ON_VERIFY", defaults.DeviceBinding.EnforceOnVerify)
	v.SetDefault("SESSION_IDLE_TIMEOUT", defaults.Session.IdleTimeout)
	v.SetDefault("MAX_BODY_BYTES", defaults.Pipeline.MaxBodyBytes)
	v.SetDefault("CSRF_SINGLE_USE", defaults.CSRF.SingleUse)
	v.SetDefault("CSRF_COOKIE_SECURE", defaults.CSRF.CookieSecure)
	v.SetDefault("AUDIT_ENABLED", defaults.Audit.Enabled)
	v.SetDefault("METRICS_ENABLED", defaults.Metrics.Enabled)
	v.SetDefault("FRONTEND_URL", "http://localhost:3000")
	v.SetDefault("OTEL_SERVICE_NAME", "vhauth-server")

	for _, key := range keys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	s.Env = strings.ToLower(strings.TrimSpace(s.Env))
	return s, nil
}

func (s *Settings) IsProduction() bool {
	return s.Env == "production"
}

// Validate checks settings that the engine config cannot see.
func (s *Settings) Validate() error {
	if s.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if _, err := zerolog.ParseLevel(s.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if s.IsProduction() && !s.CSRFCookieSafe {
		return fmt.Errorf("CSRF_COOKIE_SECURE must be true in production")
	}
	return nil
}

// AllowedOrigins returns the CORS allow-list: FrontendURL, plus the local
// development origins outside production.
func (s *Settings) AllowedOrigins() []string {
	var out []string
	seen := map[string]bool{}
	add := func(origin string) {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin != "" && !seen[origin] {
			seen[origin] = true
			out = append(out, origin)
		}
	}
	add(s.FrontendURL)
	if !s.IsProduction() {
		for _, o := range devOrigins {
			add(o)
		}
	}
	return out
}

// Level returns the zerolog level, defaulting to info.
func (s *Settings) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(s.LogLevel)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Secret decodes JWT_SECRET. Hex input (as printed by gen-secret) is
// decoded; anything else is used as raw bytes.
func (s *Settings) Secret() []byte {
	if raw, err := hex.DecodeString(s.JWTSecret); err == nil && len(raw) >= vhauth.MinBaseSecretBytes {
		return raw
	}
	return []byte(s.JWTSecret)
}

// EngineConfig overlays the settings on [vhauth.DefaultConfig].
func (s *Settings) EngineConfig() vhauth.Config {
	cfg := vhauth.DefaultConfig()
	cfg.ProductionMode = s.IsProduction()

	cfg.Token.BaseSecret = s.Secret()
	cfg.Token.Issuer = s.Issuer
	cfg.Token.AccessTTL = s.AccessTTL
	cfg.Token.RefreshTTL = s.RefreshTTL
	cfg.Token.EnforceVersion = s.EnforceVersion
	cfg.DeviceBinding.EnforceOnVerify = s.DeviceBinding
	cfg.Session.IdleTimeout = s.SessionIdle

	cfg.Pipeline.TrustProxy = s.TrustProxy
	cfg.Pipeline.MaxBodyBytes = s.MaxBodyBytes
	cfg.CSRF.SingleUse = s.CSRFSingleUse
	cfg.CSRF.CookieSecure = s.CSRFCookieSafe

	cfg.Audit.Enabled = s.AuditEnabled
	cfg.Metrics.Enabled = s.MetricsEnabled
	cfg.Metrics.EnableLatencyHistograms = s.MetricsEnabled
	return cfg
}
