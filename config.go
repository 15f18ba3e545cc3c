package vhauth

import (
	"time"

	"github.com/virtualhospital/vhauth/internal/rate"
)

// MinBaseSecretBytes is the shortest base signing secret Validate accepts.
const MinBaseSecretBytes = 32

// Config holds every engine setting. It is cloned into the Engine by
// [Builder.Build] and immutable afterwards.
type Config struct {
	Token         TokenConfig
	Session       SessionConfig
	RateLimit     RateLimitConfig
	CSRF          CSRFConfig
	Pipeline      PipelineConfig
	DeviceBinding DeviceBindingConfig
	Audit         AuditConfig
	Metrics       MetricsConfig

	// ProductionMode tightens validation and is reported by SecurityReport.
	ProductionMode bool
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls signing and lifetimes. Per-session signing keys are
// derived from BaseSecret; it is never used to sign directly.
type TokenConfig struct {
	BaseSecret []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Leeway     time.Duration

	// EnforceVersion rejects access and refresh tokens whose tokenVersion is
	// older than the session's. Disabling it leaves the short access TTL as
	// the only bound on a superseded token.
	EnforceVersion bool
}

/*
====================================
SESSION CONFIG
====================================
*/

type SessionConfig struct {
	// IdleTimeout is the inactivity after which a session is swept. With
	// Redis it is also the key TTL.
	IdleTimeout   time.Duration
	SweepInterval time.Duration
	RedisPrefix   string
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RatePolicy bounds attempts per fixed window.
type RatePolicy struct {
	MaxAttempts int
	Window      time.Duration
}

type RateLimitConfig struct {
	Login    RatePolicy
	Register RatePolicy
	Refresh  RatePolicy
	API      RatePolicy

	// SweepProbability is the chance per limited request that lapsed windows
	// are swept inline.
	SweepProbability float64
	RedisPrefix      string
}

func (c RateLimitConfig) policies() map[rate.Action]rate.Policy {
	return map[rate.Action]rate.Policy{
		rate.ActionLogin:    rate.Policy(c.Login),
		rate.ActionRegister: rate.Policy(c.Register),
		rate.ActionRefresh:  rate.Policy(c.Refresh),
		rate.ActionAPI:      rate.Policy(c.API),
	}
}

/*
====================================
CSRF CONFIG
====================================
*/

type CSRFConfig struct {
	TTL time.Duration
	// HeaderName and BodyField are where protected requests carry the token.
	HeaderName string
	BodyField  string
	// CookieName holds the bootstrap session id for clients that are not yet
	// authenticated. SessionHeader is the fallback for non-browser clients.
	CookieName    string
	SessionHeader string
	CookieSecure  bool

	CleanupProbability float64
	SingleUse          bool
	RedisPrefix        string
}

/*
====================================
PIPELINE CONFIG
====================================
*/

type PipelineConfig struct {
	// TrustProxy takes the client IP from X-Forwarded-For / X-Real-IP.
	TrustProxy   bool
	MaxBodyBytes int64
	HSTS         bool
}

type DeviceBindingConfig struct {
	// EnforceOnVerify also rejects access tokens presented from a
	// conflicting fingerprint. Refresh always enforces binding.
	EnforceOnVerify bool
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULTS
====================================
*/

// DefaultConfig returns production-safe defaults. BaseSecret is left empty
// and must be supplied.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			Issuer:         "virtual-hospital",
			AccessTTL:      15 * time.Minute,
			RefreshTTL:     7 * 24 * time.Hour,
			EnforceVersion: true,
		},
		Session: SessionConfig{
			IdleTimeout:   24 * time.Hour,
			SweepInterval: time.Hour,
			RedisPrefix:   "vs",
		},
		RateLimit: RateLimitConfig{
			Login:            RatePolicy{MaxAttempts: 5, Window: 15 * time.Minute},
			Register:         RatePolicy{MaxAttempts: 3, Window: time.Hour},
			Refresh:          RatePolicy{MaxAttempts: 10, Window: time.Hour},
			API:              RatePolicy{MaxAttempts: 100, Window: time.Hour},
			SweepProbability: 0.01,
			RedisPrefix:      "vrl:",
		},
		CSRF: CSRFConfig{
			TTL:                time.Hour,
			HeaderName:         "X-CSRF-Token",
			BodyField:          "csrfToken",
			CookieName:         "vh_csrf_sid",
			SessionHeader:      "X-CSRF-Session",
			CookieSecure:       true,
			CleanupProbability: 0.01,
			RedisPrefix:        "vcsrf:",
		},
		Pipeline: PipelineConfig{
			MaxBodyBytes: 1 << 20,
			HSTS:         true,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		ProductionMode: true,
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.BaseSecret = cloneBytes(cfg.Token.BaseSecret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// minDistinctSecretBytes rejects secrets such as "aaaa..." or "abab..." that
// pass the length check but carry almost no entropy.
const minDistinctSecretBytes = 8

// Validate checks the configuration and returns a *ConfigurationError naming
// the first offending field.
func (c *Config) Validate() error {
	secret := c.Token.BaseSecret
	if len(secret) == 0 {
		return configError("Token.BaseSecret", "is required")
	}
	if len(secret) < MinBaseSecretBytes {
		return configError("Token.BaseSecret", "must be at least 32 bytes")
	}
	if c.ProductionMode && distinctBytes(secret) < minDistinctSecretBytes {
		return configError("Token.BaseSecret", "has too little variety to be a real secret")
	}
	if c.Token.AccessTTL <= 0 {
		return configError("Token.AccessTTL", "must be > 0")
	}
	if c.Token.RefreshTTL < c.Token.AccessTTL {
		return configError("Token.RefreshTTL", "must be >= AccessTTL")
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
		return configError("Token.Leeway", "must be within [0, 2m]")
	}

	if c.Session.IdleTimeout <= 0 {
		return configError("Session.IdleTimeout", "must be > 0")
	}
	if c.Session.SweepInterval <= 0 {
		return configError("Session.SweepInterval", "must be > 0")
	}

	for _, p := range []struct {
		field  string
		policy RatePolicy
	}{
		{"RateLimit.Login", c.RateLimit.Login},
		{"RateLimit.Register", c.RateLimit.Register},
		{"RateLimit.Refresh", c.RateLimit.Refresh},
		{"RateLimit.API", c.RateLimit.API},
	} {
		if p.policy.MaxAttempts <= 0 || p.policy.Window <= 0 {
			return configError(p.field, "needs MaxAttempts > 0 and Window > 0")
		}
	}
	if c.RateLimit.SweepProbability < 0 || c.RateLimit.SweepProbability > 1 {
		return configError("RateLimit.SweepProbability", "must be within [0, 1]")
	}

	if c.CSRF.TTL <= 0 {
		return configError("CSRF.TTL", "must be > 0")
	}
	if c.CSRF.HeaderName == "" || c.CSRF.BodyField == "" {
		return configError("CSRF.HeaderName", "header and body field names are required")
	}
	if c.CSRF.CookieName == "" {
		return configError("CSRF.CookieName", "is required")
	}
	if c.CSRF.CleanupProbability < 0 || c.CSRF.CleanupProbability > 1 {
		return configError("CSRF.CleanupProbability", "must be within [0, 1]")
	}

	if c.Pipeline.MaxBodyBytes < 0 {
		return configError("Pipeline.MaxBodyBytes", "must be >= 0")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return configError("Audit.BufferSize", "must be > 0 when audit is enabled")
	}
	return nil
}

func distinctBytes(b []byte) int {
	var seen [256]bool
	n := 0
	for _, c := range b {
		if !seen[c] {
			seen[c] = true
			n++
		}
	}
	return n
}
