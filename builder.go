package vhauth

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/virtualhospital/vhauth/internal/audit"
	"github.com/virtualhospital/vhauth/internal/csrf"
	"github.com/virtualhospital/vhauth/internal/flows"
	"github.com/virtualhospital/vhauth/internal/rate"
	"github.com/virtualhospital/vhauth/jwt"
	"github.com/virtualhospital/vhauth/session"
)

// Builder assembles an [Engine]. Configure it during initialization, call
// Build once, and discard it.
type Builder struct {
	config    Config
	redis     redis.UniversalClient
	logger    zerolog.Logger
	auditSink AuditSink
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
		logger: zerolog.Nop(),
	}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis moves the session registry, rate windows and CSRF tokens into
// Redis. This is required when more than one process serves the same users.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger sets the engine logger. The default discards everything.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithClock overrides the time source of every component. Intended for
// tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration and wires the engine. A
// *ConfigurationError means the process must not start.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	// -------- STORES --------
	var (
		sessionStore session.Store
		rateBackend  rate.Backend
		csrfStore    csrf.Store
	)
	if b.redis != nil {
		sessionStore = session.NewRedisStore(b.redis, cfg.Session.RedisPrefix, cfg.Session.IdleTimeout)
		rateBackend = rate.NewRedisBackend(b.redis, cfg.RateLimit.RedisPrefix)
		csrfStore = csrf.NewRedisStore(b.redis, cfg.CSRF.RedisPrefix)
	} else {
		sessionStore = session.NewMemoryStore()
		rateBackend = rate.NewMemoryBackend()
		csrfStore = csrf.NewMemoryStore()
	}

	// -------- TOKENS --------
	tokens, err := jwt.NewManager(jwt.Config{
		BaseSecret: cfg.Token.BaseSecret,
		Issuer:     cfg.Token.Issuer,
		AccessTTL:  cfg.Token.AccessTTL,
		RefreshTTL: cfg.Token.RefreshTTL,
		Leeway:     cfg.Token.Leeway,
		Now:        now,
	})
	if err != nil {
		return nil, configError("Token", err.Error())
	}

	registry := session.NewRegistry(sessionStore, session.WithClock(now))

	engine := &Engine{
		config:   cfg,
		logger:   b.logger,
		now:      now,
		sessions: registry,
		tokens:   tokens,
		limiter:  rate.New(rateBackend, cfg.RateLimit.policies(), rate.WithClock(now)),
		metrics:  NewMetrics(cfg.Metrics),
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
		distributed: b.redis != nil,
	}
	engine.csrf = csrf.New(csrfStore, csrf.Config{
		TTL:                cfg.CSRF.TTL,
		SingleUse:          cfg.CSRF.SingleUse,
		CleanupProbability: cfg.CSRF.CleanupProbability,
	}, csrf.WithClock(now), csrf.WithRoll(engine.rollFloat))
	engine.flows = flows.Deps{
		Issue: flows.IssueDeps{
			Sessions: registry,
			Tokens:   tokens,
			Warn:     engine.warn,
		},
		Verify: flows.VerifyDeps{
			Sessions:       registry,
			Tokens:         tokens,
			EnforceVersion: cfg.Token.EnforceVersion,
			EnforceDevice:  cfg.DeviceBinding.EnforceOnVerify,
		},
		Refresh: flows.RefreshDeps{
			Sessions:       registry,
			Tokens:         tokens,
			EnforceVersion: cfg.Token.EnforceVersion,
		},
		Logout: flows.LogoutDeps{Sessions: registry},
	}

	b.built = true
	return engine, nil
}
