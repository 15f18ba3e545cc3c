package vhauth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigNeedsOnlyASecret(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected missing secret to fail")
	}
	cfg.Token.BaseSecret = []byte(testSecret)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestConfigValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		field  string
		mutate func(*Config)
	}{
		{"short secret", "Token.BaseSecret", func(c *Config) { c.Token.BaseSecret = []byte("too-short") }},
		{"low variety secret", "Token.BaseSecret", func(c *Config) { c.Token.BaseSecret = []byte(strings.Repeat("ab", 20)) }},
		{"zero access ttl", "Token.AccessTTL", func(c *Config) { c.Token.AccessTTL = 0 }},
		{"refresh shorter than access", "Token.RefreshTTL", func(c *Config) { c.Token.RefreshTTL = time.Minute }},
		{"negative leeway", "Token.Leeway", func(c *Config) { c.Token.Leeway = -time.Second }},
		{"large leeway", "Token.Leeway", func(c *Config) { c.Token.Leeway = 5 * time.Minute }},
		{"zero idle timeout", "Session.IdleTimeout", func(c *Config) { c.Session.IdleTimeout = 0 }},
		{"zero sweep interval", "Session.SweepInterval", func(c *Config) { c.Session.SweepInterval = 0 }},
		{"login policy", "RateLimit.Login", func(c *Config) { c.RateLimit.Login.MaxAttempts = 0 }},
		{"api window", "RateLimit.API", func(c *Config) { c.RateLimit.API.Window = 0 }},
		{"sweep probability", "RateLimit.SweepProbability", func(c *Config) { c.RateLimit.SweepProbability = 1.5 }},
		{"csrf ttl", "CSRF.TTL", func(c *Config) { c.CSRF.TTL = 0 }},
		{"csrf header", "CSRF.HeaderName", func(c *Config) { c.CSRF.HeaderName = "" }},
		{"csrf cookie", "CSRF.CookieName", func(c *Config) { c.CSRF.CookieName = "" }},
		{"csrf cleanup", "CSRF.CleanupProbability", func(c *Config) { c.CSRF.CleanupProbability = -0.1 }},
		{"body limit", "Pipeline.MaxBodyBytes", func(c *Config) { c.Pipeline.MaxBodyBytes = -1 }},
		{"audit buffer", "Audit.BufferSize", func(c *Config) { c.Audit.BufferSize = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Audit.Enabled = true
			tt.mutate(&cfg)

			err := cfg.Validate()
			var cerr *ConfigurationError
			if !errors.As(err, &cerr) {
				t.Fatalf("expected *ConfigurationError, got %v", err)
			}
			if cerr.Field != tt.field {
				t.Fatalf("expected field %q, got %q (%v)", tt.field, cerr.Field, err)
			}
		})
	}
}

func TestLowVarietySecretAllowedOutsideProduction(t *testing.T) {
	cfg := testConfig()
	cfg.ProductionMode = false
	cfg.Token.BaseSecret = []byte(strings.Repeat("ab", 20))
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected development mode to accept the secret, got %v", err)
	}
}

func TestWithConfigCopiesSecret(t *testing.T) {
	cfg := testConfig()
	b := New().WithConfig(cfg)
	cfg.Token.BaseSecret[0] = 'X'

	engine, err := b.WithClock(newTestClock().Now).Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer engine.Close()
	if engine.config.Token.BaseSecret[0] == 'X' {
		t.Fatalf("builder must not alias the caller's secret")
	}
	if engine.Config().Token.BaseSecret != nil {
		t.Fatalf("Config() must not expose the secret")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	b := New().WithConfig(testConfig())
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	defer engine.Close()
	if _, err := b.Build(); err == nil {
		t.Fatalf("expected second Build to fail")
	}
}

func TestBuilderRejectsInvalidConfig(t *testing.T) {
	_, err := New().Build()
	var cerr *ConfigurationError
	if !errors.As(err, &cerr) || cerr.Field != "Token.BaseSecret" {
		t.Fatalf("expected missing secret configuration error, got %v", err)
	}
}
