package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/virtualhospital/vhauth"
)

const hexSecret = "8f3c2a1b9d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f60718293a4b5c6d7e8"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", hexSecret)

	s, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Port != "5000" || s.Env != "development" || s.LogLevel != "info" {
		t.Fatalf("unexpected defaults: %+v", s)
	}
	if s.AccessTTL != 15*time.Minute || s.RefreshTTL != 7*24*time.Hour {
		t.Fatalf("unexpected ttl defaults: %v %v", s.AccessTTL, s.RefreshTTL)
	}
	if !s.EnforceVersion || s.DeviceBinding || !s.CSRFCookieSafe {
		t.Fatalf("unexpected flag defaults: %+v", s)
	}
	if err := s.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	cfg := s.EngineConfig()
	if len(cfg.Token.BaseSecret) != 32 {
		t.Fatalf("expected hex secret to decode to 32 bytes, got %d", len(cfg.Token.BaseSecret))
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("engine config must validate: %v", err)
	}
	if cfg.ProductionMode {
		t.Fatal("development settings must not enable production mode")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "a-raw-secret-that-is-not-hex-but-long-enough")
	t.Setenv("PORT", "8080")
	t.Setenv("APP_ENV", "Production")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("ACCESS_TOKEN_TTL", "5m")
	t.Setenv("TOKEN_VERSION_ENFORCE", "false")
	t.Setenv("TRUST_PROXY", "true")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	s, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Port != "8080" || !s.IsProduction() || s.RedisURL != "redis://localhost:6379/0" {
		t.Fatalf("env not applied: %+v", s)
	}
	if s.Level() != zerolog.DebugLevel {
		t.Fatalf("expected debug level, got %v", s.Level())
	}

	cfg := s.EngineConfig()
	if cfg.Token.AccessTTL != 5*time.Minute || cfg.Token.EnforceVersion || !cfg.Pipeline.TrustProxy {
		t.Fatalf("engine config not overlaid: %+v", cfg.Token)
	}
	if string(cfg.Token.BaseSecret) != "a-raw-secret-that-is-not-hex-but-long-enough" {
		t.Fatal("non-hex secrets must be used as raw bytes")
	}
	if !cfg.ProductionMode {
		t.Fatal("expected production mode")
	}
}

func TestLoadFileWithEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vhauth.yaml")
	body := strings.Join([]string{
		"port: \"9000\"",
		"log_level: warn",
		"jwt_secret: " + hexSecret,
		"csrf_single_use: true",
		"session_idle_timeout: 2h",
	}, "\n")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("PORT", "9100")

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Port != "9100" {
		t.Fatalf("env must win over file, got %q", s.Port)
	}
	if s.LogLevel != "warn" || !s.CSRFSingleUse || s.SessionIdle != 2*time.Hour {
		t.Fatalf("file values not applied: %+v", s)
	}
	if s.JWTSecret != hexSecret {
		t.Fatal("expected secret from file")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for a missing config file")
	}
}

func TestValidate(t *testing.T) {
	base := Settings{JWTSecret: hexSecret, LogLevel: "info", Env: "production", CSRFCookieSafe: true}

	cases := map[string]func(*Settings){
		"missing secret":  func(s *Settings) { s.JWTSecret = "" },
		"bad level":       func(s *Settings) { s.LogLevel = "loud" },
		"insecure cookie": func(s *Settings) { s.CSRFCookieSafe = false },
	}
	for name, mutate := range cases {
		s := base
		mutate(&s)
		if err := s.Validate(); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base settings must validate: %v", err)
	}
}

func TestShortHexSecretIsRaw(t *testing.T) {
	s := Settings{JWTSecret: "abcd"}
	if got := s.Secret(); string(got) != "abcd" {
		t.Fatalf("short hex must not be decoded, got %x", got)
	}
	if vhauth.MinBaseSecretBytes != 32 {
		t.Fatalf("unexpected minimum %d", vhauth.MinBaseSecretBytes)
	}
}

func TestAllowedOrigins(t *testing.T) {
	t.Setenv("JWT_SECRET", hexSecret)
	t.Setenv("FRONTEND_URL", "https://app.virtualhospital.example/")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")

	s, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.OTLPEndpoint != "collector:4317" || s.ServiceName != "vhauth-server" || s.SocialTrustClient {
		t.Fatalf("unexpected telemetry/social settings: %+v", s)
	}
	got := s.AllowedOrigins()
	want := []string{"https://app.virtualhospital.example", "http://localhost:3000", "http://127.0.0.1:3000"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("development origins: got %v want %v", got, want)
	}

	s.Env = "production"
	if got := s.AllowedOrigins(); len(got) != 1 || got[0] != want[0] {
		t.Fatalf("production must only allow FRONTEND_URL, got %v", got)
	}
}
