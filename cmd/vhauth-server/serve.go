package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/virtualhospital/vhauth"
	"github.com/virtualhospital/vhauth/internal/config"
	"github.com/virtualhospital/vhauth/password"
)

const shutdownTimeout = 10 * time.Second

func newLogger(settings *config.Settings, out io.Writer) zerolog.Logger {
	if !settings.IsProduction() {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(settings.Level()).With().Timestamp().Logger()
}

func newRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("REDIS_URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

// buildEngine wires the engine for serve. The returned cleanup closes the
// engine and, when used, the Redis client.
func buildEngine(ctx context.Context, settings *config.Settings, logger zerolog.Logger) (*vhauth.Engine, func(), error) {
	builder := vhauth.New().
		WithConfig(settings.EngineConfig()).
		WithLogger(logger.With().Str("component", "engine").Logger())
	if settings.AuditEnabled {
		builder = builder.WithAuditSink(vhauth.NewZerologSink(logger))
	}

	var client *redis.Client
	if settings.RedisURL != "" {
		var err error
		if client, err = newRedisClient(settings.RedisURL); err != nil {
			return nil, nil, err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		builder = builder.WithRedis(client)
	}

	engine, err := builder.Build()
	if err != nil {
		if client != nil {
			_ = client.Close()
		}
		return nil, nil, err
	}

	cleanup := func() {
		engine.Close()
		if client != nil {
			_ = client.Close()
		}
	}
	return engine, cleanup, nil
}

func runServe(ctx context.Context, configFile string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	settings, err := config.Load(configFile)
	if err != nil {
		return err
	}
	logger := newLogger(settings, os.Stdout)
	if err := settings.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid settings")
		return err
	}

	engine, cleanup, err := buildEngine(ctx, settings, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to build engine")
		return err
	}
	defer cleanup()

	report := engine.SecurityReport()
	logger.Info().
		Bool("production", report.ProductionMode).
		Bool("distributed", report.Distributed).
		Bool("version_enforced", report.VersionEnforced).
		Dur("access_ttl", report.AccessTTL).
		Msg("security posture")
	for _, w := range report.Warnings {
		logger.Warn().Msg(w)
	}

	stopTelemetry, err := startTelemetry(ctx, settings.OTLPEndpoint, settings.ServiceName, settings.OTLPInsecure, engine, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to start telemetry")
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := stopTelemetry(flushCtx); err != nil {
			logger.Warn().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	hasher, err := password.NewHasher(password.DefaultConfig())
	if err != nil {
		return err
	}
	opts := serverOptions{AllowedOrigins: settings.AllowedOrigins()}
	if settings.SocialTrustClient {
		logger.Warn().Msg("social login trusts client-asserted identities; verify provider tokens upstream")
		opts.Identity = clientAssertedIdentity{}
	}
	e := newServer(engine, newUserDirectory(hasher), logger, opts)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	sweeperDone := engine.StartSweeper(ctx)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + settings.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("server error")
			return err
		}
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	stop()
	<-sweeperDone
	logger.Info().Msg("server stopped")
	return nil
}
