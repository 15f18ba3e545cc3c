package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/virtualhospital/vhauth"
	"github.com/virtualhospital/vhauth/internal"
	"github.com/virtualhospital/vhauth/internal/config"
)

const secretBytes = 64

func generateSecret() (string, error) {
	return internal.RandomHex(secretBytes)
}

// runCheckConfig validates settings the same way serve does and prints the
// security report as JSON. REDIS_URL is parsed but never dialed.
func runCheckConfig(out io.Writer, configFile string) error {
	settings, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	builder := vhauth.New().
		WithConfig(settings.EngineConfig()).
		WithLogger(zerolog.Nop())
	if settings.RedisURL != "" {
		client, err := newRedisClient(settings.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()
		builder = builder.WithRedis(client)
	}

	engine, err := builder.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(engine.SecurityReport()); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}
