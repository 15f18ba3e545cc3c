package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/virtualhospital/vhauth"
	vhotel "github.com/virtualhospital/vhauth/metrics/export/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

const (
	otlpPushInterval = 10 * time.Second
	meterName        = "github.com/virtualhospital/vhauth"
)

// otlpTarget reduces an OTLP endpoint to the host:port gRPC dials. Paths are
// dropped. Plaintext is used unless the scheme is https or force is set.
func otlpTarget(endpoint string, force bool) (target string, insecure bool, err error) {
	endpoint = strings.TrimSpace(endpoint)
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("OTEL_EXPORTER_OTLP_ENDPOINT %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("OTEL_EXPORTER_OTLP_ENDPOINT %q: missing host", endpoint)
	}
	return u.Host, force || u.Scheme != "https", nil
}

func serviceResource(serviceName string) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
	)
}

// engineMetrics publishes engine metrics through mp. The returned stop
// unregisters the instruments and shuts the provider down.
func engineMetrics(mp *sdkmetric.MeterProvider, engine *vhauth.Engine) (stop func(context.Context) error, err error) {
	exporter, err := vhotel.NewOTelExporter(mp.Meter(meterName), engine)
	if err != nil {
		_ = mp.Shutdown(context.Background())
		return nil, err
	}
	return func(ctx context.Context) error {
		return errors.Join(exporter.Close(), mp.Shutdown(ctx))
	}, nil
}

// startTelemetry pushes engine metrics to an OTLP collector over gRPC. It
// does nothing when endpoint is empty.
func startTelemetry(ctx context.Context, endpoint, serviceName string, insecureOverride bool, engine *vhauth.Engine, logger zerolog.Logger) (func(context.Context) error, error) {
	if strings.TrimSpace(endpoint) == "" {
		return func(context.Context) error { return nil }, nil
	}
	target, insecure, err := otlpTarget(endpoint, insecureOverride)
	if err != nil {
		return nil, err
	}
	res, err := serviceResource(serviceName)
	if err != nil {
		return nil, err
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(target)}
	if insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("otlp metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(otlpPushInterval))),
	)

	stop, err := engineMetrics(mp, engine)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("target", target).Bool("insecure", insecure).Msg("otlp metrics enabled")
	return stop, nil
}
