package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/virtualhospital/vhauth"
	"github.com/virtualhospital/vhauth/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

const auditDroppedName = "vhauth_audit_dropped_total"

type metricsSource interface {
	MetricsSnapshot() vhauth.MetricsSnapshot
	AuditDropped() uint64
}

// latency is one engine histogram published as a cumulative bucket counter
// keyed by the "le" attribute, plus its sample count.
type latency struct {
	id      vhauth.MetricID
	buckets metric.Int64ObservableCounter
	count   metric.Int64ObservableCounter
}

// OTelExporter keeps the callback registration alive until Close.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration
	counters     map[vhauth.MetricID]metric.Int64ObservableCounter
	latencies    []latency
	auditDropped metric.Int64ObservableCounter
}

// NewOTelExporter registers instruments for engine on meter.
func NewOTelExporter(meter metric.Meter, engine *vhauth.Engine) (*OTelExporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewOTelExporterFromSource(meter, engine)
}

func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	x := &OTelExporter{
		source:   source,
		counters: make(map[vhauth.MetricID]metric.Int64ObservableCounter, len(internaldefs.CounterDefs)),
	}
	var instruments []metric.Observable

	for _, def := range internaldefs.CounterDefs {
		c, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", def.Name, err)
		}
		x.counters[def.ID] = c
		instruments = append(instruments, c)
	}

	for _, def := range internaldefs.HistogramDefs {
		buckets, err := meter.Int64ObservableCounter(def.Name+"_bucket",
			metric.WithDescription(def.Help+" Cumulative count per upper bound."),
			metric.WithUnit("{request}"))
		if err != nil {
			return nil, fmt.Errorf("histogram %s: %w", def.Name, err)
		}
		count, err := meter.Int64ObservableCounter(def.Name+"_count",
			metric.WithDescription(def.Help+" Total samples."),
			metric.WithUnit("{request}"))
		if err != nil {
			return nil, fmt.Errorf("histogram %s: %w", def.Name, err)
		}
		x.latencies = append(x.latencies, latency{id: def.ID, buckets: buckets, count: count})
		instruments = append(instruments, buckets, count)
	}

	dropped, err := meter.Int64ObservableCounter(auditDroppedName,
		metric.WithDescription("Audit events dropped because the sink could not keep up."))
	if err != nil {
		return nil, fmt.Errorf("counter %s: %w", auditDroppedName, err)
	}
	x.auditDropped = dropped
	instruments = append(instruments, dropped)

	reg, err := meter.RegisterCallback(x.observe, instruments...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	x.registration = reg
	return x, nil
}

// observe publishes one snapshot per collection.
func (x *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snap := x.source.MetricsSnapshot()
	for id, c := range x.counters {
		o.ObserveInt64(c, int64(snap.Counters[id]))
	}
	for _, l := range x.latencies {
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snap.Histograms[l.id]))
		for i, n := range cumulative {
			o.ObserveInt64(l.buckets, int64(n),
				metric.WithAttributes(attribute.String("le", internaldefs.HistogramBounds[i])))
		}
		o.ObserveInt64(l.count, int64(cumulative[len(cumulative)-1]))
	}
	o.ObserveInt64(x.auditDropped, int64(x.source.AuditDropped()))
	return nil
}

// Close unregisters the callback. The instruments stay on the meter but
// report nothing afterwards.
func (x *OTelExporter) Close() error {
	if x == nil || x.registration == nil {
		return nil
	}
	return x.registration.Unregister()
}
