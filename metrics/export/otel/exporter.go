package otel

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/metric"

	"github.com/ramppy/authkit"
	"github.com/ramppy/authkit/metrics/export/internaldefs"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// Source is what the exporter observes. *authkit.Engine satisfies it.
type Source interface {
	MetricsSnapshot() authkit.MetricsSnapshot
	AuditDropped() uint64
}

// Exporter mirrors an engine snapshot into observable instruments. Values
// are read from the source on every collection; nothing is cached.
type Exporter struct {
	source Source
	reg    metric.Registration

	counters map[authkit.MetricID]metric.Int64ObservableCounter
	latency  latencyInstruments
	dropped  metric.Int64ObservableCounter
}

// latencyInstruments render the login latency histogram as cumulative
// bucket gauges plus count and sum, the same series Prometheus scrapes.
type latencyInstruments struct {
	le    [internaldefs.BucketCount]metric.Int64ObservableGauge
	count metric.Int64ObservableGauge
	sum   metric.Float64ObservableGauge
}

func NewExporter(meter metric.Meter, source Source) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	r := &registrar{meter: meter}
	e := &Exporter{
		source:   source,
		counters: make(map[authkit.MetricID]metric.Int64ObservableCounter, len(internaldefs.CounterDefs)),
	}
	for _, def := range internaldefs.CounterDefs {
		e.counters[def.ID] = r.counter(def.Name, def.Help)
	}

	lat := latencyDef()
	for i := range e.latency.le {
		e.latency.le[i] = r.gauge(lat.Name+"_bucket_le_"+internaldefs.BoundSuffix(i), "Cumulative bucket count. "+lat.Help)
	}
	e.latency.count = r.gauge(lat.Name+"_count", "Sample count. "+lat.Help)
	e.latency.sum = r.floatGauge(lat.Name+"_sum", "Total seconds observed. "+lat.Help)

	e.dropped = r.counter("authkit_audit_dropped_total", "Audit events dropped on a full buffer.")
	if r.err != nil {
		return nil, r.err
	}

	reg, err := meter.RegisterCallback(e.observe, r.all...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.reg = reg
	return e, nil
}

func latencyDef() internaldefs.MetricDef {
	for _, def := range internaldefs.HistogramDefs {
		if def.ID == authkit.MetricLoginLatency {
			return def
		}
	}
	panic("otel: login latency histogram is not defined")
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	for id, ins := range e.counters {
		o.ObserveInt64(ins, int64(snap.Counters[id]))
	}

	cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snap.Histograms[authkit.MetricLoginLatency]))
	for i, ins := range e.latency.le {
		o.ObserveInt64(ins, int64(cumulative[i]))
	}
	o.ObserveInt64(e.latency.count, int64(cumulative[internaldefs.BucketCount-1]))
	o.ObserveFloat64(e.latency.sum, snap.Sums[authkit.MetricLoginLatency].Seconds())

	o.ObserveInt64(e.dropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the collection callback.
func (e *Exporter) Close() error {
	if e == nil || e.reg == nil {
		return nil
	}
	return e.reg.Unregister()
}

// registrar creates instruments and keeps the first error, so NewExporter
// checks once after the whole set is declared.
type registrar struct {
	meter metric.Meter
	all   []metric.Observable
	err   error
}

func (r *registrar) counter(name, help string) metric.Int64ObservableCounter {
	if r.err != nil {
		return nil
	}
	ins, err := r.meter.Int64ObservableCounter(name, metric.WithDescription(help))
	if err != nil {
		r.err = fmt.Errorf("create counter %s: %w", name, err)
		return nil
	}
	r.all = append(r.all, ins)
	return ins
}

func (r *registrar) gauge(name, help string) metric.Int64ObservableGauge {
	if r.err != nil {
		return nil
	}
	ins, err := r.meter.Int64ObservableGauge(name, metric.WithDescription(help))
	if err != nil {
		r.err = fmt.Errorf("create gauge %s: %w", name, err)
		return nil
	}
	r.all = append(r.all, ins)
	return ins
}

func (r *registrar) floatGauge(name, help string) metric.Float64ObservableGauge {
	if r.err != nil {
		return nil
	}
	ins, err := r.meter.Float64ObservableGauge(name, metric.WithDescription(help))
	if err != nil {
		r.err = fmt.Errorf("create gauge %s: %w", name, err)
		return nil
	}
	r.all = append(r.all, ins)
	return ins
}
