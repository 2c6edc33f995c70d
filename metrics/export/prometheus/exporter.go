package prometheus

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ramppy/authkit"
	"github.com/ramppy/authkit/metrics/export/internaldefs"
)

const contentType = "text/plain; version=0.0.4; charset=utf-8"

// Source is what the exporter reads. *authkit.Engine satisfies it.
type Source interface {
	MetricsSnapshot() authkit.MetricsSnapshot
	AuditDropped() uint64
}

// Exporter renders engine metrics on demand.
type Exporter struct {
	source Source
}

func NewExporter(source Source) *Exporter {
	return &Exporter{source: source}
}

func (p *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render returns every counter, the login latency histogram and the audit
// drop count. It returns "" when the engine collects no metrics.
func (p *Exporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}
	snap := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snap.Counters) == 0 && len(snap.Histograms) == 0 && dropped == 0 {
		return ""
	}

	var w exposition
	w.Grow(4096)
	for _, def := range internaldefs.CounterDefs {
		w.counter(def.Name, def.Help, snap.Counters[def.ID])
	}
	for _, def := range internaldefs.HistogramDefs {
		buckets := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snap.Histograms[def.ID]))
		w.histogram(def.Name, def.Help, buckets, snap.Sums[def.ID])
	}
	w.counter("authkit_audit_dropped_total", "Audit events dropped on a full buffer.", dropped)
	return w.String()
}

// exposition accumulates the text format.
type exposition struct {
	strings.Builder
}

func (w *exposition) meta(name, help, kind string) {
	w.WriteString("# HELP " + name + " " + escapeHelp(help) + "\n")
	w.WriteString("# TYPE " + name + " " + kind + "\n")
}

func (w *exposition) sample(name, labels, value string) {
	w.WriteString(name)
	w.WriteString(labels)
	w.WriteByte(' ')
	w.WriteString(value)
	w.WriteByte('\n')
}

func (w *exposition) counter(name, help string, v uint64) {
	w.meta(name, help, "counter")
	w.sample(name, "", strconv.FormatUint(v, 10))
}

func (w *exposition) histogram(name, help string, cumulative [internaldefs.BucketCount]uint64, sum time.Duration) {
	w.meta(name, help, "histogram")
	for i, le := range authkit.HistogramBounds {
		w.sample(name+"_bucket", `{le="`+le+`"}`, strconv.FormatUint(cumulative[i], 10))
	}
	w.sample(name+"_sum", "", strconv.FormatFloat(sum.Seconds(), 'g', -1, 64))
	w.sample(name+"_count", "", strconv.FormatUint(cumulative[internaldefs.BucketCount-1], 10))
}

func escapeHelp(help string) string {
	return strings.NewReplacer(`\`, `\\`, "\n", `\n`).Replace(help)
}
