package prometheus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ramppy/authkit"
	"github.com/ramppy/authkit/metrics/export/internaldefs"
	"github.com/ramppy/authkit/record/memory"
)

type fakeSource struct {
	snapshot authkit.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() authkit.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                     { return f.dropped }

func TestRenderEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewExporter(fakeSource{
		snapshot: authkit.MetricsSnapshot{
			Counters:   map[authkit.MetricID]uint64{},
			Histograms: map[authkit.MetricID][]uint64{},
		},
	})

	if got := exp.Render(); got != "" {
		t.Fatalf("expected empty output, got:\n%s", got)
	}
}

func TestRenderCountersAndCumulativeHistogram(t *testing.T) {
	exp := NewExporter(fakeSource{
		snapshot: authkit.MetricsSnapshot{
			Counters: map[authkit.MetricID]uint64{
				authkit.MetricLoginSuccess:  7,
				authkit.MetricAccountLocked: 2,
			},
			Histograms: map[authkit.MetricID][]uint64{
				authkit.MetricLoginLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
			Sums: map[authkit.MetricID]time.Duration{
				authkit.MetricLoginLatency: 42500 * time.Millisecond,
			},
		},
		dropped: 3,
	})

	out := exp.Render()
	for _, want := range []string{
		"authkit_login_success_total 7",
		"authkit_account_locked_total 2",
		"authkit_signup_success_total 0",
		`authkit_login_latency_seconds_bucket{le="0.05"} 1`,
		`authkit_login_latency_seconds_bucket{le="0.25"} 6`,
		`authkit_login_latency_seconds_bucket{le="+Inf"} 36`,
		"authkit_login_latency_seconds_count 36",
		"authkit_login_latency_seconds_sum 42.5",
		"authkit_audit_dropped_total 3",
		"# TYPE authkit_login_latency_seconds histogram",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output:\n%s", want, out)
		}
	}
}

func TestCounterDefsAreUnique(t *testing.T) {
	seen := map[string]bool{}
	ids := map[authkit.MetricID]bool{}
	for _, def := range internaldefs.CounterDefs {
		if seen[def.Name] || ids[def.ID] {
			t.Fatalf("duplicate def %+v", def)
		}
		if !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("counter %q must end in _total", def.Name)
		}
		seen[def.Name] = true
		ids[def.ID] = true
	}
}

func TestHandlerAgainstEngine(t *testing.T) {
	engine, err := authkit.New().WithRecordStore(memory.New()).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	engine.Login(context.Background(), "nobody@example.com", "Secur3!pass")

	rec := httptest.NewRecorder()
	NewExporter(engine).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("unexpected content type %q", got)
	}
	if !strings.Contains(rec.Body.String(), "authkit_login_unknown_user_total 1") {
		t.Fatalf("expected unknown user counter, got:\n%s", rec.Body.String())
	}
}
