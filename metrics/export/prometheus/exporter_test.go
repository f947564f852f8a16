package prometheus

import (
	"crypto/ed25519"
	"crypto/rand"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/userstore/memory"
	"github.com/prometheus/client_golang/prometheus"
)

type fakeSource struct {
	snapshot authcore.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() authcore.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                      { return f.dropped }

func scrape(t *testing.T, exp *PrometheusExporter) string {
	t.Helper()

	rr := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("scrape status %d", rr.Code)
	}
	body, err := io.ReadAll(rr.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}

func TestScrapeEmptyWhenMetricsDisabled(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters:   map[authcore.MetricID]uint64{},
			Histograms: map[authcore.MetricID][]uint64{},
		},
	})

	if got := scrape(t, exp); strings.Contains(got, "authcore_") {
		t.Fatalf("expected no authcore series for disabled metrics, got:\n%s", got)
	}
}

func TestScrapeIncludesCounterAndHistogram(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters: map[authcore.MetricID]uint64{
				authcore.MetricLoginSuccess: 7,
			},
			Histograms: map[authcore.MetricID][]uint64{
				authcore.MetricValidateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	})

	out := scrape(t, exp)
	for _, want := range []string{
		"authcore_login_success_total 7",
		"authcore_login_failure_total 0",
		`authcore_validate_latency_seconds_bucket{le="0.005"} 1`,
		`authcore_validate_latency_seconds_bucket{le="0.5"} 28`,
		`authcore_validate_latency_seconds_bucket{le="+Inf"} 36`,
		"authcore_validate_latency_seconds_count 36",
		"authcore_audit_dropped_total 2",
		"# TYPE authcore_login_success_total counter",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got:\n%s", want, out)
		}
	}
}

func TestRegisterRejectsDuplicate(t *testing.T) {
	reg := prometheus.NewRegistry()
	exp := NewPrometheusExporterFromSource(fakeSource{})

	if err := exp.Register(reg); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := exp.Register(reg); err == nil {
		t.Fatal("expected second registration to fail")
	}
}

func TestExporterReadsEngine(t *testing.T) {
	engine, err := authcore.New().
		WithConfig(engineConfig(t)).
		WithUserStore(memory.New()).
		WithMetricsEnabled(true).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	_, _ = engine.Login(t.Context(), "nobody@x.com", "whatever1")

	out := scrape(t, NewPrometheusExporter(engine))
	if !strings.Contains(out, "authcore_login_failure_total 1") {
		t.Fatalf("expected engine login failure in output, got:\n%s", out)
	}
}

func engineConfig(t *testing.T) authcore.Config {
	t.Helper()

	cfg := authcore.DefaultConfig()
	for _, key := range []*[]byte{&cfg.JWT.Access.PrivateKey, &cfg.JWT.Refresh.PrivateKey} {
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			t.Fatalf("generate key: %v", err)
		}
		*key = priv
	}
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}
