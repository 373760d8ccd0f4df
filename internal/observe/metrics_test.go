package observe_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/arcsong/arcsong/internal/observe"
)

func newTestMetrics(t *testing.T) (*observe.Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { mp.Shutdown(context.Background()) })

	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func TestNewMetrics_CreatesAllInstruments(t *testing.T) {
	m, _ := newTestMetrics(t)

	if m.ExchangeDuration == nil || m.GuidanceDuration == nil || m.EvaluationDuration == nil {
		t.Error("latency histograms not initialised")
	}
	if m.VisualsRequested == nil || m.SparksSpent == nil || m.SparkDenials == nil || m.EpisodesCompleted == nil {
		t.Error("counters not initialised")
	}
	if m.ProviderErrors == nil || m.InvariantViolations == nil {
		t.Error("error counters not initialised")
	}
	if m.ActiveSessions == nil || m.HTTPRequestDuration == nil {
		t.Error("gauge or HTTP histogram not initialised")
	}
}

func TestMetrics_RecordAndCollect(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.SparksSpent.Add(ctx, 5)
	m.SparksSpent.Add(ctx, 3)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, metr := range scope.Metrics {
			if metr.Name != "arcsong.director.sparks.spent" {
				continue
			}
			sum, ok := metr.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("unexpected data type %T", metr.Data)
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	if total != 8 {
		t.Errorf("sparks spent = %d, want 8", total)
	}
}

func TestDefaultMetrics_SingleInstance(t *testing.T) {
	a := observe.DefaultMetrics()
	b := observe.DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different instances")
	}
}

func TestMiddleware_RecordsAndDelegates(t *testing.T) {
	m, reader := newTestMetrics(t)

	handler := observe.Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want the downstream handler's status", rec.Code)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	found := false
	for _, scope := range rm.ScopeMetrics {
		for _, metr := range scope.Metrics {
			if metr.Name == "arcsong.http.request.duration" {
				found = true
			}
		}
	}
	if !found {
		t.Error("request duration not recorded")
	}
}
