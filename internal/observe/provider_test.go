package observe

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func restoreGlobals(t *testing.T) {
	t.Helper()
	mp, tp := otel.GetMeterProvider(), otel.GetTracerProvider()
	t.Cleanup(func() {
		otel.SetMeterProvider(mp)
		otel.SetTracerProvider(tp)
	})
}

func TestInitProvider_ServesMetrics(t *testing.T) {
	restoreGlobals(t)
	ctx := context.Background()

	tel, err := InitProvider(ctx, ProviderConfig{ServiceVersion: "test", Metrics: true})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	t.Cleanup(func() { _ = tel.Shutdown(ctx) })

	tel.Metrics.RecordAlignment(ctx, "weighted-phoneme", "ok", 0, 12)

	h := tel.Handler()
	if h == nil {
		t.Fatal("Handler() = nil with metrics enabled")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{"sausalign_alignments_total", "sausalign_align_cells_total", "go_goroutines"} {
		if !strings.Contains(string(body), want) {
			t.Errorf("/metrics output missing %q", want)
		}
	}
}

func TestInitProvider_MetricsDisabled(t *testing.T) {
	restoreGlobals(t)
	ctx := context.Background()

	tel, err := InitProvider(ctx, ProviderConfig{})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	if tel.Handler() != nil {
		t.Error("Handler() should be nil with metrics disabled")
	}
	if tel.Metrics == nil {
		t.Error("Metrics should still be created")
	}
	if err := tel.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}
