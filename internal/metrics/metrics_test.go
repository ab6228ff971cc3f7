package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordDownstream(t *testing.T) {
	before := testutil.ToFloat64(downstreamCallsTotal.WithLabelValues("llm", "error"))
	RecordDownstream("llm", errors.New("boom"), 10*time.Millisecond)
	after := testutil.ToFloat64(downstreamCallsTotal.WithLabelValues("llm", "error"))
	if after != before+1 {
		t.Fatalf("expected error counter to increase by 1, got %v -> %v", before, after)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	InitMetrics()
	InitMetrics()

	RecordUpdate("command")
	SetActiveSessions(3)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, name := range []string{"dialoglab_updates_total", "dialoglab_active_sessions 3"} {
		if !strings.Contains(body, name) {
			t.Fatalf("metrics output missing %q", name)
		}
	}
}
