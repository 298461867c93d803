package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(jobsTotal.WithLabelValues("completed"))
	IncJob(" Completed ")
	if got := testutil.ToFloat64(jobsTotal.WithLabelValues("completed")); got != before+1 {
		t.Errorf("jobs_total{completed} = %v, want %v", got, before+1)
	}

	before = testutil.ToFloat64(assistantRequestsTotal.WithLabelValues("submit", "ok"))
	ObserveAssistantRequest("submit", "ok", 12)
	if got := testutil.ToFloat64(assistantRequestsTotal.WithLabelValues("submit", "ok")); got != before+1 {
		t.Errorf("assistant_requests_total = %v, want %v", got, before+1)
	}

	IncMediaGeneration("image", true)
	if got := testutil.ToFloat64(mediaGenerationsTotal.WithLabelValues("image", "true")); got < 1 {
		t.Errorf("media_generations_total not incremented")
	}
}

func TestHandler_ExposesRegisteredCollectors(t *testing.T) {
	MustRegister()
	MustRegister() // idempotent
	IncPollTransition("completed")

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "poll_transitions_total") {
		t.Error("poll_transitions_total missing from exposition")
	}
}

func TestRegisterWith_CustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := RegisterWith(reg); err != nil {
		t.Fatalf("RegisterWith: %v", err)
	}
	if err := RegisterWith(reg); err != nil {
		t.Fatalf("second RegisterWith: %v", err)
	}

	IncRateLimit("Limited")
	SetBuildInfo("v1.2.3", "abc123")
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	seen := map[string]bool{}
	for _, f := range families {
		seen[f.GetName()] = true
	}
	for _, name := range []string{"http_rate_limit_total", "build_info"} {
		if !seen[name] {
			t.Errorf("%s missing from registry", name)
		}
	}
	if got := testutil.ToFloat64(rateLimitTotal.WithLabelValues("limited")); got < 1 {
		t.Errorf("http_rate_limit_total{limited} = %v", got)
	}
}
