package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"scouter/internal/model"
	"scouter/internal/version"
)

type fakeSubmitter struct {
	got []model.Event
	err error
}

func (f *fakeSubmitter) Submit(_ context.Context, ev model.Event) error {
	if f.err != nil {
		return f.err
	}
	f.got = append(f.got, ev)
	return nil
}

type fixedMetrics map[string]any

func (m fixedMetrics) Last(context.Context) map[string]any { return m }

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))
	return rec
}

const rawEvent = `{"location":[{"latitude":48.85,"longitude":2.35}],"start":1000,"end":2000,
"description":"flood warning","source":"twitter"}`

func TestRoutes(t *testing.T) {
	sub := &fakeSubmitter{}
	r := BuildRoutes(Deps{
		Base:    "/api",
		Gateway: NewGateway(found(1, 1), &fakeStore{}, GatewayOptions{}),
		Metrics: fixedMetrics{"processing_metrics": map[string]any{"scored_events_count": 3}},
		Events:  sub,
	})

	if rec := do(r, http.MethodPost, "/api/anomaly", validBody); rec.Code != 200 {
		t.Errorf("anomaly: %d", rec.Code)
	}
	if rec := do(r, http.MethodPut, "/api/anomaly", validBody); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("PUT anomaly: %d", rec.Code)
	}
	rec := do(r, http.MethodGet, "/api/health", "")
	var h map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &h)
	if h["status"] != "ok" || h["version"] != version.Commit {
		t.Errorf("health = %s", rec.Body.String())
	}
	rec = do(r, http.MethodGet, "/api/metrics", "")
	if !strings.Contains(rec.Body.String(), "scored_events_count") {
		t.Errorf("metrics = %s", rec.Body.String())
	}
	if rec := do(r, http.MethodGet, "/api/prometheus", ""); rec.Code != 200 || !strings.Contains(rec.Body.String(), "scouter_query_requests_total") {
		t.Errorf("prometheus: %d", rec.Code)
	}
	if rec := do(r, http.MethodOptions, "/api/anomaly", ""); rec.Code != http.StatusNoContent {
		t.Errorf("OPTIONS: %d", rec.Code)
	}
	if rec := do(r, http.MethodGet, "/anomaly", ""); rec.Code != http.StatusNotFound {
		t.Errorf("route outside base: %d", rec.Code)
	}
}

func TestMetricsWithoutReader(t *testing.T) {
	r := BuildRoutes(Deps{Gateway: http.NotFoundHandler()})
	rec := do(r, http.MethodGet, "/metrics", "")
	if strings.TrimSpace(rec.Body.String()) != "{}" {
		t.Errorf("metrics = %s", rec.Body.String())
	}
	if rec := do(r, http.MethodPost, "/events", rawEvent); rec.Code != http.StatusMethodNotAllowed && rec.Code != http.StatusNotFound {
		t.Errorf("events without submitter: %d", rec.Code)
	}
}

func TestIngestEndpoint(t *testing.T) {
	sub := &fakeSubmitter{}
	r := BuildRoutes(Deps{Gateway: http.NotFoundHandler(), Events: sub})

	rec := do(r, http.MethodPost, "/events", rawEvent)
	if rec.Code != http.StatusAccepted || len(sub.got) != 1 {
		t.Fatalf("single: %d %d", rec.Code, len(sub.got))
	}
	if sub.got[0].Score != model.ScoreUnscored {
		t.Errorf("raw event should arrive unscored, got %d", sub.got[0].Score)
	}
	rec = do(r, http.MethodPost, "/events", "["+rawEvent+","+rawEvent+"]")
	if rec.Code != http.StatusAccepted || len(sub.got) != 3 {
		t.Fatalf("batch: %d %d", rec.Code, len(sub.got))
	}

	bad := `{"location":[{"latitude":1,"longitude":1},{"latitude":2,"longitude":2}],"start":1,"end":2,"source":"rss"}`
	if rec := do(r, http.MethodPost, "/events", bad); rec.Code != http.StatusBadRequest {
		t.Errorf("open polygon: %d", rec.Code)
	}
	if rec := do(r, http.MethodPost, "/events", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("empty body: %d", rec.Code)
	}
	if len(sub.got) != 3 {
		t.Errorf("invalid payloads must not be submitted")
	}

	sub.err = errors.New("broker down")
	if rec := do(r, http.MethodPost, "/events", rawEvent); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("submit failure: %d", rec.Code)
	}
}

func TestVisitorIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	if got := visitorIP(r); got != "10.0.0.1" {
		t.Errorf("remote = %q", got)
	}
	r.Header.Set("forwarded", `for="192.0.2.60";proto=http`)
	if got := visitorIP(r); got != "192.0.2.60" {
		t.Errorf("forwarded = %q", got)
	}
	r.Header.Set("x-forwarded-for", "203.0.113.7, 10.0.0.1")
	if got := visitorIP(r); got != "203.0.113.7" {
		t.Errorf("xff = %q", got)
	}
}
