package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"scouter/internal/geocode"
	"scouter/internal/model"
	"scouter/internal/store"
)

type fakeStore struct {
	calls  atomic.Int32
	recs   []store.Record
	err    error
	delay  time.Duration
	gotBox model.BoundingBox
	gotWin store.Window
	gotLim int
}

func (f *fakeStore) Query(ctx context.Context, w store.Window, bbox model.BoundingBox, limit int) ([]store.Record, error) {
	f.calls.Add(1)
	f.gotWin, f.gotBox, f.gotLim = w, bbox, limit
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.recs, f.err
}

func found(lat, lon float64) geocode.Resolver {
	return geocode.ResolverFunc(func(context.Context, string) (geocode.Result, error) {
		p := model.LatLong{Lat: lat, Lon: lon}
		return geocode.Result{Point: &p}, nil
	})
}

func serve(g *Gateway, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	g.ServeHTTP(rec, req)
	return rec
}

const validBody = `{"start":1000,"end":2000,"address":"Paris"}`

func TestInvalidAddressSkipsStore(t *testing.T) {
	st := &fakeStore{}
	notFound := geocode.ResolverFunc(func(context.Context, string) (geocode.Result, error) { return geocode.Result{}, nil })
	rec := serve(NewGateway(notFound, st, GatewayOptions{}), http.MethodPost, "/anomaly", validBody)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["error"] != "Invalid address" {
		t.Errorf("body = %s", rec.Body.String())
	}
	if st.calls.Load() != 0 {
		t.Error("store must not be queried for an unresolvable address")
	}
}

func TestEmptyResultIsSuccess(t *testing.T) {
	st := &fakeStore{recs: nil}
	rec := serve(NewGateway(found(48.85, 2.35), st, GatewayOptions{Limit: 7}), http.MethodPost, "/anomaly", validBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"events":[]}` {
		t.Errorf("body = %s", got)
	}
	if ct := rec.Header().Get("content-type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("content-type = %q", ct)
	}
	if st.gotLim != 7 || st.gotWin.Start.UnixMilli() != 1000 || st.gotWin.End.UnixMilli() != 2000 {
		t.Errorf("query args: win=%v limit=%d", st.gotWin, st.gotLim)
	}
	if st.gotBox.Len() != 1 {
		t.Errorf("missing extent should fall back to the point, got %d points", st.gotBox.Len())
	}
}

func TestRecordsEncodedFromDocuments(t *testing.T) {
	st := &fakeStore{recs: []store.Record{
		{ID: "a", Doc: json.RawMessage(`{"id":"a","score":10}`)},
		{ID: "b", Doc: json.RawMessage(`{"id":"b","score":90}`)},
	}}
	rec := serve(NewGateway(found(1, 1), st, GatewayOptions{}), http.MethodPost, "/anomaly", validBody)
	var out struct {
		Events []map[string]any `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Events) != 2 || out.Events[1]["id"] != "b" {
		t.Errorf("events = %v", out.Events)
	}
}

func TestGETQueryParams(t *testing.T) {
	st := &fakeStore{}
	rec := serve(NewGateway(found(1, 1), st, GatewayOptions{}), http.MethodGet, "/anomaly?start=5&end=9&address=Lille", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if st.gotWin.Start.UnixMilli() != 5 || st.gotWin.End.UnixMilli() != 9 {
		t.Errorf("window = %v", st.gotWin)
	}
}

func TestStatusMapping(t *testing.T) {
	failing := func(err error) geocode.Resolver {
		return geocode.ResolverFunc(func(context.Context, string) (geocode.Result, error) { return geocode.Result{}, err })
	}
	cases := []struct {
		name     string
		resolver geocode.Resolver
		store    *fakeStore
		body     string
		want     int
	}{
		{"malformed_json", found(1, 1), &fakeStore{}, `{"start":`, http.StatusBadRequest},
		{"missing_end", found(1, 1), &fakeStore{}, `{"start":1,"address":"x"}`, http.StatusBadRequest},
		{"wrong_type", found(1, 1), &fakeStore{}, `{"start":"soon","end":2}`, http.StatusBadRequest},
		{"geocoder_down", failing(geocode.ErrTransient), &fakeStore{}, validBody, http.StatusBadGateway},
		{"geocoder_garbage", failing(geocode.ErrMalformed), &fakeStore{}, validBody, http.StatusBadGateway},
		{"geocoder_deadline", failing(context.DeadlineExceeded), &fakeStore{}, validBody, http.StatusGatewayTimeout},
		{"store_error", found(1, 1), &fakeStore{err: store.ErrQuery}, validBody, http.StatusInternalServerError},
		{"store_timeout", found(1, 1), &fakeStore{delay: time.Second}, validBody, http.StatusGatewayTimeout},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := NewGateway(tc.resolver, tc.store, GatewayOptions{StoreTimeout: 30 * time.Millisecond})
			rec := serve(g, http.MethodPost, "/anomaly", tc.body)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tc.want, rec.Body.String())
			}
			var body map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["error"] == nil {
				t.Errorf("error responses carry an error payload, got %s", rec.Body.String())
			}
		})
	}
}

func TestRunUsesResolvedBBox(t *testing.T) {
	bb, _ := model.NewBoundingBox(
		model.LatLong{Lat: 1, Lon: 1}, model.LatLong{Lat: 2, Lon: 1}, model.LatLong{Lat: 2, Lon: 2},
		model.LatLong{Lat: 1, Lon: 2}, model.LatLong{Lat: 1, Lon: 1},
	)
	res := geocode.ResolverFunc(func(context.Context, string) (geocode.Result, error) {
		p := model.LatLong{Lat: 1.5, Lon: 1.5}
		return geocode.Result{Point: &p, BBox: &bb}, nil
	})
	st := &fakeStore{}
	g := NewGateway(res, st, GatewayOptions{})
	fixed := time.UnixMilli(42)
	g.now = func() time.Time { return fixed }
	start, end := int64(1), int64(2)
	out, err := g.Run(context.Background(), queryInput{Start: &start, End: &end, Address: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Request.BBox.Len() != 5 || !out.Request.ReceivedAt.Equal(fixed) {
		t.Errorf("request = %+v", out.Request)
	}
}

func TestStatusOf(t *testing.T) {
	if got := statusOf(errors.New("boom")); got != 500 {
		t.Errorf("unknown error -> %d", got)
	}
	if got := statusOf(store.ErrQuery); got != 500 {
		t.Errorf("query error -> %d", got)
	}
}
