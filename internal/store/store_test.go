package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"scouter/internal/migrate"
	"scouter/internal/model"
	"scouter/internal/utils"
)

func openTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	db, err := utils.OpenSQLite(filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := migrate.EnsureSchema(context.Background(), db.DB, "sqlite"); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	st := Attach(db, opts)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func scoredEvent(t *testing.T, startMs, endMs int64, loc ...model.LatLong) model.Event {
	t.Helper()
	if len(loc) == 0 {
		loc = []model.LatLong{{Lat: 48.85, Lon: 2.35}}
	}
	ev, err := model.NewEvent(loc, time.UnixMilli(startMs), time.UnixMilli(endMs), "flood on the river", "twitter")
	if err != nil {
		t.Fatal(err)
	}
	ev, err = ev.WithScore(70, []string{"flood", "river"})
	if err != nil {
		t.Fatal(err)
	}
	return ev
}

func mustWrite(t *testing.T, st *Store, ev model.Event) {
	t.Helper()
	if err := <-st.Write(context.Background(), ev); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func window(startMs, endMs int64) Window {
	return Window{Start: time.UnixMilli(startMs), End: time.UnixMilli(endMs)}
}

func anyBox(t *testing.T) model.BoundingBox {
	b, err := model.NewBoundingBox(model.LatLong{Lat: 0, Lon: 0})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestQueryContainment(t *testing.T) {
	st := openTestStore(t, Options{})
	mustWrite(t, st, scoredEvent(t, 100, 200)) // inside
	mustWrite(t, st, scoredEvent(t, 50, 150))  // starts before window
	mustWrite(t, st, scoredEvent(t, 150, 250)) // ends after window
	mustWrite(t, st, scoredEvent(t, 100, 100)) // on the boundary

	recs, err := st.Query(context.Background(), window(100, 200), anyBox(t), 50)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	for _, r := range recs {
		if r.Event.Start.UnixMilli() < 100 || r.Event.End.UnixMilli() > 200 {
			t.Errorf("record %s outside window: %v-%v", r.ID, r.Event.Start, r.Event.End)
		}
	}
}

func TestQueryEmptyIsSuccess(t *testing.T) {
	st := openTestStore(t, Options{})
	recs, err := st.Query(context.Background(), window(0, 10), anyBox(t), 50)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if recs == nil || len(recs) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", recs)
	}
}

func TestQueryLimitCap(t *testing.T) {
	st := openTestStore(t, Options{})
	for i := int64(0); i < 8; i++ {
		mustWrite(t, st, scoredEvent(t, 1000+i, 2000))
	}
	recs, err := st.Query(context.Background(), window(0, 5000), anyBox(t), 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 5 {
		t.Errorf("got %d records, want 5", len(recs))
	}
	recs, err = st.Query(context.Background(), window(0, 5000), anyBox(t), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 8 {
		t.Errorf("default limit returned %d records, want 8", len(recs))
	}
}

func TestQueryGeoFilter(t *testing.T) {
	paris := model.LatLong{Lat: 48.85, Lon: 2.35}
	lyon := model.LatLong{Lat: 45.76, Lon: 4.83}
	box, err := model.NewBoundingBox(
		model.LatLong{Lat: 48.8, Lon: 2.2}, model.LatLong{Lat: 48.9, Lon: 2.2},
		model.LatLong{Lat: 48.9, Lon: 2.5}, model.LatLong{Lat: 48.8, Lon: 2.5},
		model.LatLong{Lat: 48.8, Lon: 2.2},
	)
	if err != nil {
		t.Fatal(err)
	}

	for _, filter := range []bool{false, true} {
		st := openTestStore(t, Options{GeoFilter: filter})
		mustWrite(t, st, scoredEvent(t, 10, 20, paris))
		mustWrite(t, st, scoredEvent(t, 10, 20, lyon))
		recs, err := st.Query(context.Background(), window(0, 100), box, 50)
		if err != nil {
			t.Fatal(err)
		}
		want := 2
		if filter {
			want = 1
		}
		if len(recs) != want {
			t.Errorf("geo filter %v: got %d records, want %d", filter, len(recs), want)
		}
	}
}

func TestWriteRejectsInvalidEventBeforeIO(t *testing.T) {
	st := openTestStore(t, Options{})
	bad := scoredEvent(t, 1, 2)
	bad.Location = []model.LatLong{{Lat: 1, Lon: 1}, {Lat: 2, Lon: 2}}
	err := <-st.Write(context.Background(), bad)
	if !errors.Is(err, ErrPersist) || !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected persist+validation error, got %v", err)
	}
	n, err := st.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n["events"] != 0 {
		t.Errorf("invalid event was stored: %v", n)
	}
}

func TestPersistedShape(t *testing.T) {
	st := openTestStore(t, Options{LocationText: "Paris, France"})
	child := scoredEvent(t, 10, 20)
	child.EntityName = "child"
	parent := scoredEvent(t, 10, 20,
		model.LatLong{Lat: 1, Lon: 1}, model.LatLong{Lat: 2, Lon: 1}, model.LatLong{Lat: 2, Lon: 2}, model.LatLong{Lat: 1, Lon: 1})
	parent.EntityName = "Mairie"
	parent.SourceID = 42
	parent.Verified = true
	parent.Merged = true
	parent.MergeParent = true
	parent.MergedEvents = []model.Event{child}
	parent.Sentiment = "negative"
	mustWrite(t, st, parent)

	recs, err := st.Query(context.Background(), window(0, 100), anyBox(t), 50)
	if err != nil || len(recs) != 1 {
		t.Fatalf("Query: %v (%d records)", err, len(recs))
	}
	var m map[string]any
	if err := json.Unmarshal(recs[0].Doc, &m); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"start", "end", "location", "location_text", "sourceName", "sourceId", "verified", "keyterms", "isMergedEvent", "sentimentSense", "sourceEventsCausingMerging"} {
		if _, ok := m[k]; !ok {
			t.Errorf("persisted document missing %q: %v", k, m)
		}
	}
	if _, ok := m["entityName"]; ok {
		t.Error("entityName should be renamed to sourceName")
	}
	if m["location_text"] != "Paris, France" || m["sourceName"] != "Mairie" {
		t.Errorf("denormalized fields = %v / %v", m["location_text"], m["sourceName"])
	}
	loc := m["location"].(map[string]any)
	if loc["type"] != "Polygon" {
		t.Errorf("location type = %v", loc["type"])
	}
	ev := recs[0].Event
	if !ev.MergeParent || len(ev.MergedEvents) != 1 || ev.MergedEvents[0].EntityName != "child" {
		t.Errorf("merge lineage lost: %+v", ev)
	}
	if ev.Score != 70 || len(ev.KeyTerms) != 2 {
		t.Errorf("score/terms = %d %v", ev.Score, ev.KeyTerms)
	}
}

func TestNonParentOmitsMergeList(t *testing.T) {
	ev := scoredEvent(t, 1, 2)
	ev.Merged = true
	d, err := NewDocument(ev, "")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := json.Marshal(d)
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	if _, ok := m["sourceEventsCausingMerging"]; ok {
		t.Errorf("non-parent document should not carry merge list: %s", b)
	}
	if m["isMergedEvent"] != true {
		t.Errorf("isMergedEvent = %v", m["isMergedEvent"])
	}
}

func TestMergeParentFlagSurvivesRoundTrip(t *testing.T) {
	child := scoredEvent(t, 1, 2)
	cases := map[string]struct {
		parent   bool
		children []model.Event
		wantJSON string
	}{
		"parent without children": {parent: true, wantJSON: `[]`},
		"parent with child":       {parent: true, children: []model.Event{child}},
		"plain event":             {parent: false},
	}
	for name, tc := range cases {
		ev := scoredEvent(t, 1, 2)
		ev.MergeParent = tc.parent
		ev.MergedEvents = tc.children
		d, err := NewDocument(ev, "")
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		b, err := json.Marshal(d)
		if err != nil {
			t.Fatal(err)
		}
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(b, &raw); err != nil {
			t.Fatal(err)
		}
		list, ok := raw["sourceEventsCausingMerging"]
		if ok != tc.parent {
			t.Errorf("%s: merge list present = %v, want %v (%s)", name, ok, tc.parent, b)
		}
		if tc.wantJSON != "" && string(list) != tc.wantJSON {
			t.Errorf("%s: merge list = %s, want %s", name, list, tc.wantJSON)
		}

		var back Document
		if err := json.Unmarshal(b, &back); err != nil {
			t.Fatal(err)
		}
		got, err := back.Event()
		if err != nil {
			t.Fatalf("%s: Event: %v", name, err)
		}
		if got.MergeParent != tc.parent || len(got.MergedEvents) != len(tc.children) {
			t.Errorf("%s: round trip MergeParent=%v children=%d", name, got.MergeParent, len(got.MergedEvents))
		}
	}
}

func TestQueryErrorAfterClose(t *testing.T) {
	st := openTestStore(t, Options{})
	_ = st.DB().Close()
	_, err := st.Query(context.Background(), window(0, 1), anyBox(t), 1)
	if !errors.Is(err, ErrQuery) {
		t.Fatalf("expected ErrQuery, got %v", err)
	}
}
