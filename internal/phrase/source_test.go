package phrase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"scouter/internal/concept"
)

func TestLexiconKeepsOrderAndDuplicates(t *testing.T) {
	tbl, err := concept.FromMap(map[string]int{"flood": 80, "warning": 30, "flood warning": 50})
	if err != nil {
		t.Fatal(err)
	}
	got, err := NewLexicon(tbl).Phrases(context.Background(), "Flood warning issued; the FLOOD, again!")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"flood", "flood warning", "warning", "flood"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("phrases = %v, want %v", got, want)
	}
}

func TestLexiconSplitsInnerPunctuation(t *testing.T) {
	tbl, err := concept.FromMap(map[string]int{"flood": 80, "warning": 30})
	if err != nil {
		t.Fatal(err)
	}
	cases := map[string][]string{
		"flood/warning issued; flood-risk": {"flood", "warning", "flood"},
		"FLOOD_WARNING":                    {"flood", "warning"},
		"flood's edge":                     {"flood"},
		"floodwarning":                     {},
		"--//--":                           {},
	}
	for text, want := range cases {
		got, err := NewLexicon(tbl).Phrases(context.Background(), text)
		if err != nil {
			t.Fatalf("%q: %v", text, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("%q: phrases = %v, want %v", text, got, want)
		}
	}
}

func TestLexiconEmptyTable(t *testing.T) {
	tbl, _ := concept.FromMap(nil)
	got, err := NewLexicon(tbl).Phrases(context.Background(), "anything at all")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("phrases = %v, want none", got)
	}
}

func TestHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/extract" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var req extractRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Text == "boom" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(extractResponse{Phrases: []string{"flood", "flood"}})
	}))
	defer srv.Close()

	src := NewHTTPSource(srv.URL+"/", time.Second)
	got, err := src.Phrases(context.Background(), "river flood")
	if err != nil {
		t.Fatalf("Phrases: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("phrases = %v", got)
	}
	if _, err := src.Phrases(context.Background(), "boom"); !errors.Is(err, ErrSource) {
		t.Errorf("server error should be ErrSource, got %v", err)
	}
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{"": KindLexicon, "Lexicon": KindLexicon, "http": KindHTTP} {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Errorf("ParseKind(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseKind("plugin"); err == nil {
		t.Error("unknown kind should fail")
	}
}
