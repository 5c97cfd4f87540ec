package ontology

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scouter/internal/concept"
)

const conceptsJSON = `[
  {"root": "flood", "score": 80, "variation": ["flooding", "inondation"],
   "children": [
     {"word": "river", "score": 20, "variation": ["crue"],
      "children": [{"word": "levee", "score": 5}]}
   ]},
  {"root": "concert", "score": 10}
]`

func TestParseConceptList(t *testing.T) {
	tbl, err := Parse(strings.NewReader(conceptsJSON))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := map[string]int{
		"flood": 80, "flooding": 80, "inondation": 80,
		"river": 20, "crue": 20, "levee": 5, "concert": 10,
	}
	if tbl.Len() != len(want) {
		t.Fatalf("table has %d terms, want %d: %v", tbl.Len(), len(want), tbl.Terms())
	}
	for term, w := range want {
		if got, ok := tbl.WeightOf(term); !ok || got != w {
			t.Errorf("%s = %d, %v; want %d", term, got, ok, w)
		}
	}
}

func TestParseRulesYAML(t *testing.T) {
	doc := `
keyword:
  - word: Heavy Rain
    score: 30
  - word: warning
    score: 15
`
	tbl, err := Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if w, ok := tbl.WeightOf("heavy rain"); !ok || w != 30 {
		t.Errorf("heavy rain = %d, %v", w, ok)
	}
	if tbl.MaxWords() != 2 {
		t.Errorf("max words = %d", tbl.MaxWords())
	}
}

func TestParseMalformed(t *testing.T) {
	cases := map[string]string{
		"empty":          "   ",
		"syntax":         `[{"root": "flood", "score": }`,
		"missing score":  `[{"root": "flood"}]`,
		"empty term":     `[{"root": "", "score": 3}]`,
		"scalar":         `42`,
		"no keyword key": `{"words": []}`,
		"float score":    `[{"root": "flood", "score": 1.5}]`,
		"float weight":   `[{"root": "flood", "score": 79.9}]`,
		"float child":    `[{"root": "flood", "score": 3, "children": [{"word": "rain", "score": 0.5}]}]`,
		"float rule":     `{"keyword": [{"word": "flood", "score": 79.9}]}`,
		"string score":   `{"keyword": [{"word": "flood", "score": "high"}]}`,
		"list score":     `[{"root": "flood", "score": [1]}]`,
	}
	for name, doc := range cases {
		if _, err := Parse(strings.NewReader(doc)); !errors.Is(err, concept.ErrOntology) {
			t.Errorf("%s: expected ErrOntology, got %v", name, err)
		}
	}
}

func TestLoadFileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ontology.json")
	if err := os.WriteFile(path, []byte(conceptsJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	tbl, err := Load(context.Background(), FileSource{Path: path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tbl.Len() != 7 {
		t.Errorf("terms = %d", tbl.Len())
	}

	_, err = Load(context.Background(), FileSource{Path: filepath.Join(dir, "missing.json")})
	if !errors.Is(err, concept.ErrOntology) {
		t.Errorf("missing file should be ErrOntology, got %v", err)
	}
}
