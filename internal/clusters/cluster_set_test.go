package clusters

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/anatomap/server/internal/termgraph"
)

type mapOracle map[string][]string

func (m mapOracle) HasAnatomicalIdentifier(term string) bool { return len(m[term]) > 0 }
func (m mapOracle) ModelFeatureIDs(term string) []string    { return m[term] }

var testZoom = ZoomRange{MinMarkerZoom: 2, MaxMarkerZoom: 12}

func chainGraph() *termgraph.Graph {
	return termgraph.Load("BODY", []termgraph.Edge{
		{Child: "ORGAN", Parent: "BODY"},
		{Child: "LOBE", Parent: "ORGAN"},
		{Child: "CELL", Parent: "LOBE"},
		{Child: "NEURON", Parent: "LOBE"},
	})
}

func TestBand(t *testing.T) {
	tests := []struct {
		name     string
		depth    int
		maxDepth int
		wantMin  int
		wantMax  int
	}{
		{"root", 0, 3, 2, 3},
		{"depth1", 1, 3, 5, 6},
		{"depth2", 2, 3, 8, 9},
		{"deepest", 3, 3, 12, 12},
		{"beyond", 5, 3, 12, 12},
		{"flatGraph", 0, 0, 2, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotMin, gotMax := testZoom.Band(tt.depth, tt.maxDepth)
			if gotMin != tt.wantMin || gotMax != tt.wantMax {
				t.Fatalf("Band(%d,%d) = [%d,%d), want [%d,%d)", tt.depth, tt.maxDepth, gotMin, gotMax, tt.wantMin, tt.wantMax)
			}
		})
	}

	t.Run("negativeZoom", func(t *testing.T) {
		z := ZoomRange{MinMarkerZoom: -3, MaxMarkerZoom: 4}
		gotMin, gotMax := z.Band(0, 3)
		if gotMin != 0 || gotMax != 1 {
			t.Fatalf("expected [0,1), got [%d,%d)", gotMin, gotMax)
		}
	})
}

func TestZoomRangeValidate(t *testing.T) {
	valid := []ZoomRange{DefaultZoomRange, {MinMarkerZoom: 0, MaxMarkerZoom: 0}, {MinMarkerZoom: 3, MaxMarkerZoom: 3}}
	for _, z := range valid {
		if err := z.Validate(); err != nil {
			t.Errorf("%+v: unexpected error %v", z, err)
		}
	}
	invalid := []ZoomRange{{MinMarkerZoom: 2, MaxMarkerZoom: -5}, {MinMarkerZoom: -1, MaxMarkerZoom: 4}, {MinMarkerZoom: 8, MaxMarkerZoom: 4}}
	for _, z := range invalid {
		if err := z.Validate(); err == nil {
			t.Errorf("%+v: expected an error", z)
		}
	}
}

func TestBand_DepthMonotone(t *testing.T) {
	for maxDepth := 1; maxDepth < 12; maxDepth++ {
		prev := -1
		for depth := 0; depth <= maxDepth; depth++ {
			lo, hi := testZoom.Band(depth, maxDepth)
			if lo == hi {
				continue
			}
			if lo < prev {
				t.Fatalf("maxDepth=%d depth=%d: band start %d before previous %d", maxDepth, depth, lo, prev)
			}
			prev = lo
		}
	}
}

func TestBuild_Chain(t *testing.T) {
	g := chainGraph()
	oracle := mapOracle{"CELL": {"f-cell"}}

	cs := Build(Dataset{ID: "d1", Terms: []string{" CELL ", ""}}, g, oracle, Options{Zoom: testZoom})

	want := []Cluster{
		{Term: "BODY", DatasetID: "d1", MinZoom: 0, MaxZoom: 5},
		{Term: "CELL", DatasetID: "d1", MinZoom: 12, MaxZoom: 12, Terminal: true},
		{Term: "LOBE", DatasetID: "d1", MinZoom: 8, MaxZoom: 12},
		{Term: "ORGAN", DatasetID: "d1", MinZoom: 5, MaxZoom: 8},
	}
	if diff := cmp.Diff(want, cs.Clusters()); diff != "" {
		t.Fatalf("clusters mismatch (-want +got):\n%s", diff)
	}

	wantDesc := map[string][]string{
		"BODY":  {"CELL"},
		"ORGAN": {"CELL"},
		"LOBE":  {"CELL"},
		"CELL":  {"CELL"},
	}
	if diff := cmp.Diff(wantDesc, cs.DescendantMap()); diff != "" {
		t.Fatalf("descendants mismatch (-want +got):\n%s", diff)
	}
}

func TestBuild_Substitution(t *testing.T) {
	g := chainGraph()
	oracle := mapOracle{"LOBE": {"f-lobe"}}

	core, logs := observer.New(zap.InfoLevel)
	cs := Build(Dataset{ID: "d2", Terms: []string{"NEURON"}}, g, oracle, Options{Zoom: testZoom, Logger: zap.New(core)})

	if diff := cmp.Diff(map[string][]string{"LOBE": {"NEURON"}}, cs.MarkerTerms()); diff != "" {
		t.Fatalf("marker terms mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Substitution{{Term: "NEURON", MarkerTerm: "LOBE"}}, cs.Substitutions()); diff != "" {
		t.Fatalf("substitutions mismatch (-want +got):\n%s", diff)
	}
	if got := cs.Descendants("LOBE"); len(got) != 1 || got[0] != "NEURON" {
		t.Fatalf("Descendants(LOBE) = %v", got)
	}
	if _, ok := cs.Cluster("NEURON"); ok {
		t.Fatal("substituted term should not be in the subgraph")
	}
	lobe, _ := cs.Cluster("LOBE")
	if !lobe.Terminal || lobe.MaxZoom != 12 {
		t.Fatalf("LOBE should be terminal, got %+v", lobe)
	}
	if logs.FilterMessage("substituted unmapped term").Len() != 1 {
		t.Fatalf("expected one substitution log, got %v", logs.All())
	}
}

func TestBuild_DroppedTerms(t *testing.T) {
	g := chainGraph()
	oracle := mapOracle{"CELL": {"f-cell"}}

	core, logs := observer.New(zap.WarnLevel)
	cs := Build(Dataset{ID: "d3", Terms: []string{"NEURON", "UNKNOWN", "CELL"}}, g, oracle, Options{Zoom: testZoom, Logger: zap.New(core)})

	if diff := cmp.Diff([]string{"NEURON", "UNKNOWN"}, cs.Dropped()); diff != "" {
		t.Fatalf("dropped mismatch (-want +got):\n%s", diff)
	}
	if logs.Len() != 2 {
		t.Fatalf("expected 2 warnings, got %d", logs.Len())
	}
	if _, ok := cs.Cluster("CELL"); !ok {
		t.Fatal("remaining terms should still be clustered")
	}
}

func TestBuild_AllDropped(t *testing.T) {
	g := chainGraph()
	cs := Build(Dataset{ID: "d4", Terms: []string{"UNKNOWN"}}, g, mapOracle{}, Options{Zoom: testZoom})
	if len(cs.Clusters()) != 0 {
		t.Fatalf("expected no clusters, got %+v", cs.Clusters())
	}
}

func TestMarkerTerm(t *testing.T) {
	// LEAF hangs off both A and C; C is the deeper mapped parent.
	g := termgraph.Load("BODY", []termgraph.Edge{
		{Child: "A", Parent: "BODY"},
		{Child: "B", Parent: "A"},
		{Child: "C", Parent: "B"},
		{Child: "LEAF", Parent: "A"},
		{Child: "LEAF", Parent: "C"},
		{Child: "TWIN1", Parent: "BODY"},
		{Child: "TWIN2", Parent: "BODY"},
		{Child: "TIE", Parent: "TWIN1"},
		{Child: "TIE", Parent: "TWIN2"},
		{Child: "HIGH", Parent: "UNMAPPED"},
		{Child: "UNMAPPED", Parent: "A"},
		{Child: "TOP", Parent: "BODY"},
	})
	oracle := mapOracle{
		"A": {"fa"}, "C": {"fc"}, "TWIN1": {"t1"}, "TWIN2": {"t2"}, "BODY": {"fb"},
	}

	tests := []struct {
		term   string
		want   string
		wantOK bool
	}{
		{"A", "A", true},       // already mapped
		{"LEAF", "C", true},    // deepest mapped parent
		{"TIE", "TWIN1", true}, // equal depth, first seen
		{"HIGH", "A", true},    // walks through an unmapped parent
		{"TOP", "", false},     // only the root above
		{"NOWHERE", "", false}, // not in the hierarchy
	}
	for _, tt := range tests {
		got, ok := MarkerTerm(tt.term, g, oracle)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("MarkerTerm(%q) = %q,%v want %q,%v", tt.term, got, ok, tt.want, tt.wantOK)
		}
		if ok {
			again, _ := MarkerTerm(got, g, oracle)
			if again != got {
				t.Errorf("MarkerTerm not idempotent for %q: %q -> %q", tt.term, got, again)
			}
		}
	}
}

func TestBuild_Invariants(t *testing.T) {
	g := termgraph.Load("BODY", []termgraph.Edge{
		{Child: "HEART", Parent: "BODY"},
		{Child: "LUNG", Parent: "BODY"},
		{Child: "ATRIUM", Parent: "HEART"},
		{Child: "VENTRICLE", Parent: "HEART"},
		{Child: "VALVE", Parent: "ATRIUM"},
		{Child: "VALVE", Parent: "VENTRICLE"},
		{Child: "NODE", Parent: "ATRIUM"},
		{Child: "LOBE", Parent: "LUNG"},
		{Child: "ALVEOLUS", Parent: "LOBE"},
		{Child: "ALVEOLUS", Parent: "HEART"},
	})
	oracle := mapOracle{
		"VALVE": {"v"}, "NODE": {"n"}, "ALVEOLUS": {"al"}, "LUNG": {"l"}, "VENTRICLE": {"ve"},
	}
	cs := Build(Dataset{ID: "inv", Terms: []string{"VALVE", "NODE", "ALVEOLUS", "LUNG", "VENTRICLE"}}, g, oracle, Options{Zoom: testZoom})

	sg := cs.Subgraph()
	root, ok := cs.Cluster("BODY")
	if !ok || root.MinZoom != 0 {
		t.Fatalf("root should be visible from zoom 0, got %+v", root)
	}
	for _, c := range cs.Clusters() {
		if c.MinZoom < 0 || c.MinZoom > c.MaxZoom || c.MaxZoom > testZoom.MaxMarkerZoom {
			t.Errorf("cluster out of range: %+v", c)
		}
		if c.Term != "BODY" && sg.Degree(c.Term) == 1 && c.MaxZoom != testZoom.MaxMarkerZoom {
			t.Errorf("leaf %s should be terminal: %+v", c.Term, c)
		}
		for _, p := range sg.Parents(c.Term) {
			pc, _ := cs.Cluster(p)
			if pc.MaxZoom < c.MinZoom {
				t.Errorf("parent %s maxZoom %d < child %s minZoom %d", p, pc.MaxZoom, c.Term, c.MinZoom)
			}
		}
	}
	if got := cs.Descendants("BODY"); len(got) != 5 {
		t.Errorf("root should represent every retained term, got %v", got)
	}
}
