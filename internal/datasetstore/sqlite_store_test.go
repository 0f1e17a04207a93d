package datasetstore

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/anatomap/server/internal/clusters"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := NewStore(filepath.Join(t.TempDir(), "nested", "datasets.sqlite"))
	if err != nil {
		t.Fatalf("NewStore error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func datasetsOf(records []Record) []clusters.Dataset {
	out := make([]clusters.Dataset, 0, len(records))
	for _, r := range records {
		out = append(out, r.Dataset)
	}
	return out
}

func TestStore_SaveList(t *testing.T) {
	s := newTestStore(t)

	first := []clusters.Dataset{
		{ID: "a", Terms: []string{"T1", "T2"}},
		{ID: "b", Kind: clusters.KindMultiscale, Terms: []string{"T3"}},
	}
	if err := s.Save("heart", first); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if err := s.Save("heart", []clusters.Dataset{{ID: "c", Terms: []string{"T4"}}}); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if err := s.Save("lung", []clusters.Dataset{{ID: "a", Terms: []string{"L1"}}}); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	records, err := s.List("heart")
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	want := []clusters.Dataset{
		{ID: "a", Kind: clusters.KindDataset, Terms: []string{"T1", "T2"}},
		{ID: "b", Kind: clusters.KindMultiscale, Terms: []string{"T3"}},
		{ID: "c", Kind: clusters.KindDataset, Terms: []string{"T4"}},
	}
	if diff := cmp.Diff(want, datasetsOf(records)); diff != "" {
		t.Fatalf("List mismatch (-want +got):\n%s", diff)
	}
	if records[0].AddedAt.IsZero() {
		t.Error("expected added_at to be set")
	}
}

func TestStore_DeleteClear(t *testing.T) {
	s := newTestStore(t)

	if err := s.Save("m", []clusters.Dataset{{ID: "a", Terms: []string{"T"}}, {ID: "b", Terms: []string{"T"}}}); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	if err := s.Delete("m", "a"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	records, err := s.List("m")
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(records) != 1 || records[0].Dataset.ID != "b" {
		t.Fatalf("unexpected records after delete: %+v", records)
	}

	if err := s.Clear("m"); err != nil {
		t.Fatalf("Clear error: %v", err)
	}
	records, err = s.List("m")
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty store, got %+v", records)
	}
}
