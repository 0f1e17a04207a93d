package jsondoc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
)

type sample struct {
	Name  string   `json:"name"`
	Items []string `json:"items"`
}

func TestReadFile_Plain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.json")
	if err := os.WriteFile(path, []byte(`{"name":"plain","items":["a","b"]}`), 0644); err != nil {
		t.Fatalf("failed to write doc: %v", err)
	}

	var got sample
	if err := ReadFile(path, &got); err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	if got.Name != "plain" || len(got.Items) != 2 {
		t.Fatalf("unexpected document: %+v", got)
	}
}

func TestReadFile_Zstd(t *testing.T) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatalf("failed to create encoder: %v", err)
	}
	payload := enc.EncodeAll([]byte(`{"name":"packed","items":["x"]}`), nil)
	enc.Close()

	dir := t.TempDir()
	for _, name := range []string{"doc.json.zst", "doc.bin"} {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, payload, 0644); err != nil {
			t.Fatalf("failed to write doc: %v", err)
		}
		var got sample
		if err := ReadFile(path, &got); err != nil {
			t.Fatalf("ReadFile(%s) error: %v", name, err)
		}
		if got.Name != "packed" {
			t.Fatalf("ReadFile(%s): unexpected name %q", name, got.Name)
		}
	}
}

func TestReadFile_Missing(t *testing.T) {
	var got sample
	if err := ReadFile(filepath.Join(t.TempDir(), "nope.json"), &got); err == nil {
		t.Fatal("expected error for missing file")
	}
}
