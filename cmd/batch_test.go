package cmd

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadBatchFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	content := `models:
  - id: Intel/dynamic_tinybert
  - id: meta-llama/Llama-2-7b
    token: hf_abc
    revision: v1
  - id: ""
  - id: ../escape
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	entries, err := readBatchFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2: %+v", len(entries), entries)
	}
	if entries[1].Token != "hf_abc" || entries[1].Revision != "v1" {
		t.Errorf("unexpected entry %+v", entries[1])
	}
}

func TestReadBatchFileErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := readBatchFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	empty := filepath.Join(dir, "empty.yaml")
	os.WriteFile(empty, []byte("models: []\n"), 0644)
	if _, err := readBatchFile(empty); err == nil {
		t.Error("expected error for a file without models")
	}
	broken := filepath.Join(dir, "broken.yaml")
	os.WriteFile(broken, []byte("models: [\n"), 0644)
	if _, err := readBatchFile(broken); err == nil {
		t.Error("expected error for invalid YAML")
	}
}
