package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_FreshState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.RunID == "" {
		t.Error("fresh state must get a run id")
	}
	if len(s.ImagesProcessed) != 0 {
		t.Errorf("fresh state has %d processed images", len(s.ImagesProcessed))
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s.MarkProcessed("img_001.png")
	s.MarkProcessed("img_002.png")
	s.RecordsAppended = 17
	s.AddError("convert img_003.png: boom")
	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	s2, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if s2.RunID != s.RunID {
		t.Errorf("run id changed across reload: %s vs %s", s2.RunID, s.RunID)
	}
	if !s2.IsProcessed("img_001.png") || !s2.IsProcessed("img_002.png") {
		t.Error("processed set lost across reload")
	}
	if s2.IsProcessed("img_003.png") {
		t.Error("unprocessed image reported processed")
	}
	if s2.RecordsAppended != 17 {
		t.Errorf("RecordsAppended = %d", s2.RecordsAppended)
	}
	if len(s2.Errors) != 1 {
		t.Errorf("Errors = %v", s2.Errors)
	}
}

func TestMarkProcessed_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s.MarkProcessed("a.png")
	s.MarkProcessed("a.png")
	if len(s.ImagesProcessed) != 1 {
		t.Errorf("duplicate mark recorded twice: %v", s.ImagesProcessed)
	}
}

// A corrupt checkpoint must be an error, not a silent fresh start: starting
// over would append every image's records a second time.
func TestLoad_CorruptIsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("corrupt checkpoint must fail to load")
	}
}
