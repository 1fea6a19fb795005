// Package checkpoint persists the set of already-converted source images so
// a batch run can be interrupted and resumed without appending an image's
// records twice.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// State is the durable checkpoint document. It is flushed only after all of
// an image's records are committed to the raw stream, so a crash can at
// worst cause one image to be reprocessed (at-least-once), never skipped.
type State struct {
	RunID           string    `json:"run_id"`
	StartedAt       time.Time `json:"started_at"`
	LastProcessedAt time.Time `json:"last_processed_at"`
	ImagesProcessed []string  `json:"images_processed"`
	RecordsAppended int       `json:"records_appended"`
	Errors          []string  `json:"errors"`

	path      string          // not serialized
	processed map[string]bool // lookup index over ImagesProcessed
}

// Load reads the checkpoint from path, or creates a fresh one if the file
// does not exist. A present-but-unreadable checkpoint is an error: silently
// starting over would re-append every image's records.
func Load(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s := &State{
				RunID:     uuid.NewString(),
				StartedAt: time.Now().UTC(),
				path:      path,
			}
			s.reindex()
			return s, nil
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse checkpoint %s: %w", path, err)
	}
	s.path = path
	if s.RunID == "" {
		s.RunID = uuid.NewString()
	}
	s.reindex()
	return &s, nil
}

// Save persists the state to disk and fsyncs it.
func (s *State) Save() error {
	s.LastProcessedAt = time.Now().UTC()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir: %w", err)
		}
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	return f.Close()
}

// IsProcessed reports whether the image was already fully converted.
func (s *State) IsProcessed(imageID string) bool {
	return s.processed[imageID]
}

// MarkProcessed records an image as fully converted. The caller must Save
// afterward; marking without flushing is not durable.
func (s *State) MarkProcessed(imageID string) {
	if s.processed[imageID] {
		return
	}
	s.ImagesProcessed = append(s.ImagesProcessed, imageID)
	s.processed[imageID] = true
}

// AddError records a recoverable processing error for the run summary.
func (s *State) AddError(msg string) {
	s.Errors = append(s.Errors, msg)
}

func (s *State) reindex() {
	s.processed = make(map[string]bool, len(s.ImagesProcessed))
	for _, id := range s.ImagesProcessed {
		s.processed[id] = true
	}
}
