// Package assemble turns one image's resolved drafts into stream records.
package assemble

import (
	"fmt"

	"github.com/pochy/chat-screenshot-parser/internal/record"
)

// Assembler assigns provisional ids and appends drafts to the raw stream.
// Drafts arrive in top-to-bottom visual order (the recognizer adapter sorts
// spans by y0 and the resolver preserves that order); the assembler never
// reorders two drafts from the same image. Cross-image order is image
// discovery order — chronology is the dedup pass's job.
type Assembler struct {
	w      *record.StreamWriter
	nextID int
}

// New creates an assembler appending to w. nextID is the first provisional
// id to assign; on resumed runs it continues after the existing raw stream.
func New(w *record.StreamWriter, nextID int) *Assembler {
	if nextID < 1 {
		nextID = 1
	}
	return &Assembler{w: w, nextID: nextID}
}

// Commit appends all drafts for one image and flushes the stream to durable
// storage. The flush happens before the caller marks the image processed,
// so the checkpoint never runs ahead of the data. Returns the number of
// records appended.
func (a *Assembler) Commit(imageID string, drafts []record.MessageRecord) (int, error) {
	for i := range drafts {
		drafts[i].ID = a.nextID
		if drafts[i].Source == "" {
			drafts[i].Source = imageID
		}
		if err := a.w.Append(drafts[i]); err != nil {
			return i, fmt.Errorf("append record for %s: %w", imageID, err)
		}
		a.nextID++
	}
	if err := a.w.Sync(); err != nil {
		return len(drafts), fmt.Errorf("sync stream for %s: %w", imageID, err)
	}
	return len(drafts), nil
}
