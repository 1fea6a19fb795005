// Package resolve finalizes speaker identity, language, and timestamps for
// classified spans, producing draft message records.
package resolve

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/pochy/chat-screenshot-parser/internal/layout"
	"github.com/pochy/chat-screenshot-parser/internal/ocr"
	"github.com/pochy/chat-screenshot-parser/internal/record"
)

// System notice shapes (message recalls, group joins). A span matching one
// of these is a system record regardless of horizontal position.
var systemPatterns = []*regexp.Regexp{
	regexp.MustCompile(`撤回を完了しました`),
	regexp.MustCompile(`撤回了一条消息`),
	regexp.MustCompile(`消息已撤回`),
	regexp.MustCompile(`さんが参加しました`),
	regexp.MustCompile(`加入了群聊`),
}

var kana = regexp.MustCompile(`[\x{3040}-\x{309F}\x{30A0}-\x{30FF}]`)

// ClassifiedSpan pairs a recognized span with its layout role.
type ClassifiedSpan struct {
	ocr.Span
	Role layout.Role
}

// Refiner re-recognizes one span's crop with the secondary engine. Satisfied
// by *ocr.Adapter.
type Refiner interface {
	Refine(ctx context.Context, in ocr.Input, span ocr.Span, width, height float64) ocr.Span
}

// Resolver turns classified spans into draft records. Left spans become
// party B in the left language; right spans are re-recognized with the
// secondary engine and become party A in the right language; center spans
// become timestamp markers or system records.
type Resolver struct {
	Refiner   Refiner
	Zone      *time.Location
	LangLeft  string // language tag for party B (left column)
	LangRight string // language tag for party A (right column)
	Logger    *slog.Logger
}

// ResolveImage resolves all spans of one image in order. The returned drafts
// have no ids; the assembler assigns them. The updated date context must be
// carried into the next image.
func (r *Resolver) ResolveImage(ctx context.Context, in ocr.Input, width, height float64, spans []ClassifiedSpan, dc DateContext) ([]record.MessageRecord, DateContext) {
	var drafts []record.MessageRecord
	for _, span := range spans {
		if strings.TrimSpace(span.Text) == "" || span.Confidence <= 0 {
			continue
		}

		if span.Role == layout.RoleCenter {
			if t, ok := parseTimestamp(strings.TrimSpace(span.Text), dc, r.Zone); ok {
				dc = r.advance(dc, t, in.ID)
				drafts = append(drafts, record.MessageRecord{
					Timestamp:  dc.Current,
					Speaker:    record.SpeakerSystem,
					Type:       record.TypeTimestamp,
					Confidence: span.Confidence,
					Source:     in.ID,
				})
				continue
			}
			drafts = append(drafts, r.systemRecord(span, dc, in.ID, !isSystemNotice(span.Text)))
			continue
		}

		if isSystemNotice(span.Text) {
			drafts = append(drafts, r.systemRecord(span, dc, in.ID, false))
			continue
		}

		var rec record.MessageRecord
		switch span.Role {
		case layout.RoleRight:
			refined := r.Refiner.Refine(ctx, in, span.Span, width, height)
			if strings.TrimSpace(refined.Text) == "" || refined.Confidence <= 0 {
				continue
			}
			rec = record.MessageRecord{
				Timestamp:  dc.Current,
				Speaker:    record.SpeakerPartyA,
				Lang:       r.LangRight,
				Type:       record.TypeText,
				Text:       refined.Text,
				Confidence: refined.Confidence,
				Source:     in.ID,
			}
		default: // RoleLeft
			lang := r.LangLeft
			// The primary recognizer occasionally reads the right-side
			// language on the left column; trust the script over the side.
			if kana.MatchString(span.Text) {
				lang = r.LangRight
			}
			rec = record.MessageRecord{
				Timestamp:  dc.Current,
				Speaker:    record.SpeakerPartyB,
				Lang:       lang,
				Type:       record.TypeText,
				Text:       span.Text,
				Confidence: span.Confidence,
				Source:     in.ID,
			}
		}
		drafts = append(drafts, rec)
	}
	return drafts, dc
}

// systemRecord builds a system-type record from a span. degraded marks
// center text that matched no known notice shape; its confidence is reduced
// since it may be layout noise.
func (r *Resolver) systemRecord(span ClassifiedSpan, dc DateContext, source string, degraded bool) record.MessageRecord {
	conf := span.Confidence
	if degraded {
		conf *= 0.8
	}
	return record.MessageRecord{
		Timestamp:  dc.Current,
		Speaker:    record.SpeakerSystem,
		Lang:       r.LangRight,
		Type:       record.TypeSystem,
		Text:       span.Text,
		Confidence: conf,
		Source:     source,
	}
}

func (r *Resolver) advance(dc DateContext, t time.Time, source string) DateContext {
	if dc.Current != "" {
		if prev, err := time.Parse(time.RFC3339, dc.Current); err == nil && t.Before(prev) {
			// Screenshots arrive roughly ordered but not strictly; a
			// backward move is kept as-is and sorted out by the dedup pass.
			r.Logger.Debug("date context moved backward",
				"image", source, "from", dc.Current, "to", t.Format(time.RFC3339))
		}
	}
	return DateContext{
		Current: t.Format(time.RFC3339),
		Date:    time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()),
	}
}

func isSystemNotice(text string) bool {
	for _, p := range systemPatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}
