// Package dedup collapses the raw record stream into the canonical stream.
// Screenshots of overlapping scroll positions produce the same message many
// times, with OCR jitter; the engine removes exact, containment, and
// near-duplicate repeats, then orders survivors chronologically and assigns
// dense ids.
//
// The pass is deliberately two-phase, not streaming: a duplicate may appear
// many records after its original, so the raw stream is finalized before
// this stage begins.
package dedup

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/pochy/chat-screenshot-parser/internal/record"
)

// Options tunes the engine.
type Options struct {
	// Threshold is the minimum token-set Jaccard similarity for the
	// near-duplicate tier.
	Threshold float64
	// Window is how many recently kept records each incoming record is
	// compared against, in addition to all kept records sharing its exact
	// timestamp. The original behavior's bound is unspecified; 200 is
	// generous next to the few dozen messages a screenshot holds.
	Window int
	// MinNearLen is the normalized length at or below which the
	// near-duplicate tier is skipped; containment already covers short
	// fragments.
	MinNearLen int
}

// DefaultOptions mirror the original tool's flags.
func DefaultOptions() Options {
	return Options{Threshold: 0.9, Window: 200, MinNearLen: 10}
}

// Result carries per-tier removal counts for the run summary.
type Result struct {
	Input              int `json:"input"`
	EmptyDropped       int `json:"empty_dropped"`
	ExactRemoved       int `json:"exact_removed"`
	ContainmentRemoved int `json:"containment_removed"`
	NearRemoved        int `json:"near_removed"`
	Survivors          int `json:"survivors"`
}

// Engine performs the deduplication pass. Single-threaded by design.
type Engine struct {
	opts   Options
	logger *slog.Logger
}

func New(opts Options, logger *slog.Logger) *Engine {
	if opts.Threshold <= 0 {
		opts.Threshold = 0.9
	}
	if opts.Window <= 0 {
		opts.Window = 200
	}
	if opts.MinNearLen <= 0 {
		opts.MinNearLen = 10
	}
	return &Engine{opts: opts, logger: logger}
}

// item is one kept record plus its precomputed comparison forms. Containment
// and near-duplicate wins replace the record in place, so a survivor keeps
// the stream position of its earliest occurrence.
type item struct {
	rec  record.MessageRecord
	norm string
	toks map[string]struct{}
	pos  int // position in the kept output sequence
}

// Run deduplicates records and returns the canonical sequence with dense
// 1..N ids, sorted by effective timestamp.
func (e *Engine) Run(records []record.MessageRecord) ([]record.MessageRecord, Result) {
	res := Result{Input: len(records)}

	var kept []*item
	var window []*item           // comparable records only, most recent last
	byTS := map[string][]*item{} // comparable records sharing a timestamp

	for _, rec := range records {
		if rec.Type != record.TypeText {
			// Markers and system notices skip all three tiers but keep
			// their place in the ordering, except that a notice with no
			// payload at all is noise.
			if rec.Type != record.TypeTimestamp && strings.TrimSpace(rec.Text) == "" {
				res.EmptyDropped++
				continue
			}
			kept = append(kept, &item{rec: rec, pos: len(kept)})
			continue
		}

		if strings.TrimSpace(rec.Text) == "" {
			res.EmptyDropped++
			continue
		}

		it := &item{rec: rec, norm: normalize(rec.Text), toks: tokens(rec.Text)}

		if e.match(it, window, byTS, &res) {
			continue
		}

		it.pos = len(kept)
		kept = append(kept, it)
		window = append(window, it)
		if len(window) > e.opts.Window {
			window = window[1:]
		}
		if rec.Timestamp != "" {
			byTS[rec.Timestamp] = append(byTS[rec.Timestamp], it)
		}
	}

	out := finalize(kept)
	res.Survivors = len(out)
	e.logger.Info("dedup pass complete",
		"input", res.Input,
		"empty_dropped", res.EmptyDropped,
		"exact", res.ExactRemoved,
		"containment", res.ContainmentRemoved,
		"near", res.NearRemoved,
		"survivors", res.Survivors,
	)
	return out, res
}

// match compares the incoming item against the candidate set, applying each
// tier across all candidates before falling to the next, so a removal is
// always attributed to the strongest tier that matches anywhere in the set.
// Returns true when the incoming record was absorbed (dropped or merged into
// a kept record). The speaker must match in every tier.
func (e *Engine) match(it *item, window []*item, byTS map[string][]*item, res *Result) bool {
	seen := map[*item]bool{}
	candidates := make([]*item, 0, len(window)+4)
	for i := len(window) - 1; i >= 0; i-- {
		c := window[i]
		if c.rec.Speaker != it.rec.Speaker {
			continue
		}
		candidates = append(candidates, c)
		seen[c] = true
	}
	if it.rec.Timestamp != "" {
		for _, c := range byTS[it.rec.Timestamp] {
			if c.rec.Speaker == it.rec.Speaker && !seen[c] {
				candidates = append(candidates, c)
			}
		}
	}

	// Tier 1: identical (timestamp, speaker, text). The later occurrence is
	// the incoming one; drop it.
	for _, c := range candidates {
		if c.rec.Timestamp == it.rec.Timestamp && c.rec.Text == it.rec.Text {
			res.ExactRemoved++
			return true
		}
	}

	// Tier 2: containment after normalization. Keep the longer text; the
	// survivor adopts the earlier of the two timestamps.
	if it.norm != "" {
		for _, c := range candidates {
			if c.norm == "" {
				continue
			}
			if strings.Contains(c.norm, it.norm) || strings.Contains(it.norm, c.norm) {
				if len([]rune(it.norm)) > len([]rune(c.norm)) {
					e.replace(c, it, byTS)
				} else {
					c.rec.Timestamp = earlierTimestamp(c.rec.Timestamp, it.rec.Timestamp)
				}
				res.ContainmentRemoved++
				return true
			}
		}
	}

	// Tier 3: token-set similarity. Keep the higher confidence; ties favor
	// the earlier (already kept) record.
	if len([]rune(it.norm)) <= e.opts.MinNearLen {
		return false
	}
	for _, c := range candidates {
		if len([]rune(c.norm)) <= e.opts.MinNearLen {
			continue
		}
		if jaccard(c.toks, it.toks) >= e.opts.Threshold {
			if it.rec.Confidence > c.rec.Confidence {
				e.replace(c, it, byTS)
			}
			res.NearRemoved++
			return true
		}
	}
	return false
}

// replace swaps the kept record's content for the incoming one while
// preserving its stream position and the earlier timestamp of the pair.
func (e *Engine) replace(kept, incoming *item, byTS map[string][]*item) {
	ts := earlierTimestamp(kept.rec.Timestamp, incoming.rec.Timestamp)
	kept.rec = incoming.rec
	kept.rec.Timestamp = ts
	kept.norm = incoming.norm
	kept.toks = incoming.toks
	if ts != "" {
		byTS[ts] = append(byTS[ts], kept)
	}
}

func earlierTimestamp(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	ta, errA := time.Parse(time.RFC3339, a)
	tb, errB := time.Parse(time.RFC3339, b)
	if errA != nil || errB != nil {
		return a
	}
	if tb.Before(ta) {
		return b
	}
	return a
}

// finalize sorts survivors by effective timestamp and reassigns dense ids.
// A record without a timestamp inherits the effective timestamp of the
// nearest preceding timestamped survivor, so the stable sort keeps it glued
// right after that record.
func finalize(kept []*item) []record.MessageRecord {
	type ordered struct {
		rec record.MessageRecord
		eff time.Time
		pos int
	}
	out := make([]ordered, 0, len(kept))
	var current time.Time
	for _, it := range kept {
		if t, ok := it.rec.Time(); ok {
			current = t
		}
		out = append(out, ordered{rec: it.rec, eff: current, pos: it.pos})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].eff.Equal(out[j].eff) {
			return out[i].eff.Before(out[j].eff)
		}
		return out[i].pos < out[j].pos
	})

	records := make([]record.MessageRecord, len(out))
	for i, o := range out {
		o.rec.ID = i + 1
		records[i] = o.rec
	}
	return records
}
