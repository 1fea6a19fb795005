// Package report computes read-only statistics over a record stream. It is
// the in-repo stand-in for the downstream analytics consumer and never
// mutates records.
package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/pochy/chat-screenshot-parser/internal/record"
)

// Stats summarizes a record stream.
type Stats struct {
	Total         int
	BySpeaker     map[record.Speaker]int
	ByType        map[record.Type]int
	ByDate        map[string]int // yyyy-mm-dd of timestamped records
	NullTimestamp int
	AvgTextLength float64 // mean rune length of text-type records
}

// Compute gathers stats over records.
func Compute(records []record.MessageRecord) Stats {
	s := Stats{
		BySpeaker: map[record.Speaker]int{},
		ByType:    map[record.Type]int{},
		ByDate:    map[string]int{},
	}
	textLen, textCount := 0, 0
	for _, r := range records {
		s.Total++
		s.BySpeaker[r.Speaker]++
		s.ByType[r.Type]++
		if t, ok := r.Time(); ok {
			s.ByDate[t.Format("2006-01-02")]++
		} else {
			s.NullTimestamp++
		}
		if r.Type == record.TypeText {
			textLen += len([]rune(r.Text))
			textCount++
		}
	}
	if textCount > 0 {
		s.AvgTextLength = float64(textLen) / float64(textCount)
	}
	return s
}

// Print writes a plain-text report.
func Print(w io.Writer, s Stats) {
	fmt.Fprintf(w, "Total records: %d\n", s.Total)

	fmt.Fprintf(w, "\nBy speaker:\n")
	for _, sp := range []record.Speaker{record.SpeakerPartyA, record.SpeakerPartyB, record.SpeakerSystem} {
		if n := s.BySpeaker[sp]; n > 0 {
			fmt.Fprintf(w, "  %-8s %6d (%.1f%%)\n", sp, n, 100*float64(n)/float64(s.Total))
		}
	}

	fmt.Fprintf(w, "\nBy type:\n")
	for _, ty := range []record.Type{record.TypeText, record.TypeSystem, record.TypeTimestamp} {
		if n := s.ByType[ty]; n > 0 {
			fmt.Fprintf(w, "  %-10s %6d\n", ty, n)
		}
	}

	if len(s.ByDate) > 0 {
		dates := make([]string, 0, len(s.ByDate))
		for d := range s.ByDate {
			dates = append(dates, d)
		}
		sort.Strings(dates)
		fmt.Fprintf(w, "\nBy date:\n")
		for _, d := range dates {
			fmt.Fprintf(w, "  %s %6d\n", d, s.ByDate[d])
		}
	}

	fmt.Fprintf(w, "\nWithout timestamp: %d\n", s.NullTimestamp)
	if s.AvgTextLength > 0 {
		fmt.Fprintf(w, "Average text length: %.1f\n", s.AvgTextLength)
	}
}
