package resolve

import (
	"fmt"
	"regexp"
	"time"
)

// Timestamp shapes seen in chat screenshots. The relative forms (昨天, 今天,
// 星期X) are recognized so the span is routed away from party attribution,
// but they are never resolved to a concrete date: an ambiguous timestamp
// becomes a system record, not an invented date.
var timePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d{4}-\d{1,2}-\d{1,2}(\s+\d{1,2}:\d{2})?`),
	regexp.MustCompile(`\d{4}年\d{1,2}月\d{1,2}日(\s*\d{1,2}:\d{2})?`),
	regexp.MustCompile(`昨天\s*\d{1,2}:\d{2}`),
	regexp.MustCompile(`今天\s*\d{1,2}:\d{2}`),
	regexp.MustCompile(`星期[一二三四五六日]\s*\d{1,2}:\d{2}`),
	regexp.MustCompile(`^\d{1,2}:\d{2}$`),
}

var (
	numericDate = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})(?:[\sT]+(\d{1,2}):(\d{2})(?::(\d{2}))?)?$`)
	cjkDate     = regexp.MustCompile(`^(\d{4})年(\d{1,2})月(\d{1,2})日(?:\s*(\d{1,2}):(\d{2}))?$`)
	timeOnly    = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
)

// TimeLike reports whether text matches any known date/time shape. Used by
// the layout classifier to reroute such spans to the center role.
func TimeLike(text string) bool {
	for _, p := range timePatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// DateContext is the run-scoped date state threaded through resolution. It
// is passed in and returned explicitly; nothing ambient. The context may
// move backward when a later image carries an earlier explicit date — that
// is accepted, not corrected.
type DateContext struct {
	// Current is the ISO-8601 timestamp of the most recent marker, adopted
	// by following message records. Empty means no timestamp seen yet.
	Current string
	// Date is the date portion of Current, used to complete time-only
	// spans. Zero means unknown.
	Date time.Time
}

// parseTimestamp attempts a permissive parse of a center span. Single-digit
// months, days, and hours are accepted; time-of-day is optional on dated
// forms. Time-only spans need a date from dc. ok is false when text is not
// a resolvable timestamp.
func parseTimestamp(text string, dc DateContext, zone *time.Location) (t time.Time, ok bool) {
	if m := numericDate.FindStringSubmatch(text); m != nil {
		return buildTime(m[1], m[2], m[3], m[4], m[5], m[6], zone)
	}
	if m := cjkDate.FindStringSubmatch(text); m != nil {
		return buildTime(m[1], m[2], m[3], m[4], m[5], "", zone)
	}
	if m := timeOnly.FindStringSubmatch(text); m != nil {
		if dc.Date.IsZero() {
			return time.Time{}, false
		}
		hour, min := atoi(m[1]), atoi(m[2])
		if hour > 23 || min > 59 {
			return time.Time{}, false
		}
		d := dc.Date
		return time.Date(d.Year(), d.Month(), d.Day(), hour, min, 0, 0, zone), true
	}
	return time.Time{}, false
}

func buildTime(year, month, day, hour, min, sec string, zone *time.Location) (time.Time, bool) {
	y, mo, d := atoi(year), atoi(month), atoi(day)
	if mo < 1 || mo > 12 || d < 1 || d > 31 {
		return time.Time{}, false
	}
	h, mi, s := atoi(hour), atoi(min), atoi(sec)
	if h > 23 || mi > 59 || s > 59 {
		return time.Time{}, false
	}
	t := time.Date(y, time.Month(mo), d, h, mi, s, 0, zone)
	// Reject day-of-month overflow (e.g. 2025-02-30 normalizing to March).
	if t.Day() != d || t.Month() != time.Month(mo) {
		return time.Time{}, false
	}
	return t, true
}

func atoi(s string) int {
	n := 0
	for _, c := range s {
		n = n*10 + int(c-'0')
	}
	return n
}

// FixedZone builds the location for a configured UTC offset such as
// "+09:00".
func FixedZone(offset string) (*time.Location, error) {
	m := regexp.MustCompile(`^([+-])(\d{2}):(\d{2})$`).FindStringSubmatch(offset)
	if m == nil {
		return nil, fmt.Errorf("invalid timezone offset %q", offset)
	}
	secs := atoi(m[2])*3600 + atoi(m[3])*60
	if m[1] == "-" {
		secs = -secs
	}
	return time.FixedZone("UTC"+offset, secs), nil
}
