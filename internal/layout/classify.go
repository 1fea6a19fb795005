// Package layout maps recognized spans to a provisional screen role from
// geometry alone. Party attribution is a pure function of the span midpoint,
// the image width, and whether the text looks like a date or time.
package layout

import "github.com/pochy/chat-screenshot-parser/internal/ocr"

// Role is the provisional placement of a span.
type Role string

const (
	// RoleLeft is the left-hand party's column.
	RoleLeft Role = "left"
	// RoleRight is the right-hand party's column.
	RoleRight Role = "right"
	// RoleCenter is the timestamp/system band between the columns.
	RoleCenter Role = "center"
)

// DefaultCenterBand is the half-width of the center band as a fraction of
// the image width.
const DefaultCenterBand = 0.15

// Classifier assigns roles. TimeLike, when set, reclassifies any span whose
// text matches a date/time shape as center regardless of position.
type Classifier struct {
	// CenterBand is the center-band half-width as a fraction of image
	// width. Zero disables the band: only time-like text is centered and
	// sides are decided by midpoint alone.
	CenterBand float64
	// TimeLike reports whether text matches a date/time pattern.
	TimeLike func(string) bool
}

// Classify returns the role for one span given the image width in pixels.
// The center band is half-open: a midpoint exactly at the band edge belongs
// to the side column. With the band disabled, a midpoint exactly at width/2
// is right: the right column hugs the screen edge in chat layouts, so the
// boundary pixel belongs to it.
func (c Classifier) Classify(span ocr.Span, imageWidth float64) Role {
	if c.TimeLike != nil && c.TimeLike(span.Text) {
		return RoleCenter
	}

	mid := span.Box.MidX()

	if c.CenterBand > 0 {
		off := mid - imageWidth/2
		if off < 0 {
			off = -off
		}
		if off < imageWidth*c.CenterBand {
			return RoleCenter
		}
	}

	if mid < imageWidth*0.5 {
		return RoleLeft
	}
	return RoleRight
}
