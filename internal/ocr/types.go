// Package ocr defines the text-recognition capability the extraction
// pipeline depends on. The interfaces are small and provider-agnostic so
// backends can be native libraries or remote services without leaking
// provider concerns into callers.
package ocr

import "context"

// Box is an axis-aligned bounding box in pixel coordinates, origin at the
// upper-left corner of the image.
type Box struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// MidX returns the horizontal midpoint of the box.
func (b Box) MidX() float64 { return (b.X0 + b.X1) / 2 }

// IsEmpty reports whether the box has non-positive dimensions.
func (b Box) IsEmpty() bool { return b.X1 <= b.X0 || b.Y1 <= b.Y0 }

// Grow pads the box by margin pixels on every side, clamped to the image
// dimensions.
func (b Box) Grow(margin, width, height float64) Box {
	g := Box{X0: b.X0 - margin, Y0: b.Y0 - margin, X1: b.X1 + margin, Y1: b.Y1 + margin}
	if g.X0 < 0 {
		g.X0 = 0
	}
	if g.Y0 < 0 {
		g.Y0 = 0
	}
	if g.X1 > width {
		g.X1 = width
	}
	if g.Y1 > height {
		g.Y1 = height
	}
	return g
}

// Span is one recognized text region. Ephemeral: spans live only while an
// image is being converted and are never persisted.
type Span struct {
	Text       string
	Box        Box
	Confidence float64 // [0,1]
	Engine     string  // name of the engine that produced Text
}

// Input is a single recognition request.
type Input struct {
	// ID is a caller-provided identifier used in error messages.
	ID string
	// Image is the encoded image payload (png, jpeg, webp, bmp).
	Image []byte
	// Region restricts recognition to a subsection of the image. Nil means
	// the full image.
	Region *Box
}

// Engine is the recognition contract: one image (or crop) in, line-level
// spans out.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, in Input) ([]Span, error)
}
