package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Adapter coordinates the two role-specific recognizers. The primary engine
// reads the whole image; spans later attributed to the right-hand party are
// re-submitted as crops to the secondary engine, whose text and confidence
// replace the primary's while the bounding box is kept.
type Adapter struct {
	primary   Engine
	secondary Engine
	margin    float64
	logger    *slog.Logger
}

// NewAdapter builds an adapter over the two engines. margin is the padding,
// in pixels, added around a span's box before the secondary crop.
func NewAdapter(primary, secondary Engine, margin float64, logger *slog.Logger) *Adapter {
	return &Adapter{primary: primary, secondary: secondary, margin: margin, logger: logger}
}

// Recognize runs the primary engine over the whole image and returns spans
// in top-to-bottom visual order.
func (a *Adapter) Recognize(ctx context.Context, in Input) ([]Span, error) {
	spans, err := a.primary.Recognize(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("primary recognize %s: %w", in.ID, err)
	}
	sort.SliceStable(spans, func(i, j int) bool { return spans[i].Box.Y0 < spans[j].Box.Y0 })
	return spans, nil
}

// Refine re-recognizes one span's crop with the secondary engine and returns
// the span with replaced text and confidence. The box is never changed. Any
// failure is recoverable: the primary span is returned unchanged.
func (a *Adapter) Refine(ctx context.Context, in Input, span Span, width, height float64) Span {
	region := span.Box.Grow(a.margin, width, height)
	if region.IsEmpty() {
		return span
	}
	crop := Input{ID: in.ID, Image: in.Image, Region: &region}
	spans, err := a.secondary.Recognize(ctx, crop)
	if err != nil {
		a.logger.Warn("secondary recognition failed, keeping primary text",
			"image", in.ID, "engine", a.secondary.Name(), "error", err)
		return span
	}
	if len(spans) == 0 {
		return span
	}

	var parts []string
	var sum float64
	for _, s := range spans {
		parts = append(parts, s.Text)
		sum += s.Confidence
	}
	text := strings.TrimSpace(strings.Join(parts, ""))
	if text == "" {
		return span
	}
	span.Text = text
	span.Confidence = sum / float64(len(spans))
	span.Engine = a.secondary.Name()
	return span
}
