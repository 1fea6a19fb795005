// Package tesseract implements the ocr.Engine contract on top of the
// gosseract client. One Engine is constructed per recognizer role with that
// role's trained language data.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"strings"

	_ "image/jpeg"

	"github.com/otiai10/gosseract/v2"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/pochy/chat-screenshot-parser/internal/ocr"
)

// Engine is a Tesseract-backed recognizer. Clients are created per call:
// gosseract clients are not safe for reuse across goroutines, and the
// pipeline serializes recognition anyway.
type Engine struct {
	langs         []string
	clientFactory func() *gosseract.Client
}

// New constructs an engine for the given trained languages (e.g. "chi_sim",
// "jpn").
func New(langs ...string) *Engine {
	return &Engine{langs: langs, clientFactory: gosseract.NewClient}
}

func (e *Engine) Name() string {
	return "tesseract-" + strings.Join(e.langs, "+")
}

// Ping verifies the backend can recognize at all with the configured
// languages. Called once at startup; an error here is fatal for the run.
func (e *Engine) Ping(ctx context.Context) error {
	probe, err := blankPNG()
	if err != nil {
		return err
	}
	if _, err := e.Recognize(ctx, ocr.Input{ID: "ping", Image: probe}); err != nil {
		return fmt.Errorf("tesseract unavailable for %s: %w", strings.Join(e.langs, "+"), err)
	}
	return nil
}

// Recognize runs OCR over the input, optionally restricted to in.Region,
// and returns line-level spans. Crop coordinates are translated back into
// full-image space so boxes stay comparable across calls.
func (e *Engine) Recognize(ctx context.Context, in ocr.Input) ([]ocr.Span, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	imgData := in.Image
	var offX, offY float64
	if in.Region != nil && !in.Region.IsEmpty() {
		cropped, x, y, err := cropImage(in.Image, *in.Region)
		if err != nil {
			return nil, err
		}
		imgData, offX, offY = cropped, x, y
	}

	c := e.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(imgData); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	if len(e.langs) > 0 {
		if err := c.SetLanguage(e.langs...); err != nil {
			return nil, fmt.Errorf("set languages: %w", err)
		}
	}

	boxes, err := c.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("get line boxes: %w", err)
	}

	spans := make([]ocr.Span, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		spans = append(spans, ocr.Span{
			Text: text,
			Box: ocr.Box{
				X0: offX + float64(b.Box.Min.X),
				Y0: offY + float64(b.Box.Min.Y),
				X1: offX + float64(b.Box.Max.X),
				Y1: offY + float64(b.Box.Max.Y),
			},
			Confidence: b.Confidence / 100.0,
			Engine:     e.Name(),
		})
	}
	return spans, nil
}

// cropImage decodes data, extracts region, and re-encodes as PNG. Returns
// the crop plus the offset of its origin in the source image.
func cropImage(data []byte, region ocr.Box) ([]byte, float64, float64, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode for region: %w", err)
	}
	rect := image.Rect(
		int(math.Round(region.X0)),
		int(math.Round(region.Y0)),
		int(math.Round(region.X1)),
		int(math.Round(region.Y1)),
	).Intersect(img.Bounds())
	if rect.Empty() {
		return nil, 0, 0, fmt.Errorf("region outside image bounds")
	}
	sub, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	})
	if !ok {
		return nil, 0, 0, fmt.Errorf("image does not support sub-image")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, sub.SubImage(rect)); err != nil {
		return nil, 0, 0, fmt.Errorf("encode cropped image: %w", err)
	}
	return buf.Bytes(), float64(rect.Min.X), float64(rect.Min.Y), nil
}

func blankPNG() ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.White)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode probe image: %w", err)
	}
	return buf.Bytes(), nil
}
