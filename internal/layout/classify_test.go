package layout

import (
	"testing"

	"github.com/pochy/chat-screenshot-parser/internal/ocr"
)

func span(x0, x1 float64, text string) ocr.Span {
	return ocr.Span{Text: text, Box: ocr.Box{X0: x0, Y0: 10, X1: x1, Y1: 30}, Confidence: 0.9}
}

func TestClassify_Sides(t *testing.T) {
	c := Classifier{CenterBand: 0.15}
	width := 1000.0

	cases := []struct {
		name string
		s    ocr.Span
		want Role
	}{
		{"far left", span(20, 200, "你好"), RoleLeft},
		{"far right", span(800, 980, "こんにちは"), RoleRight},
		{"center band", span(400, 600, "不明なテキスト"), RoleCenter},
		{"just left of band", span(100, 500, "左端"), RoleLeft},
	}
	for _, tc := range cases {
		if got := c.Classify(tc.s, width); got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

// The band is half-open: a midpoint exactly at the band edge belongs to the
// side column, one pixel inside belongs to the center.
func TestClassify_BandEdge(t *testing.T) {
	c := Classifier{CenterBand: 0.15}
	width := 1000.0

	// Band edge at 500 ± 150.
	if got := c.Classify(span(550, 750, "text"), width); got != RoleRight {
		t.Errorf("midpoint at band edge: got %s, want %s", got, RoleRight)
	}
	if got := c.Classify(span(549, 749, "text"), width); got != RoleCenter {
		t.Errorf("midpoint inside band: got %s, want %s", got, RoleCenter)
	}
	if got := c.Classify(span(250, 450, "text"), width); got != RoleLeft {
		t.Errorf("midpoint at left band edge: got %s, want %s", got, RoleLeft)
	}
}

func TestClassify_TimeLikeReroutesAnywhere(t *testing.T) {
	c := Classifier{
		CenterBand: 0.15,
		TimeLike:   func(s string) bool { return s == "2025-6-18 20:03" },
	}
	width := 1000.0

	// Far on the left, but the text pattern wins.
	s := span(20, 200, "2025-6-18 20:03")
	if got := c.Classify(s, width); got != RoleCenter {
		t.Errorf("time-like span: got %s, want %s", got, RoleCenter)
	}
}

// With the band disabled, the exact-midpoint tie goes to the right column.
func TestClassify_ZeroBandMidpointTieBreak(t *testing.T) {
	c := Classifier{CenterBand: 0}
	width := 1000.0

	// midpoint = (400+600)/2 = 500 = width/2
	if got := c.Classify(span(400, 600, "text"), width); got != RoleRight {
		t.Errorf("midpoint == width/2: got %s, want %s", got, RoleRight)
	}
	if got := c.Classify(span(398, 600, "text"), width); got != RoleLeft {
		t.Errorf("midpoint left of width/2: got %s, want %s", got, RoleLeft)
	}
	// Nothing is centered by position alone.
	if got := c.Classify(span(480, 520, "text"), width); got == RoleCenter {
		t.Error("disabled band must not center any span")
	}
}
