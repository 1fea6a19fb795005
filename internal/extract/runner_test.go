package extract

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/pochy/chat-screenshot-parser/internal/config"
	"github.com/pochy/chat-screenshot-parser/internal/layout"
	"github.com/pochy/chat-screenshot-parser/internal/ocr"
	"github.com/pochy/chat-screenshot-parser/internal/record"
	"github.com/pochy/chat-screenshot-parser/internal/resolve"
)

// fakeRecognizer serves canned spans per image id.
type fakeRecognizer struct {
	spans map[string][]ocr.Span
	errOn string
}

func (f *fakeRecognizer) Recognize(_ context.Context, in ocr.Input) ([]ocr.Span, error) {
	if in.ID == f.errOn {
		return nil, errors.New("recognizer crashed")
	}
	return f.spans[in.ID], nil
}

type passRefiner struct{}

func (passRefiner) Refine(_ context.Context, _ ocr.Input, span ocr.Span, _, _ float64) ocr.Span {
	return span
}

// Span boxes below assume the 100x200 test images.
func span(x0, x1, y float64, text string) ocr.Span {
	return ocr.Span{Text: text, Box: ocr.Box{X0: x0, Y0: y, X1: x1, Y1: y + 10}, Confidence: 0.9}
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, 100, 200))); err != nil {
		t.Fatal(err)
	}
}

func newTestRunner(t *testing.T, dir string, rec Recognizer) (*Runner, config.ExtractConfig) {
	t.Helper()
	out := t.TempDir()
	cfg := config.ExtractConfig{
		InputDir:   dir,
		RawStream:  filepath.Join(out, "raw.jsonl"),
		Checkpoint: filepath.Join(out, "checkpoint.json"),
		TZOffset:   "+09:00",
		CenterBand: 0.15,
		CropMargin: 10,
	}
	zone, err := resolve.FixedZone(cfg.TZOffset)
	if err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	res := &resolve.Resolver{
		Refiner:   passRefiner{},
		Zone:      zone,
		LangLeft:  "zh",
		LangRight: "ja",
		Logger:    logger,
	}
	cls := layout.Classifier{CenterBand: cfg.CenterBand, TimeLike: resolve.TimeLike}
	return NewRunner(cfg, rec, cls, res, logger), cfg
}

func TestRun_ProcessesAndCheckpoints(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"))
	writePNG(t, filepath.Join(dir, "b.png"))

	rec := &fakeRecognizer{spans: map[string][]ocr.Span{
		"a.png": {
			span(40, 60, 10, "2025-6-18 20:03"),
			span(5, 25, 30, "你好"),
		},
		"b.png": {
			span(75, 95, 10, "ありがとう"),
		},
	}}
	r, cfg := newTestRunner(t, dir, rec)

	sum, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Discovered != 2 || sum.Processed != 2 || sum.Skipped != 0 || sum.Failed != 0 {
		t.Errorf("summary = %+v", sum)
	}
	if sum.RecordsAppended != 3 {
		t.Errorf("RecordsAppended = %d", sum.RecordsAppended)
	}

	got, err := record.ReadStream(cfg.RawStream)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("raw stream has %d records", len(got))
	}
	for i, rc := range got {
		if rc.ID != i+1 {
			t.Errorf("record %d id = %d", i, rc.ID)
		}
	}
	if got[0].Type != record.TypeTimestamp {
		t.Errorf("first record type = %s", got[0].Type)
	}
	if got[1].Speaker != record.SpeakerPartyB || got[1].Text != "你好" {
		t.Errorf("left message = %+v", got[1])
	}
	// Date context carries from a.png into b.png.
	if got[2].Speaker != record.SpeakerPartyA || got[2].Timestamp != "2025-06-18T20:03:00+09:00" {
		t.Errorf("right message = %+v", got[2])
	}
}

func TestRun_SecondRunSkipsProcessed(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"))

	rec := &fakeRecognizer{spans: map[string][]ocr.Span{
		"a.png": {span(5, 25, 30, "你好")},
	}}
	r, cfg := newTestRunner(t, dir, rec)

	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	sum, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if sum.Skipped != 1 || sum.Processed != 0 || sum.RecordsAppended != 0 {
		t.Errorf("second run summary = %+v", sum)
	}

	got, err := record.ReadStream(cfg.RawStream)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Errorf("rerun duplicated records: %d", len(got))
	}
}

func TestRun_FailedImageRetriedNextRun(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"))
	writePNG(t, filepath.Join(dir, "b.png"))

	rec := &fakeRecognizer{
		spans: map[string][]ocr.Span{
			"a.png": {span(5, 25, 30, "你好")},
			"b.png": {span(5, 25, 30, "吃饭了吗")},
		},
		errOn: "b.png",
	}
	r, cfg := newTestRunner(t, dir, rec)

	sum, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Processed != 1 || sum.Failed != 1 {
		t.Errorf("summary = %+v", sum)
	}

	// Failure is recoverable: the image stays unprocessed and succeeds once
	// the recognizer does.
	rec.errOn = ""
	sum, err = r.Run(context.Background())
	if err != nil {
		t.Fatalf("retry run: %v", err)
	}
	if sum.Skipped != 1 || sum.Processed != 1 {
		t.Errorf("retry summary = %+v", sum)
	}

	got, err := record.ReadStream(cfg.RawStream)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("raw stream has %d records", len(got))
	}
}

func TestRun_MaxImagesLimitsBatch(t *testing.T) {
	dir := t.TempDir()
	spans := map[string][]ocr.Span{}
	for i := 0; i < 3; i++ {
		name := fmt.Sprintf("img_%03d.png", i)
		writePNG(t, filepath.Join(dir, name))
		spans[name] = []ocr.Span{span(5, 25, 30, "你好")}
	}
	r, _ := newTestRunner(t, dir, &fakeRecognizer{spans: spans})
	r.cfg.MaxImages = 2

	sum, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Processed != 2 {
		t.Errorf("Processed = %d, want 2", sum.Processed)
	}

	sum, err = r.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if sum.Processed != 1 || sum.Skipped != 2 {
		t.Errorf("second run summary = %+v", sum)
	}
}

// A failed image does not consume a limit slot: with MaxImages = 2 and the
// first image failing, two later images are still newly processed.
func TestRun_MaxImagesNotConsumedByFailures(t *testing.T) {
	dir := t.TempDir()
	spans := map[string][]ocr.Span{}
	for i := 0; i < 3; i++ {
		name := fmt.Sprintf("img_%03d.png", i)
		writePNG(t, filepath.Join(dir, name))
		spans[name] = []ocr.Span{span(5, 25, 30, "你好")}
	}
	r, _ := newTestRunner(t, dir, &fakeRecognizer{spans: spans, errOn: "img_000.png"})
	r.cfg.MaxImages = 2

	sum, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Processed != 2 || sum.Failed != 1 {
		t.Errorf("summary = %+v", sum)
	}
}

func TestDiscoverImages_FiltersExtensions(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.png", "a.jpg", "notes.txt", "c.webp"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.png"), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := discoverImages(dir)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		filepath.Join(dir, "a.jpg"),
		filepath.Join(dir, "b.png"),
		filepath.Join(dir, "c.webp"),
	}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("image %d = %s, want %s", i, got[i], want[i])
		}
	}
}
