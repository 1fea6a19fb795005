// Package extract orchestrates the screenshot-to-raw-stream batch: image
// discovery, checkpoint filtering, recognition, classification, resolution,
// and the per-image commit cycle.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"golang.org/x/sync/errgroup"

	"github.com/pochy/chat-screenshot-parser/internal/assemble"
	"github.com/pochy/chat-screenshot-parser/internal/checkpoint"
	"github.com/pochy/chat-screenshot-parser/internal/config"
	"github.com/pochy/chat-screenshot-parser/internal/layout"
	"github.com/pochy/chat-screenshot-parser/internal/ocr"
	"github.com/pochy/chat-screenshot-parser/internal/record"
	"github.com/pochy/chat-screenshot-parser/internal/resolve"
)

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".webp": true, ".bmp": true,
}

// Recognizer is the whole-image recognition capability of the adapter.
type Recognizer interface {
	Recognize(ctx context.Context, in ocr.Input) ([]ocr.Span, error)
}

// Runner executes one extraction batch.
type Runner struct {
	cfg        config.ExtractConfig
	recognizer Recognizer
	classifier layout.Classifier
	resolver   *resolve.Resolver
	logger     *slog.Logger
}

// NewRunner wires the pipeline stages together.
func NewRunner(cfg config.ExtractConfig, rec Recognizer, cls layout.Classifier, res *resolve.Resolver, logger *slog.Logger) *Runner {
	return &Runner{cfg: cfg, recognizer: rec, classifier: cls, resolver: res, logger: logger}
}

// Summary reports the outcome of a batch for the operator.
type Summary struct {
	RunID           string
	Discovered      int
	Skipped         int // already processed per checkpoint
	Processed       int
	Failed          int // recognition failed; will be retried next run
	RecordsAppended int
}

// imageResult is the hand-off between the recognition stage and the commit
// stage. A non-nil err marks a recoverable per-image failure.
type imageResult struct {
	id     string
	drafts []record.MessageRecord
	err    error
}

// Run processes every unprocessed image in discovery order. Recognition is
// serialized — one image occupies the recognizer at a time — while the
// commit of image i overlaps recognition of image i+1. The checkpoint is
// flushed after each image's records are durably appended, making the gap
// between images the unit of cancellation safety.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	state, err := checkpoint.Load(r.cfg.Checkpoint)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	images, err := discoverImages(r.cfg.InputDir)
	if err != nil {
		return nil, fmt.Errorf("discover images: %w", err)
	}

	var pending []string
	for _, img := range images {
		if !state.IsProcessed(filepath.Base(img)) {
			pending = append(pending, img)
		}
	}

	summary := &Summary{
		RunID:      state.RunID,
		Discovered: len(images),
		Skipped:    len(images) - len(pending),
	}
	r.logger.Info("images discovered",
		"total", len(images), "pending", len(pending), "skipped", summary.Skipped)

	// Provisional ids continue after whatever the raw stream already holds.
	existing, err := record.ReadStream(r.cfg.RawStream)
	if err != nil {
		return nil, fmt.Errorf("read raw stream: %w", err)
	}
	w, err := record.OpenStream(r.cfg.RawStream)
	if err != nil {
		return nil, fmt.Errorf("open raw stream: %w", err)
	}
	defer w.Close()
	asm := assemble.New(w, len(existing)+1)

	results := make(chan imageResult, 1)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(results)
		dc := resolve.DateContext{}
		converted := 0
		for _, path := range pending {
			// MaxImages bounds newly converted images; a failed image does
			// not consume the limit since the next run retries it.
			if r.cfg.MaxImages > 0 && converted >= r.cfg.MaxImages {
				break
			}
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			drafts, next, err := r.convertImage(gctx, path, dc)
			if err != nil {
				select {
				case results <- imageResult{id: filepath.Base(path), err: err}:
				case <-gctx.Done():
					return gctx.Err()
				}
				continue
			}
			dc = next
			converted++
			select {
			case results <- imageResult{id: filepath.Base(path), drafts: drafts}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	g.Go(func() error {
		for res := range results {
			if res.err != nil {
				r.logger.Warn("image conversion failed, will retry next run",
					"image", res.id, "error", res.err)
				state.AddError(fmt.Sprintf("convert %s: %v", res.id, res.err))
				summary.Failed++
				continue
			}
			n, err := asm.Commit(res.id, res.drafts)
			if err != nil {
				return fmt.Errorf("commit %s: %w", res.id, err)
			}
			state.MarkProcessed(res.id)
			state.RecordsAppended += n
			if err := state.Save(); err != nil {
				return fmt.Errorf("save checkpoint after %s: %w", res.id, err)
			}
			summary.Processed++
			summary.RecordsAppended += n
			r.logger.Info("image processed", "image", res.id, "records", n)
		}
		return nil
	})

	runErr := g.Wait()
	if runErr != nil && ctx.Err() != nil {
		// Interrupted between images; everything committed so far is
		// checkpointed, the in-flight image will be reprocessed.
		r.logger.Info("extraction interrupted", "processed", summary.Processed)
	}

	r.logger.Info("extraction complete",
		"run_id", summary.RunID,
		"discovered", summary.Discovered,
		"skipped", summary.Skipped,
		"processed", summary.Processed,
		"failed", summary.Failed,
		"records_appended", summary.RecordsAppended,
	)

	fmt.Printf("\n=== Extraction Summary ===\n")
	fmt.Printf("Images discovered: %d\n", summary.Discovered)
	fmt.Printf("Images skipped (checkpoint): %d\n", summary.Skipped)
	fmt.Printf("Images processed: %d\n", summary.Processed)
	fmt.Printf("Images failed: %d\n", summary.Failed)
	fmt.Printf("Records appended: %d\n", summary.RecordsAppended)

	if runErr != nil {
		return summary, runErr
	}
	return summary, nil
}

// convertImage runs the recognition half of the pipeline for one image:
// primary recognition, layout classification, and resolution (which
// re-recognizes right-party crops). All recognizer access for the image
// happens inside this call, keeping the accelerator serialized.
func (r *Runner) convertImage(ctx context.Context, path string, dc resolve.DateContext) ([]record.MessageRecord, resolve.DateContext, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, dc, fmt.Errorf("read image: %w", err)
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, dc, fmt.Errorf("decode image: %w", err)
	}
	width, height := float64(cfg.Width), float64(cfg.Height)

	in := ocr.Input{ID: filepath.Base(path), Image: data}
	spans, err := r.recognizer.Recognize(ctx, in)
	if err != nil {
		return nil, dc, err
	}
	if len(spans) == 0 {
		r.logger.Warn("no text recognized", "image", in.ID)
	}

	classified := make([]resolve.ClassifiedSpan, 0, len(spans))
	for _, s := range spans {
		classified = append(classified, resolve.ClassifiedSpan{
			Span: s,
			Role: r.classifier.Classify(s, width),
		})
	}

	drafts, next := r.resolver.ResolveImage(ctx, in, width, height, classified, dc)
	return drafts, next, nil
}

// discoverImages lists image files in dir in lexical order. This order is
// discovery order only; chronology is settled by the dedup pass.
func discoverImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read input dir: %w", err)
	}
	var images []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			images = append(images, filepath.Join(dir, e.Name()))
		}
	}
	return images, nil
}
