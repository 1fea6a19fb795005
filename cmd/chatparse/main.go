package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pochy/chat-screenshot-parser/internal/config"
	"github.com/pochy/chat-screenshot-parser/internal/dedup"
	"github.com/pochy/chat-screenshot-parser/internal/extract"
	"github.com/pochy/chat-screenshot-parser/internal/layout"
	"github.com/pochy/chat-screenshot-parser/internal/ocr"
	"github.com/pochy/chat-screenshot-parser/internal/ocr/tesseract"
	"github.com/pochy/chat-screenshot-parser/internal/record"
	"github.com/pochy/chat-screenshot-parser/internal/report"
	"github.com/pochy/chat-screenshot-parser/internal/resolve"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	setupLogging(cfg.Log.Level)

	switch os.Args[1] {
	case "extract":
		runExtract(cfg)
	case "dedupe":
		runDedupe(cfg)
	case "stats":
		runStats(cfg, os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func runExtract(cfg *config.Config) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	zone, err := resolve.FixedZone(cfg.Extract.TZOffset)
	if err != nil {
		slog.Error("invalid timezone offset", "offset", cfg.Extract.TZOffset, "error", err)
		os.Exit(1)
	}

	primary := tesseract.New(cfg.Recognizer.PrimaryLangs...)
	secondary := tesseract.New(cfg.Recognizer.SecondaryLangs...)
	for _, e := range []*tesseract.Engine{primary, secondary} {
		if err := e.Ping(ctx); err != nil {
			slog.Error("recognizer backend unavailable", "engine", e.Name(), "error", err)
			os.Exit(1)
		}
		slog.Info("recognizer ready", "engine", e.Name())
	}

	adapter := ocr.NewAdapter(primary, secondary, cfg.Extract.CropMargin, slog.Default())
	classifier := layout.Classifier{
		CenterBand: cfg.Extract.CenterBand,
		TimeLike:   resolve.TimeLike,
	}
	resolver := &resolve.Resolver{
		Refiner:   adapter,
		Zone:      zone,
		LangLeft:  cfg.Recognizer.LangLeft,
		LangRight: cfg.Recognizer.LangRight,
		Logger:    slog.Default(),
	}

	runner := extract.NewRunner(cfg.Extract, adapter, classifier, resolver, slog.Default())
	if _, err := runner.Run(ctx); err != nil {
		slog.Error("extraction failed", "error", err)
		os.Exit(1)
	}
}

func runDedupe(cfg *config.Config) {
	records, err := record.ReadStream(cfg.Extract.RawStream)
	if err != nil {
		slog.Error("read raw stream", "path", cfg.Extract.RawStream, "error", err)
		os.Exit(1)
	}

	engine := dedup.New(dedup.Options{
		Threshold:  cfg.Dedup.Threshold,
		Window:     cfg.Dedup.Window,
		MinNearLen: cfg.Dedup.MinNearLen,
	}, slog.Default())
	canonical, result := engine.Run(records)

	if err := record.WriteStream(cfg.Dedup.CanonicalStream, canonical); err != nil {
		slog.Error("write canonical stream", "path", cfg.Dedup.CanonicalStream, "error", err)
		os.Exit(1)
	}

	fmt.Printf("\n=== Dedup Summary ===\n")
	fmt.Printf("Input records: %d\n", result.Input)
	fmt.Printf("Empty dropped: %d\n", result.EmptyDropped)
	fmt.Printf("Exact removed: %d\n", result.ExactRemoved)
	fmt.Printf("Containment removed: %d\n", result.ContainmentRemoved)
	fmt.Printf("Near-duplicate removed: %d\n", result.NearRemoved)
	fmt.Printf("Survivors: %d\n", result.Survivors)
	fmt.Printf("Output: %s\n", cfg.Dedup.CanonicalStream)
}

func runStats(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	input := fs.String("input", cfg.Dedup.CanonicalStream, "record stream to analyze")
	_ = fs.Parse(args)

	records, err := record.ReadStream(*input)
	if err != nil {
		slog.Error("read stream", "path", *input, "error", err)
		os.Exit(1)
	}
	report.Print(os.Stdout, report.Compute(records))
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: chatparse <command>

commands:
  extract   convert screenshots into the raw record stream
  dedupe    deduplicate the raw stream into the canonical stream
  stats     print statistics over a record stream

configuration is read from CHATPARSE_* environment variables.
`)
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
