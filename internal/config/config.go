// Package config loads runtime settings from CHATPARSE_-prefixed
// environment variables with sensible defaults for a local batch run.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"golang.org/x/text/language"

	"github.com/pochy/chat-screenshot-parser/internal/layout"
)

// Config holds all application configuration.
type Config struct {
	Extract    ExtractConfig
	Recognizer RecognizerConfig
	Dedup      DedupConfig
	Log        LogConfig
}

// ExtractConfig holds batch extraction settings.
type ExtractConfig struct {
	InputDir   string  // directory of source screenshots
	RawStream  string  // append-only raw record stream (JSONL)
	Checkpoint string  // processed-image checkpoint file (JSON)
	MaxImages  int     // stop after N newly processed images; 0 = unlimited
	TZOffset   string  // UTC offset stamped on parsed timestamps, e.g. "+09:00"
	CenterBand float64 // center-band half-width as a fraction of image width; 0 disables
	CropMargin float64 // pixel padding around right-party crops
}

// RecognizerConfig selects trained data per recognizer role and the language
// tags written to records.
type RecognizerConfig struct {
	PrimaryLangs   []string // left-party / whole-image engine (e.g. chi_sim)
	SecondaryLangs []string // right-party crop engine (e.g. jpn)
	LangLeft       string   // BCP-47 tag for party B records
	LangRight      string   // BCP-47 tag for party A records
}

// DedupConfig tunes the deduplication pass.
type DedupConfig struct {
	CanonicalStream string  // deduplicated output stream (JSONL)
	Threshold       float64 // Jaccard similarity threshold
	Window          int     // recently-kept comparison window
	MinNearLen      int     // normalized length at or below which the near tier is skipped
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string
}

// Load reads configuration from environment variables with the CHATPARSE_
// prefix.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CHATPARSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("extract.input_dir", "./screenshots")
	v.SetDefault("extract.raw_stream", "./output/conversations.jsonl")
	v.SetDefault("extract.checkpoint", "./output/checkpoint.json")
	v.SetDefault("extract.max_images", 0)
	v.SetDefault("extract.tz_offset", "+09:00")
	v.SetDefault("extract.center_band", layout.DefaultCenterBand)
	v.SetDefault("extract.crop_margin", 10)

	v.SetDefault("recognizer.primary_langs", "chi_sim")
	v.SetDefault("recognizer.secondary_langs", "jpn")
	v.SetDefault("recognizer.lang_left", "zh")
	v.SetDefault("recognizer.lang_right", "ja")

	v.SetDefault("dedup.canonical_stream", "./output/deduped.jsonl")
	v.SetDefault("dedup.threshold", 0.9)
	v.SetDefault("dedup.window", 200)
	v.SetDefault("dedup.min_near_len", 10)

	v.SetDefault("log.level", "info")

	envBindings := map[string]string{
		"extract.input_dir":          "CHATPARSE_EXTRACT_INPUT_DIR",
		"extract.raw_stream":         "CHATPARSE_EXTRACT_RAW_STREAM",
		"extract.checkpoint":         "CHATPARSE_EXTRACT_CHECKPOINT",
		"extract.max_images":         "CHATPARSE_EXTRACT_MAX_IMAGES",
		"extract.tz_offset":          "CHATPARSE_EXTRACT_TZ_OFFSET",
		"extract.center_band":        "CHATPARSE_EXTRACT_CENTER_BAND",
		"extract.crop_margin":        "CHATPARSE_EXTRACT_CROP_MARGIN",
		"recognizer.primary_langs":   "CHATPARSE_RECOGNIZER_PRIMARY_LANGS",
		"recognizer.secondary_langs": "CHATPARSE_RECOGNIZER_SECONDARY_LANGS",
		"recognizer.lang_left":       "CHATPARSE_RECOGNIZER_LANG_LEFT",
		"recognizer.lang_right":      "CHATPARSE_RECOGNIZER_LANG_RIGHT",
		"dedup.canonical_stream":     "CHATPARSE_DEDUP_CANONICAL_STREAM",
		"dedup.threshold":            "CHATPARSE_DEDUP_THRESHOLD",
		"dedup.window":               "CHATPARSE_DEDUP_WINDOW",
		"dedup.min_near_len":         "CHATPARSE_DEDUP_MIN_NEAR_LEN",
		"log.level":                  "CHATPARSE_LOG_LEVEL",
	}
	for key, env := range envBindings {
		_ = v.BindEnv(key, env)
	}

	cfg := &Config{
		Extract: ExtractConfig{
			InputDir:   v.GetString("extract.input_dir"),
			RawStream:  v.GetString("extract.raw_stream"),
			Checkpoint: v.GetString("extract.checkpoint"),
			MaxImages:  v.GetInt("extract.max_images"),
			TZOffset:   v.GetString("extract.tz_offset"),
			CenterBand: v.GetFloat64("extract.center_band"),
			CropMargin: v.GetFloat64("extract.crop_margin"),
		},
		Recognizer: RecognizerConfig{
			PrimaryLangs:   splitList(v.GetString("recognizer.primary_langs")),
			SecondaryLangs: splitList(v.GetString("recognizer.secondary_langs")),
			LangLeft:       v.GetString("recognizer.lang_left"),
			LangRight:      v.GetString("recognizer.lang_right"),
		},
		Dedup: DedupConfig{
			CanonicalStream: v.GetString("dedup.canonical_stream"),
			Threshold:       v.GetFloat64("dedup.threshold"),
			Window:          v.GetInt("dedup.window"),
			MinNearLen:      v.GetInt("dedup.min_near_len"),
		},
		Log: LogConfig{
			Level: v.GetString("log.level"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	for _, tag := range []string{c.Recognizer.LangLeft, c.Recognizer.LangRight} {
		if _, err := language.Parse(tag); err != nil {
			return fmt.Errorf("invalid language tag %q: %w", tag, err)
		}
	}
	if len(c.Recognizer.PrimaryLangs) == 0 || len(c.Recognizer.SecondaryLangs) == 0 {
		return fmt.Errorf("recognizer languages must not be empty")
	}
	if c.Dedup.Threshold <= 0 || c.Dedup.Threshold > 1 {
		return fmt.Errorf("dedup threshold %v out of range (0,1]", c.Dedup.Threshold)
	}
	if c.Dedup.MinNearLen < 0 {
		return fmt.Errorf("dedup min near length %d must not be negative", c.Dedup.MinNearLen)
	}
	// Zero disables the center band (midpoint-only classification).
	if c.Extract.CenterBand < 0 || c.Extract.CenterBand >= 0.5 {
		return fmt.Errorf("center band %v out of range [0,0.5)", c.Extract.CenterBand)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
