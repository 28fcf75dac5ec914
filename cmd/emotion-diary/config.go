package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/theimaginaryfoundation/emotion-diary/diary"
)

const (
	formatJSON = "json"
	formatText = "text"
)

type Config struct {
	ExportPath    string
	Date          string
	SearchLog     string
	SearchLogFile string
	Summary       string
	OutputPath    string
	Format        string
	Pretty        bool
	Overwrite     bool
	ExtractOnly   bool
	NoAutoSummary bool
	APIKey        string
	DBPath        string
	ConfigPath    string
	Verbose       bool
	Backfill      bool
	From          string
	To            string
	Concurrency   int

	// A -config file fills these unless the matching flag was given.
	Timezone      string
	SummaryModel  string
	DiaryModel    string
	Timeout       time.Duration
	MaxUtterances int
	KeepUnmatched bool
	NoiseMarkers  []string
}

func (c Config) Validate() error {
	if c.Format != formatJSON && c.Format != formatText {
		return fmt.Errorf("invalid -format %q (want json or text)", c.Format)
	}
	if c.Date != "" {
		if _, err := diary.ParseDate(c.Date); err != nil {
			return fmt.Errorf("invalid -date: %w", err)
		}
	}
	if c.SearchLog != "" && c.SearchLogFile != "" {
		return errors.New("use only one of -search-log and -search-log-file")
	}
	if c.ExtractOnly && c.ExportPath == "" {
		return errors.New("-extract-only requires -in")
	}
	if c.Backfill {
		if c.ExportPath == "" {
			return errors.New("-backfill requires -in")
		}
		if c.ExtractOnly || c.Date != "" || c.Summary != "" || c.SearchLog != "" || c.SearchLogFile != "" {
			return errors.New("-backfill cannot be combined with -extract-only, -date, -summary or search logs")
		}
		if c.Concurrency <= 0 {
			return errors.New("concurrency must be > 0")
		}
	}
	for _, f := range []struct{ name, value string }{{"-from", c.From}, {"-to", c.To}} {
		if f.value == "" {
			continue
		}
		if !c.Backfill {
			return fmt.Errorf("%s requires -backfill", f.name)
		}
		if _, err := diary.ParseDate(f.value); err != nil {
			return fmt.Errorf("invalid %s: %w", f.name, err)
		}
	}
	if c.MaxUtterances < 0 {
		return errors.New("max-utterances must be >= 0")
	}
	if c.Timeout < 0 {
		return errors.New("timeout must be >= 0")
	}
	if _, err := diary.ResolveLocation(c.Timezone); err != nil {
		return err
	}
	return nil
}

func (c Config) ExtractOptions() diary.ExtractOptions {
	return diary.ExtractOptions{
		NoiseMarkers:  c.NoiseMarkers,
		MaxUtterances: c.MaxUtterances,
		KeepUnmatched: c.KeepUnmatched,
	}
}

func defaultConfig() Config {
	cfg := Config{Format: formatJSON, Concurrency: diary.DefaultConcurrency}
	applySettings(&cfg, diary.DefaultSettings(), nil)
	return cfg
}

// applySettings copies s into cfg for every setting whose flag is not in explicit.
func applySettings(cfg *Config, s diary.Settings, explicit map[string]bool) {
	if !explicit["tz"] {
		cfg.Timezone = s.Timezone
	}
	if !explicit["summary-model"] {
		cfg.SummaryModel = s.SummaryModel
	}
	if !explicit["diary-model"] {
		cfg.DiaryModel = s.DiaryModel
	}
	if !explicit["timeout"] {
		cfg.Timeout = s.Timeout()
	}
	if !explicit["max-utterances"] {
		cfg.MaxUtterances = s.MaxUtterances
	}
	if !explicit["keep-unmatched"] {
		cfg.KeepUnmatched = s.KeepUnmatched
	}
	cfg.NoiseMarkers = s.NoiseMarkers
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()

	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.ExportPath, "in", "", "Path to a KakaoTalk chat export (.txt); optional")
	fs.StringVar(&cfg.Date, "date", "", "Day to write about, YYYY-MM-DD (default: today in -tz)")
	fs.StringVar(&cfg.SearchLog, "search-log", "", "Today's search history as free text")
	fs.StringVar(&cfg.SearchLogFile, "search-log-file", "", "Read today's search history from this file")
	fs.StringVar(&cfg.Summary, "summary", "", "Your own summary of the day (replaced by the automatic summary when one is produced)")
	fs.StringVar(&cfg.OutputPath, "out", "", "Write the result to this file instead of stdout")
	fs.StringVar(&cfg.Format, "format", cfg.Format, "Output format: json or text")
	fs.BoolVar(&cfg.Pretty, "pretty", false, "Pretty-print JSON output")
	fs.BoolVar(&cfg.Overwrite, "overwrite", false, "Overwrite an existing -out file")
	fs.BoolVar(&cfg.ExtractOnly, "extract-only", false, "Only extract the day's utterances; no model calls")
	fs.BoolVar(&cfg.NoAutoSummary, "no-auto-summary", false, "Skip the automatic summary step")
	fs.StringVar(&cfg.APIKey, "api-key", "", "OpenAI API key (defaults to OPENAI_API_KEY)")
	fs.StringVar(&cfg.DBPath, "db", "", "Also store the diary in this SQLite database")
	fs.StringVar(&cfg.ConfigPath, "config", "", "TOML settings file")
	fs.BoolVar(&cfg.Verbose, "v", false, "Verbose logging")
	fs.BoolVar(&cfg.Backfill, "backfill", false, "Write a diary for every day found in -in")
	fs.StringVar(&cfg.From, "from", "", "With -backfill: first day to include, YYYY-MM-DD")
	fs.StringVar(&cfg.To, "to", "", "With -backfill: last day to include, YYYY-MM-DD")
	fs.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "With -backfill: days generated in parallel")

	fs.StringVar(&cfg.Timezone, "tz", cfg.Timezone, "IANA timezone deciding which day is today")
	fs.StringVar(&cfg.SummaryModel, "summary-model", cfg.SummaryModel, "Model for the automatic summary")
	fs.StringVar(&cfg.DiaryModel, "diary-model", cfg.DiaryModel, "Model for the diary")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Timeout per model call")
	fs.IntVar(&cfg.MaxUtterances, "max-utterances", cfg.MaxUtterances, "Keep at most this many of the day's latest messages")
	fs.BoolVar(&cfg.KeepUnmatched, "keep-unmatched", cfg.KeepUnmatched, "Keep lines that match no message format as raw utterances")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]\n\nFlags:\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExamples:")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/emotion-diary -in KakaoTalk_chat.txt -date 2025-07-12 -format text")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/emotion-diary -in KakaoTalk_chat.txt -extract-only")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/emotion-diary -in KakaoTalk_chat.txt -backfill -from 2025-07-01 -db data/diary.db")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/emotion-diary -search-log \"병원 예약\" -summary \"발표 준비\" -db data/diary.db")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if cfg.ConfigPath != "" {
		s, err := diary.LoadSettings(cfg.ConfigPath, diary.DefaultSettings())
		if err != nil {
			return Config{}, err
		}
		explicit := make(map[string]bool)
		fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
		applySettings(&cfg, s, explicit)
	}

	cfg.Format = strings.ToLower(strings.TrimSpace(cfg.Format))
	if cfg.ExportPath != "" {
		cfg.ExportPath = filepath.Clean(cfg.ExportPath)
	}
	if cfg.OutputPath != "" {
		cfg.OutputPath = filepath.Clean(cfg.OutputPath)
	}
	return cfg, nil
}
