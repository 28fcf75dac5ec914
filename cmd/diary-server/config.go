package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/theimaginaryfoundation/emotion-diary/diary"
)

type Config struct {
	Addr           string
	DBPath         string
	ConfigPath     string
	APIKey         string
	APIToken       string
	LogLevel       string
	MaxUploadBytes int64
	NoAutoSummary  bool

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
	if c.Addr == "" {
		return errors.New("missing -addr")
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("max-upload-mb must be > 0")
	}
	if c.MaxUtterances < 0 {
		return errors.New("max-utterances must be >= 0")
	}
	if c.Timeout < 0 {
		return errors.New("timeout must be >= 0")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid -log-level %q", c.LogLevel)
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
	cfg := Config{
		Addr:           envStr("DIARY_ADDR", ":8760"),
		DBPath:         envStr("DIARY_DB", filepath.FromSlash("data/diary.db")),
		ConfigPath:     envStr("DIARY_CONFIG", ""),
		APIToken:       envStr("DIARY_API_TOKEN", ""),
		LogLevel:       envStr("LOG_LEVEL", "info"),
		MaxUploadBytes: int64(envInt("DIARY_MAX_UPLOAD_MB", 20)) << 20,
	}
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
	uploadMB := cfg.MaxUploadBytes >> 20

	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "Listen address (env DIARY_ADDR)")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database for generated diaries; empty disables storage (env DIARY_DB)")
	fs.StringVar(&cfg.ConfigPath, "config", cfg.ConfigPath, "TOML settings file (env DIARY_CONFIG)")
	fs.StringVar(&cfg.APIKey, "api-key", "", "OpenAI API key (defaults to OPENAI_API_KEY)")
	fs.StringVar(&cfg.APIToken, "api-token", cfg.APIToken, "Require this bearer token on /api/v1 (env DIARY_API_TOKEN)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error (env LOG_LEVEL)")
	fs.Int64Var(&uploadMB, "max-upload-mb", uploadMB, "Largest accepted upload in MiB (env DIARY_MAX_UPLOAD_MB)")
	fs.BoolVar(&cfg.NoAutoSummary, "no-auto-summary", false, "Skip the automatic summary step")

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
		fmt.Fprintln(fs.Output(), "  go run ./cmd/diary-server -addr :8760 -db data/diary.db")
		fmt.Fprintln(fs.Output(), "  curl -F export=@KakaoTalk.txt -F date=2025-07-12 localhost:8760/api/v1/diary")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.MaxUploadBytes = uploadMB << 20

	if cfg.ConfigPath != "" {
		s, err := diary.LoadSettings(cfg.ConfigPath, diary.DefaultSettings())
		if err != nil {
			return Config{}, err
		}
		explicit := make(map[string]bool)
		fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
		applySettings(&cfg, s, explicit)
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	return cfg, nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
