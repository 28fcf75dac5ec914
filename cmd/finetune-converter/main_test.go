package main

import (
	"flag"
	"io"
	"path/filepath"
	"testing"

	"github.com/theimaginaryfoundation/emotion-diary/diary/finetune"
)

func TestParseFlags_Defaults(t *testing.T) {
	t.Parallel()

	fs := flag.NewFlagSet("finetune-converter", flag.ContinueOnError)
	cfg, err := parseFlags(fs, nil)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if cfg.Mode != modeFinetune {
		t.Fatalf("Mode=%q, want %q", cfg.Mode, modeFinetune)
	}
	if cfg.Format != finetune.FormatOpenAI {
		t.Fatalf("Format=%q, want %q", cfg.Format, finetune.FormatOpenAI)
	}
	if cfg.OutputPath != "finetune_openai.jsonl" {
		t.Fatalf("OutputPath=%q, want %q", cfg.OutputPath, "finetune_openai.jsonl")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestParseFlags_Overrides(t *testing.T) {
	t.Parallel()

	fs := flag.NewFlagSet("finetune-converter", flag.ContinueOnError)
	cfg, err := parseFlags(fs, []string{
		"-mode", "JSONL",
		"-in", "data/counsel.json",
		"-array-field", "records",
		"-overwrite",
		"-preview", "0",
	})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if cfg.Mode != modeJSONL {
		t.Fatalf("Mode=%q, want %q", cfg.Mode, modeJSONL)
	}
	if want := filepath.Join("data", "counsel.jsonl"); cfg.OutputPath != want {
		t.Fatalf("OutputPath=%q, want %q", cfg.OutputPath, want)
	}
	if cfg.ArrayField != "records" || !cfg.Overwrite || cfg.Preview != 0 {
		t.Fatalf("cfg=%+v", cfg)
	}
}

func TestParseFlags_RejectsUnknownFormat(t *testing.T) {
	t.Parallel()

	fs := flag.NewFlagSet("finetune-converter", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	if _, err := parseFlags(fs, []string{"-format", "chatml"}); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	if err := (Config{}).Validate(); err == nil {
		t.Fatalf("expected error for empty config")
	}
	if err := (Config{Mode: modeJSONL, InputPath: "a.json", OutputPath: "a.json"}).Validate(); err == nil {
		t.Fatalf("expected error for identical paths")
	}
	if err := (Config{Mode: modeJSONL, InputPath: "a.json", OutputPath: "a.jsonl"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
