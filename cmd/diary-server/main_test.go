package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/theimaginaryfoundation/emotion-diary/diary"
	"github.com/theimaginaryfoundation/emotion-diary/diary/provider"
)

func TestParseFlags_EnvDefaults(t *testing.T) {
	t.Setenv("DIARY_ADDR", "127.0.0.1:9000")
	t.Setenv("DIARY_DB", "")
	t.Setenv("DIARY_MAX_UPLOAD_MB", "5")
	t.Setenv("LOG_LEVEL", "DEBUG")

	fs := flag.NewFlagSet("diary-server", flag.ContinueOnError)
	cfg, err := parseFlags(fs, nil)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if cfg.Addr != "127.0.0.1:9000" {
		t.Fatalf("Addr=%q, want %q", cfg.Addr, "127.0.0.1:9000")
	}
	if cfg.DBPath != filepath.FromSlash("data/diary.db") {
		t.Fatalf("DBPath=%q, want default", cfg.DBPath)
	}
	if cfg.MaxUploadBytes != 5<<20 {
		t.Fatalf("MaxUploadBytes=%d, want %d", cfg.MaxUploadBytes, 5<<20)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel=%q, want %q", cfg.LogLevel, "debug")
	}
	if cfg.DiaryModel != diary.DefaultModel || cfg.Timezone != diary.DefaultTimezone {
		t.Fatalf("settings defaults not applied: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestParseFlags_ConfigFileYieldsToFlags(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "diary.toml")
	toml := "diary_model = \"gpt-4o\"\ntimeout_seconds = 90\nmax_utterances = 10\nnoise_markers = [\"[동영상]\"]\n"
	if err := os.WriteFile(path, []byte(toml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	fs := flag.NewFlagSet("diary-server", flag.ContinueOnError)
	cfg, err := parseFlags(fs, []string{"-config", path, "-max-utterances", "5", "-db", ""})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if cfg.DiaryModel != "gpt-4o" {
		t.Fatalf("DiaryModel=%q, want %q", cfg.DiaryModel, "gpt-4o")
	}
	if cfg.Timeout != 90*time.Second {
		t.Fatalf("Timeout=%s, want 1m30s", cfg.Timeout)
	}
	if cfg.MaxUtterances != 5 {
		t.Fatalf("MaxUtterances=%d, want 5", cfg.MaxUtterances)
	}
	if len(cfg.NoiseMarkers) != 1 || cfg.NoiseMarkers[0] != "[동영상]" {
		t.Fatalf("NoiseMarkers=%q, want [[동영상]]", cfg.NoiseMarkers)
	}
	if cfg.DBPath != "" {
		t.Fatalf("DBPath=%q, want storage disabled", cfg.DBPath)
	}
}

func TestParseFlags_UnknownConfigKey(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "diary.toml")
	if err := os.WriteFile(path, []byte("diary_modle = \"gpt-4o\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	fs := flag.NewFlagSet("diary-server", flag.ContinueOnError)
	if _, err := parseFlags(fs, []string{"-config", path}); err == nil {
		t.Fatalf("parseFlags error=nil, want unknown key error")
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	cases := map[string]func(*Config){
		"empty addr":     func(c *Config) { c.Addr = "" },
		"zero upload":    func(c *Config) { c.MaxUploadBytes = 0 },
		"negative limit": func(c *Config) { c.MaxUtterances = -1 },
		"negative wait":  func(c *Config) { c.Timeout = -time.Second },
		"bad log level":  func(c *Config) { c.LogLevel = "loud" },
		"unknown zone":   func(c *Config) { c.Timezone = "Mars/Olympus" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig()
			mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("Validate error=nil, want error")
			}
		})
	}
}

func TestWriteTimeoutFollowsEffectiveCallTimeout(t *testing.T) {
	t.Parallel()

	client := provider.NewClient("test-key")
	w, err := provider.NewWriter(&client, provider.WriterOptions{Timeout: 0})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if got, want := writeTimeout(w.Timeout()), 150*time.Second; got != want {
		t.Fatalf("writeTimeout=%s, want %s", got, want)
	}
}
