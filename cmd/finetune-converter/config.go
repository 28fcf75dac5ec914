package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/theimaginaryfoundation/emotion-diary/diary/finetune"
)

const (
	modeJSONL    = "jsonl"
	modeFinetune = "finetune"
)

type Config struct {
	Mode       string
	InputPath  string
	OutputPath string
	Format     finetune.Format
	ArrayField string
	Overwrite  bool
	Preview    int
}

func (c Config) Validate() error {
	switch c.Mode {
	case modeJSONL, modeFinetune:
	default:
		return fmt.Errorf("invalid -mode %q (want %s or %s)", c.Mode, modeJSONL, modeFinetune)
	}
	if c.InputPath == "" {
		return fmt.Errorf("missing -in")
	}
	if c.OutputPath == "" {
		return fmt.Errorf("missing -out")
	}
	if c.InputPath == c.OutputPath {
		return fmt.Errorf("-in and -out must differ")
	}
	if c.Preview < 0 {
		return fmt.Errorf("-preview must be >= 0")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Mode:      modeFinetune,
		InputPath: "output.jsonl",
		Format:    finetune.FormatOpenAI,
		Preview:   2,
	}
}

// defaultOutputPath names the output after the input's directory and the chosen conversion.
func defaultOutputPath(cfg Config) string {
	dir := filepath.Dir(cfg.InputPath)
	if cfg.Mode == modeJSONL {
		base := strings.TrimSuffix(filepath.Base(cfg.InputPath), filepath.Ext(cfg.InputPath))
		return filepath.Join(dir, base+".jsonl")
	}
	return filepath.Join(dir, "finetune_"+string(cfg.Format)+".jsonl")
}

func parseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := defaultConfig()
	format := string(cfg.Format)

	fs.SetOutput(os.Stderr)

	fs.StringVar(&cfg.Mode, "mode", cfg.Mode, "Conversion: jsonl (JSON document to JSONL) or finetune (dialogue JSONL to training samples)")
	fs.StringVar(&cfg.InputPath, "in", cfg.InputPath, "Input file")
	fs.StringVar(&cfg.OutputPath, "out", "", "Output JSONL file (default derived from -in and -mode/-format)")
	fs.StringVar(&format, "format", format, "Sample layout for -mode finetune: openai, alpaca, conversation, multi_turn")
	fs.StringVar(&cfg.ArrayField, "array-field", "", "For -mode jsonl: name of the record array when the top-level JSON is an object")
	fs.BoolVar(&cfg.Overwrite, "overwrite", false, "Overwrite an existing output file")
	fs.IntVar(&cfg.Preview, "preview", cfg.Preview, "Print this many output samples after converting (0 disables)")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage:\n  %s [flags]\n\nFlags:\n", filepath.Base(os.Args[0]))
		fs.PrintDefaults()
		fmt.Fprintln(fs.Output(), "\nExamples:")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/finetune-converter -mode jsonl -in data/counsel.json -out output.jsonl")
		fmt.Fprintln(fs.Output(), "  go run ./cmd/finetune-converter -in output.jsonl -format multi_turn -overwrite")
	}

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	f, err := finetune.ParseFormat(format)
	if err != nil {
		return Config{}, err
	}
	cfg.Format = f
	cfg.Mode = strings.ToLower(strings.TrimSpace(cfg.Mode))
	cfg.InputPath = filepath.Clean(cfg.InputPath)
	if cfg.OutputPath == "" {
		cfg.OutputPath = defaultOutputPath(cfg)
	}
	cfg.OutputPath = filepath.Clean(cfg.OutputPath)
	return cfg, nil
}
