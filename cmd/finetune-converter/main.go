package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/theimaginaryfoundation/emotion-diary/diary/finetune"
)

func main() {
	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cfg.Mode {
	case modeJSONL:
		res, err := finetune.JSONToJSONL(ctx, cfg.InputPath, cfg.OutputPath, finetune.JSONLOptions{
			ArrayField: cfg.ArrayField,
			Overwrite:  cfg.Overwrite,
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		fmt.Fprintf(os.Stdout, "records_written=%d bytes_written=%d out=%s\n", res.Records, res.BytesWritten, cfg.OutputPath)
	case modeFinetune:
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		res, err := finetune.Convert(ctx, cfg.InputPath, cfg.OutputPath, cfg.Format, finetune.ConvertOptions{
			Overwrite: cfg.Overwrite,
			Logger:    logger,
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		fmt.Fprintf(os.Stdout, "records=%d samples=%d skipped=%d format=%s out=%s\n", res.Records, res.Samples, res.Skipped, cfg.Format, cfg.OutputPath)
	}

	if cfg.Preview > 0 {
		if err := printPreview(cfg.OutputPath, cfg.Preview); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
	}
}

func printPreview(path string, n int) error {
	samples, err := finetune.Preview(path, n)
	if err != nil {
		return fmt.Errorf("preview: %w", err)
	}
	for i, s := range samples {
		var buf bytes.Buffer
		if err := json.Indent(&buf, s, "", "  "); err != nil {
			return fmt.Errorf("preview sample %d: %w", i+1, err)
		}
		fmt.Fprintf(os.Stderr, "\nSample %d:\n%s\n", i+1, buf.String())
	}
	return nil
}
