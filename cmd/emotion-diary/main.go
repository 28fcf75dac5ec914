package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/theimaginaryfoundation/emotion-diary/diary"
	"github.com/theimaginaryfoundation/emotion-diary/diary/fileutils"
	"github.com/theimaginaryfoundation/emotion-diary/diary/provider"
	"github.com/theimaginaryfoundation/emotion-diary/diary/store"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitUsage   = 2
)

func main() {
	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(exitUsage)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(exitUsage)
	}
	if err := diary.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(exitUsage)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, cfg, nil, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one CLI invocation. A nil w builds the OpenAI writer from cfg.
func run(ctx context.Context, cfg Config, w diary.Writer, stdout, stderr io.Writer) int {
	level := slog.LevelWarn
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	day, err := resolveDate(cfg)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		return exitUsage
	}

	export := ""
	if cfg.ExportPath != "" {
		b, err := os.ReadFile(cfg.ExportPath)
		if err != nil {
			fmt.Fprintln(stderr, fmt.Errorf("read -in: %w", err).Error())
			return exitUsage
		}
		export = diary.DecodeExport(b)
	}

	searchLog := cfg.SearchLog
	if cfg.SearchLogFile != "" {
		b, err := os.ReadFile(cfg.SearchLogFile)
		if err != nil {
			fmt.Fprintln(stderr, fmt.Errorf("read -search-log-file: %w", err).Error())
			return exitUsage
		}
		searchLog = diary.DecodeExport(b)
	}

	if cfg.ExtractOnly {
		utterances := diary.ExtractDayWithOptions(export, day.Label(), cfg.ExtractOptions())
		if len(utterances) == 0 {
			fmt.Fprintf(stderr, "no conversation found for %s\n", day.Label())
		}
		out := extraction{Date: day.String(), DateLabel: day.Label(), Utterances: utterances}
		if err := emit(cfg, out, strings.Join(utterances, "\n"), stdout); err != nil {
			fmt.Fprintln(stderr, err.Error())
			return exitRuntime
		}
		fmt.Fprintf(stderr, "date=%s utterances=%d\n", day, len(utterances))
		return exitOK
	}

	if w == nil {
		w, err = newOpenAIWriter(cfg, logger)
		if err != nil {
			fmt.Fprintln(stderr, err.Error())
			return exitUsage
		}
	}

	if cfg.Backfill {
		return runBackfill(ctx, cfg, w, export, logger, stdout, stderr)
	}

	res, err := diary.Generate(ctx, w, diary.Request{
		Date:            day,
		Export:          export,
		SearchLog:       searchLog,
		Summary:         cfg.Summary,
		Extract:         cfg.ExtractOptions(),
		SkipAutoSummary: cfg.NoAutoSummary,
	}, logger)
	if err != nil {
		var mre *diary.MalformedResponseError
		switch {
		case errors.Is(err, diary.ErrMissingInput):
			if export != "" && len(res.Utterances) == 0 {
				fmt.Fprintf(stderr, "no conversation found for %s\n", day.Label())
			}
			fmt.Fprintln(stderr, err.Error())
			return exitUsage
		case errors.As(err, &mre):
			fmt.Fprintln(stderr, err.Error())
			fmt.Fprintf(stderr, "raw response:\n%s\n", mre.Raw)
			return exitRuntime
		default:
			fmt.Fprintln(stderr, err.Error())
			return exitRuntime
		}
	}
	if res.SummaryError != "" {
		fmt.Fprintln(stderr, "automatic summary failed; used the manual summary instead")
	}

	if cfg.DBPath != "" {
		if err := saveEntry(ctx, cfg.DBPath, res); err != nil {
			fmt.Fprintln(stderr, err.Error())
			return exitRuntime
		}
	}

	if err := emit(cfg, res, renderText(res), stdout); err != nil {
		fmt.Fprintln(stderr, err.Error())
		return exitRuntime
	}

	dest := cfg.OutputPath
	if dest == "" {
		dest = "-"
	}
	fmt.Fprintf(stderr, "date=%s utterances=%d auto_summary=%t out=%s\n", res.Date, len(res.Utterances), res.AutoSummary != "", dest)
	return exitOK
}

func runBackfill(ctx context.Context, cfg Config, w diary.Writer, export string, logger *slog.Logger, stdout, stderr io.Writer) int {
	req := diary.BackfillRequest{
		Export:          export,
		Extract:         cfg.ExtractOptions(),
		SkipAutoSummary: cfg.NoAutoSummary,
		Concurrency:     cfg.Concurrency,
	}
	// Validate already checked both dates.
	if cfg.From != "" {
		req.From, _ = diary.ParseDate(cfg.From)
	}
	if cfg.To != "" {
		req.To, _ = diary.ParseDate(cfg.To)
	}

	out, err := diary.Backfill(ctx, w, req, logger)
	if err != nil {
		fmt.Fprintln(stderr, err.Error())
		var mre *diary.MalformedResponseError
		if errors.As(err, &mre) {
			fmt.Fprintf(stderr, "raw response:\n%s\n", mre.Raw)
		}
		if errors.Is(err, diary.ErrMissingInput) {
			return exitUsage
		}
		if len(out.Diaries) == 0 {
			return exitRuntime
		}
	}

	if cfg.DBPath != "" {
		for _, res := range out.Diaries {
			if err := saveEntry(ctx, cfg.DBPath, res); err != nil {
				fmt.Fprintln(stderr, err.Error())
				return exitRuntime
			}
		}
	}

	texts := make([]string, 0, len(out.Diaries))
	for _, res := range out.Diaries {
		texts = append(texts, renderText(res))
	}
	if err := emit(cfg, out, strings.Join(texts, "\n\n"), stdout); err != nil {
		fmt.Fprintln(stderr, err.Error())
		return exitRuntime
	}

	fmt.Fprintf(stderr, "diaries=%d skipped=%d\n", len(out.Diaries), len(out.Skipped))
	if err != nil {
		return exitRuntime
	}
	return exitOK
}

type extraction struct {
	Date       string   `json:"date"`
	DateLabel  string   `json:"date_label"`
	Utterances []string `json:"utterances"`
}

func resolveDate(cfg Config) (diary.Date, error) {
	if cfg.Date != "" {
		return diary.ParseDate(cfg.Date)
	}
	loc, err := diary.ResolveLocation(cfg.Timezone)
	if err != nil {
		return diary.Date{}, err
	}
	return diary.Today(loc), nil
}

func newOpenAIWriter(cfg Config, logger *slog.Logger) (*provider.Writer, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, errors.New("missing OPENAI_API_KEY (or pass -api-key)")
	}
	client := provider.NewClient(apiKey)
	return provider.NewWriter(&client, provider.WriterOptions{
		SummaryModel: cfg.SummaryModel,
		DiaryModel:   cfg.DiaryModel,
		Timeout:      cfg.Timeout,
		Logger:       logger,
	})
}

func saveEntry(ctx context.Context, path string, res diary.Result) error {
	db, err := store.Open(path)
	if err != nil {
		return fmt.Errorf("open -db: %w", err)
	}
	defer db.Close()
	if _, err := db.Save(ctx, store.EntryFromResult(res)); err != nil {
		return fmt.Errorf("save diary: %w", err)
	}
	return nil
}

// emit writes v as JSON, or text when -format text, to -out or stdout.
func emit(cfg Config, v any, text string, stdout io.Writer) error {
	if cfg.Format == formatText {
		body := text + "\n"
		if cfg.OutputPath == "" {
			_, err := io.WriteString(stdout, body)
			return err
		}
		if !cfg.Overwrite && fileutils.FileExists(cfg.OutputPath) {
			return fmt.Errorf("write %s: %w", cfg.OutputPath, fileutils.ErrExists)
		}
		return fileutils.WriteFileAtomicSameDir(cfg.OutputPath, []byte(body), 0o644)
	}

	if cfg.OutputPath == "" {
		b, err := fileutils.MarshalJSON(v, cfg.Pretty)
		if err != nil {
			return err
		}
		_, err = stdout.Write(append(b, '\n'))
		return err
	}
	return fileutils.WriteJSONFileAtomic(cfg.OutputPath, v, cfg.Pretty, cfg.Overwrite)
}

func renderText(res diary.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s 감성 일기\n", res.DateLabel)
	for _, s := range res.Diary.Sections() {
		fmt.Fprintf(&b, "\n%s\n%s\n", s.Title, strings.TrimSpace(s.Body))
	}
	return strings.TrimRight(b.String(), "\n")
}
