package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/theimaginaryfoundation/emotion-diary/diary"
	"github.com/theimaginaryfoundation/emotion-diary/diary/provider"
	"github.com/theimaginaryfoundation/emotion-diary/diary/store"
)

func main() {
	// Loaded first so .env values reach the env-backed flag defaults.
	if err := diary.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	cfg, err := parseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		flag.CommandLine.Usage()
		os.Exit(2)
	}

	logger := setupLogging(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, logger); err != nil {
		logger.Error("diary-server stopped", "error", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg Config, logger *slog.Logger) error {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return errors.New("missing OPENAI_API_KEY (or pass -api-key)")
	}
	client := provider.NewClient(apiKey)
	w, err := provider.NewWriter(&client, provider.WriterOptions{
		SummaryModel: cfg.SummaryModel,
		DiaryModel:   cfg.DiaryModel,
		Timeout:      cfg.Timeout,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	var db *store.DB
	if cfg.DBPath != "" {
		db, err = store.Open(cfg.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()
		logger.Info("database opened", "path", cfg.DBPath)
	} else {
		logger.Warn("no database configured; diaries will not be stored")
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewServer(cfg, w, db, logger),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      writeTimeout(w.Timeout()),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("diary-server listening",
			"addr", cfg.Addr,
			"summary_model", cfg.SummaryModel,
			"diary_model", cfg.DiaryModel,
			"auth", cfg.APIToken != "",
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// writeTimeout covers the two model calls a diary request makes, plus slack for the rest.
func writeTimeout(perCall time.Duration) time.Duration {
	return 2*perCall + 30*time.Second
}

func setupLogging(level string) *slog.Logger {
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
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}
