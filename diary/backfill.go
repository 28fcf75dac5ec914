package diary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// DefaultConcurrency is how many days Backfill generates at once.
const DefaultConcurrency = 4

// BackfillRequest asks for a diary for every day of an export.
type BackfillRequest struct {
	Export string

	// From and To bound the days, inclusive. A zero Date leaves that side open.
	From Date
	To   Date

	Extract         ExtractOptions
	SkipAutoSummary bool
	Concurrency     int
}

// BackfillResult holds the generated diaries in date order and the days that had nothing to write about.
type BackfillResult struct {
	Diaries []Result `json:"diaries"`
	Skipped []string `json:"skipped,omitempty"`
}

// Backfill runs Generate for each day of req.Export within [From, To], up to Concurrency at a time.
// Days whose block holds no usable utterances are skipped. Any other failure cancels the
// remaining days and is returned.
func Backfill(ctx context.Context, w Writer, req BackfillRequest, logger *slog.Logger) (BackfillResult, error) {
	if w == nil {
		return BackfillResult{}, errors.New("Backfill: writer is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if !req.From.IsZero() && !req.To.IsZero() && req.From.Compare(req.To) > 0 {
		return BackfillResult{}, fmt.Errorf("Backfill: from %s is after to %s", req.From, req.To)
	}

	var days []Date
	for _, d := range ExportDays(req.Export) {
		if !req.From.IsZero() && d.Compare(req.From) < 0 {
			continue
		}
		if !req.To.IsZero() && d.Compare(req.To) > 0 {
			continue
		}
		days = append(days, d)
	}
	if len(days) == 0 {
		return BackfillResult{Diaries: []Result{}}, ErrMissingInput
	}

	var (
		mu  sync.Mutex
		out BackfillResult
	)
	err := forEachConcurrent(ctx, req.Concurrency, days, func(ctx context.Context, day Date) error {
		res, err := Generate(ctx, w, Request{
			Date:            day,
			Export:          req.Export,
			Extract:         req.Extract,
			SkipAutoSummary: req.SkipAutoSummary,
		}, logger)
		mu.Lock()
		defer mu.Unlock()
		if errors.Is(err, ErrMissingInput) {
			logger.Info("no conversation for day; skipped", "date", day.String())
			out.Skipped = append(out.Skipped, day.String())
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: %w", day, err)
		}
		out.Diaries = append(out.Diaries, res)
		return nil
	})
	sort.Slice(out.Diaries, func(i, j int) bool { return out.Diaries[i].Date < out.Diaries[j].Date })
	sort.Strings(out.Skipped)
	if out.Diaries == nil {
		out.Diaries = []Result{}
	}
	if err != nil {
		return out, fmt.Errorf("Backfill: %w", err)
	}
	return out, nil
}

// forEachConcurrent calls fn for every item with at most concurrency calls in flight.
// The first error cancels the context passed to the remaining calls.
func forEachConcurrent[T any](ctx context.Context, concurrency int, items []T, fn func(context.Context, T) error) error {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, concurrency)
	errCh := make(chan error, len(items))

	var wg sync.WaitGroup
	for _, item := range items {
		wg.Add(1)
		go func() {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			if err := fn(ctx, item); err != nil {
				errCh <- err
				cancel()
			}
		}()
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return parent.Err()
}
