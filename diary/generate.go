package diary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/theimaginaryfoundation/emotion-diary/diary/fileutils"
)

// Writer is the completion service as the diary flow sees it.
// Implementations make exactly one blocking call per method and never retry.
type Writer interface {
	Summarize(ctx context.Context, transcript string) (DaySummary, error)
	WriteDiary(ctx context.Context, in DayInputs) (EmotionDiary, error)
}

// Request is everything needed to produce one day's diary.
type Request struct {
	Date Date

	// Export is the decoded chat export text. Empty means no chat was supplied.
	Export string

	SearchLog string

	// Summary is the user's own summary. An automatic summary, when produced, replaces it.
	Summary string

	Extract ExtractOptions

	// SkipAutoSummary disables the condensation step.
	SkipAutoSummary bool
}

// Result is a generated diary plus the inputs it was built from.
type Result struct {
	Date         string       `json:"date"`
	DateLabel    string       `json:"date_label"`
	Utterances   []string     `json:"utterances"`
	AutoSummary  string       `json:"auto_summary,omitempty"`
	SummaryError string       `json:"summary_error,omitempty"`
	Inputs       DayInputs    `json:"inputs"`
	Diary        EmotionDiary `json:"diary"`
}

// Generate extracts the day's transcript, condenses it when possible, and asks w for the diary.
//
// A failed condensation is logged and the manual summary is used instead. ErrMissingInput is
// returned, before any call to w, when transcript, search log and summary are all blank.
func Generate(ctx context.Context, w Writer, req Request, logger *slog.Logger) (Result, error) {
	if w == nil {
		return Result{}, errors.New("Generate: writer is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if req.Date.IsZero() {
		return Result{}, errors.New("Generate: date is required")
	}

	res := Result{
		Date:       req.Date.String(),
		DateLabel:  req.Date.Label(),
		Utterances: []string{},
	}
	if strings.TrimSpace(req.Export) != "" {
		res.Utterances = ExtractDayWithOptions(req.Export, res.DateLabel, req.Extract)
	}

	in := DayInputs{
		Transcript: JoinTranscript(res.Utterances),
		SearchLog:  strings.TrimSpace(req.SearchLog),
		Summary:    strings.TrimSpace(req.Summary),
	}
	res.Inputs = in
	if in.Empty() {
		return res, ErrMissingInput
	}

	if in.Transcript != "" && !req.SkipAutoSummary {
		sum, err := w.Summarize(ctx, in.Transcript)
		switch {
		case err != nil:
			attrs := []any{"date", res.Date, "error", err}
			var mre *MalformedResponseError
			if errors.As(err, &mre) {
				attrs = append(attrs, "raw", rawForLog(mre.Raw))
			}
			logger.Warn("auto summary failed; using manual summary", attrs...)
			res.SummaryError = err.Error()
		case strings.TrimSpace(sum.Summary) != "":
			res.AutoSummary = strings.TrimSpace(sum.Summary)
			in.Summary = res.AutoSummary
		}
	}
	res.Inputs = in

	d, err := w.WriteDiary(ctx, in)
	if err != nil {
		var mre *MalformedResponseError
		if errors.As(err, &mre) {
			logger.Error("diary response rejected", "date", res.Date, "raw", rawForLog(mre.Raw), "error", mre.Err)
		}
		return res, fmt.Errorf("Generate: write diary: %w", err)
	}
	res.Diary = d
	logger.Info("diary generated",
		"date", res.Date,
		"utterances", len(res.Utterances),
		"auto_summary", res.AutoSummary != "",
	)
	return res, nil
}

// rawLogLimit bounds how many bytes of a rejected reply reach the log.
const rawLogLimit = 1000

// rawForLog keeps a rejected reply on one log line and within rawLogLimit.
func rawForLog(raw string) string {
	return fileutils.Truncate(fileutils.SanitizeNewlines(raw), rawLogLimit)
}
