package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/responses"

	"github.com/theimaginaryfoundation/emotion-diary/diary"
)

const (
	summaryMaxOutputTokens = 400
	diaryMaxOutputTokens   = 2000
)

var (
	summarySchema = GenerateSchema[diary.DaySummary]()
	diarySchema   = GenerateSchema[diary.EmotionDiary]()
)

// WriterOptions configures Writer. Zero values fall back to diary defaults.
type WriterOptions struct {
	SummaryModel string
	DiaryModel   string
	Timeout      time.Duration
	Logger       *slog.Logger
}

// Writer implements diary.Writer over the OpenAI Responses API with strict JSON schema output.
type Writer struct {
	client       *openai.Client
	summaryModel string
	diaryModel   string
	timeout      time.Duration
	logger       *slog.Logger
}

var _ diary.Writer = (*Writer)(nil)

func NewWriter(client *openai.Client, opts WriterOptions) (*Writer, error) {
	if client == nil {
		return nil, errors.New("NewWriter: client is nil")
	}
	w := &Writer{
		client:       client,
		summaryModel: strings.TrimSpace(opts.SummaryModel),
		diaryModel:   strings.TrimSpace(opts.DiaryModel),
		timeout:      opts.Timeout,
		logger:       opts.Logger,
	}
	if w.summaryModel == "" {
		w.summaryModel = diary.DefaultModel
	}
	if w.diaryModel == "" {
		w.diaryModel = diary.DefaultModel
	}
	if w.timeout == 0 {
		w.timeout = diary.DefaultTimeoutSeconds * time.Second
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	return w, nil
}

// Timeout is the bound applied to each completion call after defaults.
func (w *Writer) Timeout() time.Duration {
	return w.timeout
}

// Summarize asks for a 2-3 sentence factual summary of the transcript.
func (w *Writer) Summarize(ctx context.Context, transcript string) (diary.DaySummary, error) {
	if strings.TrimSpace(transcript) == "" {
		return diary.DaySummary{}, errors.New("Summarize: transcript is empty")
	}
	params := w.params(w.summaryModel, "", diary.BuildSummaryPrompt(transcript), "DaySummary", summarySchema, summaryMaxOutputTokens)

	raw, err := w.complete(ctx, diary.StepSummary, params)
	if err != nil {
		return diary.DaySummary{}, err
	}
	out, err := diary.ParseDaySummary(raw)
	if err != nil {
		return diary.DaySummary{}, err
	}
	return out, nil
}

// WriteDiary asks for the five-section diary.
func (w *Writer) WriteDiary(ctx context.Context, in diary.DayInputs) (diary.EmotionDiary, error) {
	prompt, err := diary.BuildDiaryPrompt(in)
	if err != nil {
		return diary.EmotionDiary{}, err
	}
	params := w.params(w.diaryModel, diary.DiarySystemPrompt, prompt, "EmotionDiary", diarySchema, diaryMaxOutputTokens)

	raw, err := w.complete(ctx, diary.StepDiary, params)
	if err != nil {
		return diary.EmotionDiary{}, err
	}
	out, err := diary.ParseEmotionDiary(raw)
	if err != nil {
		return diary.EmotionDiary{}, err
	}
	return out, nil
}

func (w *Writer) params(model, instructions, input, name string, schema map[string]any, maxOut int64) responses.ResponseNewParams {
	params := responses.ResponseNewParams{
		Model:           model,
		MaxOutputTokens: openai.Int(maxOut),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(input, responses.EasyInputMessageRoleUser),
			},
		},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Name:   name,
					Schema: schema,
					Strict: openai.Bool(true),
					Type:   "json_schema",
				},
			},
		},
	}
	if instructions != "" {
		params.Instructions = openai.String(instructions)
	}
	return params
}

func (w *Writer) complete(ctx context.Context, step string, params responses.ResponseNewParams) (string, error) {
	start := time.Now()
	resp, err := Complete(ctx, w.client, params, w.timeout)
	if err != nil {
		w.logger.Debug("completion failed", "step", step, "model", params.Model, "elapsed", time.Since(start), "error", err)
		return "", fmt.Errorf("%s: %w", step, err)
	}
	w.logger.Debug("completion done", "step", step, "model", params.Model, "elapsed", time.Since(start), "status", resp.Status)
	return resp.OutputText(), nil
}
