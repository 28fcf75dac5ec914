package diary

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

type fakeWriter struct {
	summary    DaySummary
	summaryErr error
	diary      EmotionDiary
	diaryErr   error

	summarized []string
	written    []DayInputs
}

func (f *fakeWriter) Summarize(ctx context.Context, transcript string) (DaySummary, error) {
	f.summarized = append(f.summarized, transcript)
	return f.summary, f.summaryErr
}

func (f *fakeWriter) WriteDiary(ctx context.Context, in DayInputs) (EmotionDiary, error) {
	f.written = append(f.written, in)
	return f.diary, f.diaryErr
}

func testLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

var july12 = Date{Year: 2025, Month: time.July, Day: 12}

func TestGenerate_AutoSummaryReplacesManual(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{
		summary: DaySummary{Summary: " 인사를 나눴다. "},
		diary:   EmotionDiary{Situation: "s"},
	}
	var logs bytes.Buffer
	res, err := Generate(context.Background(), w, Request{
		Date:      july12,
		Export:    sampleExport,
		SearchLog: "날씨",
		Summary:   "수동 요약",
		Extract:   DefaultExtractOptions(),
	}, testLogger(&logs))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(w.summarized) != 1 || w.summarized[0] != "안녕!" {
		t.Fatalf("summarized=%q, want [안녕!]", w.summarized)
	}
	if len(w.written) != 1 {
		t.Fatalf("written=%d, want 1", len(w.written))
	}
	in := w.written[0]
	if in.Summary != "인사를 나눴다." || in.Transcript != "안녕!" || in.SearchLog != "날씨" {
		t.Fatalf("inputs=%+v", in)
	}
	if res.AutoSummary != "인사를 나눴다." || res.Diary.Situation != "s" || res.DateLabel != "2025년 7월 12일" {
		t.Fatalf("result=%+v", res)
	}
}

func TestGenerate_SummaryFailureFallsBackToManual(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{
		summaryErr: &MalformedResponseError{Step: StepSummary, Raw: "요약: 없음", Err: errors.New("not json")},
	}
	var logs bytes.Buffer
	res, err := Generate(context.Background(), w, Request{
		Date:    july12,
		Export:  sampleExport,
		Summary: "수동 요약",
	}, testLogger(&logs))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got := w.written[0].Summary; got != "수동 요약" {
		t.Fatalf("Summary=%q, want manual summary", got)
	}
	if res.SummaryError == "" || res.AutoSummary != "" {
		t.Fatalf("result=%+v", res)
	}
	if !strings.Contains(logs.String(), "auto summary failed") || !strings.Contains(logs.String(), "요약: 없음") {
		t.Fatalf("logs do not carry the failure and raw reply:\n%s", logs.String())
	}
}

func TestGenerate_MissingInputBeforeAnyCall(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	_, err := Generate(context.Background(), w, Request{
		Date:      july12,
		Export:    "---------- 2025년 7월 13일 일요일 ----------\n[민수] 오후 2:00 다른날",
		SearchLog: "  ",
	}, nil)
	if !errors.Is(err, ErrMissingInput) {
		t.Fatalf("err=%v, want ErrMissingInput", err)
	}
	if len(w.summarized) != 0 || len(w.written) != 0 {
		t.Fatalf("calls made: summarized=%d written=%d", len(w.summarized), len(w.written))
	}
}

func TestGenerate_NoChatSkipsSummary(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	res, err := Generate(context.Background(), w, Request{Date: july12, SearchLog: "영화 예매"}, nil)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(w.summarized) != 0 {
		t.Fatalf("summarized=%d, want 0", len(w.summarized))
	}
	if res.Utterances == nil || len(res.Utterances) != 0 {
		t.Fatalf("Utterances=%#v, want empty non-nil", res.Utterances)
	}
}

func TestGenerate_SkipAutoSummary(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	if _, err := Generate(context.Background(), w, Request{Date: july12, Export: sampleExport, SkipAutoSummary: true}, nil); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(w.summarized) != 0 {
		t.Fatalf("summarized=%d, want 0", len(w.summarized))
	}
}

func TestGenerate_DiaryErrorPropagates(t *testing.T) {
	t.Parallel()

	bad := &MalformedResponseError{Step: StepDiary, Raw: "{}", Err: errors.New("missing keys")}
	w := &fakeWriter{diaryErr: bad}
	var logs bytes.Buffer
	_, err := Generate(context.Background(), w, Request{Date: july12, Summary: "x"}, testLogger(&logs))
	var mre *MalformedResponseError
	if !errors.As(err, &mre) || mre != bad {
		t.Fatalf("err=%v, want wrapped MalformedResponseError", err)
	}
}

func TestGenerate_RequiresDateAndWriter(t *testing.T) {
	t.Parallel()

	if _, err := Generate(context.Background(), nil, Request{Date: july12, Summary: "x"}, nil); err == nil {
		t.Fatalf("expected error for nil writer")
	}
	if _, err := Generate(context.Background(), &fakeWriter{}, Request{Summary: "x"}, nil); err == nil {
		t.Fatalf("expected error for zero date")
	}
}

func TestGenerate_RejectedReplyIsLoggedOnOneBoundedLine(t *testing.T) {
	t.Parallel()

	raw := "첫 줄\r\n둘째 줄\n" + strings.Repeat("가", 2000)
	w := &fakeWriter{diaryErr: &MalformedResponseError{Step: StepDiary, Raw: raw, Err: errors.New("not json")}}
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	if _, err := Generate(context.Background(), w, Request{Date: july12, Summary: "산책"}, logger); err == nil {
		t.Fatalf("Generate error=nil, want error")
	}

	lines := strings.Split(strings.TrimSpace(logs.String()), "\n")
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", lines[len(lines)-1], err)
	}
	got, _ := entry["raw"].(string)
	if strings.ContainsAny(got, "\r\n") {
		t.Fatalf("raw=%q, want newlines folded", got)
	}
	if !strings.HasPrefix(got, `첫 줄\n둘째 줄\n가`) {
		t.Fatalf("raw=%q, want folded newlines at the start", got)
	}
	if len(got) > rawLogLimit+len("…") {
		t.Fatalf("len(raw)=%d, want <= %d", len(got), rawLogLimit+len("…"))
	}
}
