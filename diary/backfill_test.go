package diary

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const backfillExport = `카카오톡 대화
--------------- 2025년 7월 10일 목요일 ---------------
[민수] [오후 1:30] 첫날
--------------- 2025년 7월 11일 금요일 ---------------
[지은] [오후 1:31] [사진]
--------------- 2025년 2월 30일 일요일 ---------------
[민수] [오후 2:00] 없는 날
--------------- 2025년 7월 12일 토요일 ---------------
[민수] [오후 2:00] 셋째날
`

// echoWriter writes a diary whose situation is the transcript it was given.
type echoWriter struct {
	mu      sync.Mutex
	failOn  string
	written []string
}

func (e *echoWriter) Summarize(ctx context.Context, transcript string) (DaySummary, error) {
	return DaySummary{}, nil
}

func (e *echoWriter) WriteDiary(ctx context.Context, in DayInputs) (EmotionDiary, error) {
	e.mu.Lock()
	e.written = append(e.written, in.Transcript)
	e.mu.Unlock()
	if e.failOn != "" && in.Transcript == e.failOn {
		return EmotionDiary{}, &MalformedResponseError{Step: StepDiary, Raw: "?", Err: errors.New("not json")}
	}
	return EmotionDiary{Situation: in.Transcript}, nil
}

func TestExportDays(t *testing.T) {
	t.Parallel()

	got := ExportDays(backfillExport + "--------------- 2025년 7월 10일 목요일 ---------------\n")
	want := []Date{
		{Year: 2025, Month: time.July, Day: 10},
		{Year: 2025, Month: time.July, Day: 11},
		{Year: 2025, Month: time.July, Day: 12},
	}
	if len(got) != len(want) {
		t.Fatalf("ExportDays=%v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ExportDays[%d]=%s, want %s", i, got[i], want[i])
		}
	}
}

func TestBackfill_AllDays(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	w := &echoWriter{}
	got, err := Backfill(context.Background(), w, BackfillRequest{
		Export:      backfillExport,
		Concurrency: 2,
	}, testLogger(&logs))
	if err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	if len(got.Diaries) != 2 {
		t.Fatalf("Diaries=%d, want 2", len(got.Diaries))
	}
	if got.Diaries[0].Date != "2025-07-10" || got.Diaries[0].Diary.Situation != "첫날" {
		t.Fatalf("Diaries[0]=%+v", got.Diaries[0])
	}
	if got.Diaries[1].Date != "2025-07-12" || got.Diaries[1].Diary.Situation != "셋째날" {
		t.Fatalf("Diaries[1]=%+v", got.Diaries[1])
	}
	if len(got.Skipped) != 1 || got.Skipped[0] != "2025-07-11" {
		t.Fatalf("Skipped=%q, want [2025-07-11]", got.Skipped)
	}
	if !bytes.Contains(logs.Bytes(), []byte("skipped")) {
		t.Fatalf("expected a log line for the skipped day, got %q", logs.String())
	}
}

func TestBackfill_Range(t *testing.T) {
	t.Parallel()

	w := &echoWriter{}
	got, err := Backfill(context.Background(), w, BackfillRequest{
		Export: backfillExport,
		From:   Date{Year: 2025, Month: time.July, Day: 11},
		To:     july12,
	}, testLogger(&bytes.Buffer{}))
	if err != nil {
		t.Fatalf("Backfill: %v", err)
	}
	if len(got.Diaries) != 1 || got.Diaries[0].Date != "2025-07-12" {
		t.Fatalf("Diaries=%+v, want only 2025-07-12", got.Diaries)
	}
	if len(w.written) != 1 {
		t.Fatalf("WriteDiary calls=%d, want 1", len(w.written))
	}
}

func TestBackfill_FailureIsReturned(t *testing.T) {
	t.Parallel()

	w := &echoWriter{failOn: "셋째날"}
	_, err := Backfill(context.Background(), w, BackfillRequest{
		Export:      backfillExport,
		Concurrency: 1,
	}, testLogger(&bytes.Buffer{}))
	var mre *MalformedResponseError
	if !errors.As(err, &mre) {
		t.Fatalf("err=%v, want *MalformedResponseError", err)
	}
}

func TestBackfill_RejectsBadInput(t *testing.T) {
	t.Parallel()

	w := &echoWriter{}
	if _, err := Backfill(context.Background(), w, BackfillRequest{Export: backfillExport, From: july12, To: Date{Year: 2025, Month: time.July, Day: 1}}, nil); err == nil {
		t.Fatalf("Backfill(from > to) error=nil, want error")
	}
	if _, err := Backfill(context.Background(), w, BackfillRequest{Export: "그냥 텍스트"}, nil); !errors.Is(err, ErrMissingInput) {
		t.Fatalf("Backfill(no days) err=%v, want ErrMissingInput", err)
	}
	if _, err := Backfill(context.Background(), nil, BackfillRequest{Export: backfillExport}, nil); err == nil {
		t.Fatalf("Backfill(nil writer) error=nil, want error")
	}
	if len(w.written) != 0 {
		t.Fatalf("WriteDiary calls=%d, want 0", len(w.written))
	}
}

func TestForEachConcurrent_Limit(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int32
	items := make([]int, 20)
	err := forEachConcurrent(context.Background(), 3, items, func(ctx context.Context, _ int) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return nil
	})
	if err != nil {
		t.Fatalf("forEachConcurrent: %v", err)
	}
	if p := peak.Load(); p > 3 {
		t.Fatalf("peak concurrency=%d, want <= 3", p)
	}
}

func TestForEachConcurrent_ParentCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := forEachConcurrent(ctx, 1, []int{1, 2}, func(ctx context.Context, _ int) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want context.Canceled", err)
	}
}
