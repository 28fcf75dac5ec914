package diary

import (
	"errors"
	"fmt"

	"github.com/theimaginaryfoundation/emotion-diary/diary/fileutils"
)

// DaySummary is the model-produced condensation of one day's chat.
type DaySummary struct {
	// Summary is 2-3 factual sentences about what happened, no emotional language.
	Summary string `json:"summary"`
}

// EmotionDiary is the model-produced diary artifact for one day.
type EmotionDiary struct {
	Situation  string `json:"상황설명"`
	Emotion    string `json:"감정표현"`
	Empathy    string `json:"공감과인정"`
	Comfort    string `json:"따뜻한위로"`
	Suggestion string `json:"실용적제안"`
}

// DiarySection is one titled field of an EmotionDiary, in display order.
type DiarySection struct {
	Key   string
	Title string
	Body  string
}

// SummaryKeys are the keys a condensation reply must carry.
var SummaryKeys = []string{"summary"}

// DiaryKeys are the keys a diary reply must carry, in display order.
var DiaryKeys = []string{"상황설명", "감정표현", "공감과인정", "따뜻한위로", "실용적제안"}

var diaryTitles = map[string]string{
	"상황설명":  "📝 상황 설명",
	"감정표현":  "💭 감정 표현",
	"공감과인정": "🤝 공감과 인정",
	"따뜻한위로": "🌷 따뜻한 위로",
	"실용적제안": "💡 실용적 제안",
}

// Sections returns the diary's fields in display order.
func (d EmotionDiary) Sections() []DiarySection {
	bodies := []string{d.Situation, d.Emotion, d.Empathy, d.Comfort, d.Suggestion}
	out := make([]DiarySection, 0, len(DiaryKeys))
	for i, k := range DiaryKeys {
		out = append(out, DiarySection{Key: k, Title: diaryTitles[k], Body: bodies[i]})
	}
	return out
}

// ParseDaySummary decodes a condensation reply. Anything other than exactly
// {"summary": string} is returned as a *MalformedResponseError carrying the raw text.
func ParseDaySummary(raw string) (DaySummary, error) {
	var out DaySummary
	if err := fileutils.DecodeStrictObject(raw, &out, SummaryKeys...); err != nil {
		return DaySummary{}, &MalformedResponseError{Step: StepSummary, Raw: raw, Err: err}
	}
	return out, nil
}

// ParseEmotionDiary decodes a diary reply. Prose around the object, missing or unknown keys,
// and non-string values are returned as a *MalformedResponseError carrying the raw text.
func ParseEmotionDiary(raw string) (EmotionDiary, error) {
	var out EmotionDiary
	if err := fileutils.DecodeStrictObject(raw, &out, DiaryKeys...); err != nil {
		return EmotionDiary{}, &MalformedResponseError{Step: StepDiary, Raw: raw, Err: err}
	}
	return out, nil
}

// Generation steps, used to label upstream failures.
const (
	StepSummary = "summary"
	StepDiary   = "diary"
)

// ErrMissingInput is returned before any model call when the day has no transcript, no search
// log and no summary.
var ErrMissingInput = errors.New("missing input: need at least one of chat transcript, search log, or summary")

// MalformedResponseError reports a completion reply that is not the documented JSON shape.
type MalformedResponseError struct {
	Step string
	Raw  string
	Err  error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: malformed model response (len=%d): %v", e.Step, len(e.Raw), e.Err)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}
