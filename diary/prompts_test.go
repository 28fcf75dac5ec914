package diary

import (
	"errors"
	"strings"
	"testing"
)

func TestBuildDiaryPrompt_Placeholders(t *testing.T) {
	t.Parallel()

	p, err := BuildDiaryPrompt(DayInputs{Transcript: "안녕!\n밥 먹었어?", SearchLog: "   "})
	if err != nil {
		t.Fatalf("BuildDiaryPrompt: %v", err)
	}
	for _, want := range []string{
		"- 검색 기록: 없음\n",
		"- 카카오톡 대화: 안녕!\n밥 먹었어?\n",
		"- 하루 요약: 없음\n",
	} {
		if !strings.Contains(p, want) {
			t.Fatalf("prompt missing %q:\n%s", want, p)
		}
	}
	for _, key := range DiaryKeys {
		if !strings.Contains(p, `"`+key+`"`) {
			t.Fatalf("prompt missing key %q", key)
		}
	}
}

func TestBuildDiaryPrompt_MissingInput(t *testing.T) {
	t.Parallel()

	if _, err := BuildDiaryPrompt(DayInputs{SearchLog: " \n", Summary: "\t"}); !errors.Is(err, ErrMissingInput) {
		t.Fatalf("err=%v, want ErrMissingInput", err)
	}
}

func TestBuildSummaryPrompt(t *testing.T) {
	t.Parallel()

	p := BuildSummaryPrompt("병원 다녀옴")
	if !strings.Contains(p, "---\n병원 다녀옴\n---") {
		t.Fatalf("prompt does not fence the transcript:\n%s", p)
	}
	if !strings.Contains(p, `"summary"`) {
		t.Fatalf("prompt does not name the summary key")
	}
}

func TestParseEmotionDiary(t *testing.T) {
	t.Parallel()

	raw := `{"상황설명":"s","감정표현":"e","공감과인정":"p","따뜻한위로":"c","실용적제안":"g"}`
	d, err := ParseEmotionDiary(raw)
	if err != nil {
		t.Fatalf("ParseEmotionDiary: %v", err)
	}
	secs := d.Sections()
	if len(secs) != 5 || secs[0].Body != "s" || secs[4].Key != "실용적제안" || secs[4].Body != "g" {
		t.Fatalf("Sections=%+v", secs)
	}

	_, err = ParseEmotionDiary("다음은 일기입니다. " + raw)
	var mre *MalformedResponseError
	if !errors.As(err, &mre) {
		t.Fatalf("err=%v, want *MalformedResponseError", err)
	}
	if mre.Step != StepDiary || !strings.HasPrefix(mre.Raw, "다음은") {
		t.Fatalf("Step=%q Raw=%q", mre.Step, mre.Raw)
	}
}

func TestParseDaySummary_MissingKey(t *testing.T) {
	t.Parallel()

	_, err := ParseDaySummary(`{"요약":"x"}`)
	var mre *MalformedResponseError
	if !errors.As(err, &mre) || mre.Step != StepSummary {
		t.Fatalf("err=%v, want summary *MalformedResponseError", err)
	}
}

func TestParseReplies_NullValuesRejected(t *testing.T) {
	t.Parallel()

	var mre *MalformedResponseError
	_, err := ParseEmotionDiary(`{"상황설명":null,"감정표현":null,"공감과인정":null,"따뜻한위로":null,"실용적제안":null}`)
	if !errors.As(err, &mre) || mre.Step != StepDiary {
		t.Fatalf("err=%v, want diary *MalformedResponseError", err)
	}
	_, err = ParseDaySummary(`{"summary":null}`)
	if !errors.As(err, &mre) || mre.Step != StepSummary {
		t.Fatalf("err=%v, want summary *MalformedResponseError", err)
	}
}
