package diary

import (
	"fmt"
	"strings"
)

// NonePlaceholder stands in for any absent input so the model never sees an empty slot.
const NonePlaceholder = "없음"

// DiarySystemPrompt is the counsellor persona used for the diary step.
const DiarySystemPrompt = `당신은 사용자의 일상 대화를 바탕으로, 그 안에 숨어 있는 감정과 스트레스를 추론하여 따뜻하게 공감해주는 작가이자 상담가입니다.
욕설, 무기력한 말투, 조급한 표현 속에서 진짜 감정을 파악하고, 그것에 맞춰 다정한 위로와 실질적인 제안을 주는 역할입니다.
모든 출력은 반드시 JSON으로 주어야 하며, 사용자가 주지 않은 배경은 추측하지 마세요.
절대 출력 앞뒤에 설명을 붙이지 마세요.`

const summaryPromptTemplate = `아래는 오늘 하루의 카카오톡 대화입니다:

---
%s
---

이 내용을 바탕으로 오늘 어떤 일이 있었는지 2~3문장으로 요약해줘.
감정적 표현 없이, 일어난 일 위주로 설명해줘. 예: '오전에는 병원에 대한 대화가 있었고, 오후에는 발표 준비에 대한 걱정이 담긴 대화가 있었다.'
반드시 한글로 작성하고, JSON으로 다음처럼 응답해줘:

{
  "summary": "..."
}`

const diaryPromptTemplate = `### 입력 정보
- 검색 기록: %s
- 카카오톡 대화: %s
- 하루 요약: %s

### 작성 지침
1) 사용자 대화에는 감정이 숨겨져 있을 수 있으므로, 상황의 흐름과 말투에서 감정을 섬세하게 추론하세요.
2) 아래 JSON 구조 그대로 채워서 출력하세요(필드명 변경 금지).
3) 각 항목은 3문장 이상, 따뜻하고 진심 어린 말로 작성하세요.
4) 대화 속 비속어/분노 표현이 있어도 무시하지 말고, 그 안에 숨은 감정을 정리해서 표현하세요.
5) 외국어/영어/암호화폐 용어는 그대로 써도 되지만, 사용자가 느낀 감정에 집중해서 위로와 조언을 구성하세요.
6) 다른 텍스트는 절대 포함하지 마세요. 코드블록도 넣지 마세요.

{
  "상황설명": "...",
  "감정표현": "...",
  "공감과인정": "...",
  "따뜻한위로": "...",
  "실용적제안": "..."
}

예시) 오늘은 ~~한 일이 있었군요. 그래서 ~~한 감정을 느꼈겠어요. 그 감정은 너무 자연스럽고 당연한 거예요. 지금 이 순간 당신에게 필요한 건 ~~, 그리고 앞으로는 ~~ 해보는 걸 추천해요.

각 필드는 3문장 이상, 따뜻하고 부드러운 한국어로 작성하고 사용자가 주지 않은 사실은 절대 넣지 마세요.`

// DayInputs are the three independently optional inputs to the diary step.
type DayInputs struct {
	Transcript string `json:"transcript"`
	SearchLog  string `json:"search_log"`
	Summary    string `json:"summary"`
}

// Empty reports whether every input is blank.
func (in DayInputs) Empty() bool {
	return strings.TrimSpace(in.Transcript) == "" &&
		strings.TrimSpace(in.SearchLog) == "" &&
		strings.TrimSpace(in.Summary) == ""
}

// BuildSummaryPrompt renders the condensation request for a day's transcript.
func BuildSummaryPrompt(transcript string) string {
	return fmt.Sprintf(summaryPromptTemplate, orNone(transcript))
}

// BuildDiaryPrompt renders the diary request. Blank inputs become NonePlaceholder.
// It returns ErrMissingInput when all inputs are blank.
func BuildDiaryPrompt(in DayInputs) (string, error) {
	if in.Empty() {
		return "", ErrMissingInput
	}
	return fmt.Sprintf(diaryPromptTemplate, orNone(in.SearchLog), orNone(in.Transcript), orNone(in.Summary)), nil
}

func orNone(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return NonePlaceholder
	}
	return s
}
