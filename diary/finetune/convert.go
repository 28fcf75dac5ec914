// Package finetune turns counselling dialogue records into fine-tuning datasets.
package finetune

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/theimaginaryfoundation/emotion-diary/diary/fileutils"
)

// Format is a fine-tuning dataset layout.
type Format string

const (
	FormatOpenAI       Format = "openai"
	FormatAlpaca       Format = "alpaca"
	FormatConversation Format = "conversation"
	FormatMultiTurn    Format = "multi_turn"
)

// Formats lists every supported layout.
var Formats = []Format{FormatOpenAI, FormatAlpaca, FormatConversation, FormatMultiTurn}

func ParseFormat(s string) (Format, error) {
	f := Format(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Formats {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown format %q (want one of %v)", s, Formats)
}

// turnPairs is how many HSnn/SSnn pairs a record may carry.
const turnPairs = 3

// Record is one counselling dialogue in the source dataset.
type Record struct {
	Profile struct {
		Emotion struct {
			Type      string          `json:"type"`
			Situation json.RawMessage `json:"situation"`
		} `json:"emotion"`
	} `json:"profile"`
	Talk struct {
		Content map[string]json.RawMessage `json:"content"`
	} `json:"talk"`
}

// Turn is one human line and the counsellor's reply.
type Turn struct {
	Human     string
	Assistant string
}

// Turns returns the HS01/SS01..HS03/SS03 pairs present in the record, in order.
// A pair is kept only when both sides are present.
func (r Record) Turns() []Turn {
	var out []Turn
	for i := 1; i <= turnPairs; i++ {
		h, okH := r.Talk.Content[fmt.Sprintf("HS%02d", i)]
		s, okS := r.Talk.Content[fmt.Sprintf("SS%02d", i)]
		if okH && okS {
			out = append(out, Turn{Human: rawText(h), Assistant: rawText(s)})
		}
	}
	return out
}

// PersonaContext is the counsellor system prompt describing the speaker's emotional state.
func (r Record) PersonaContext() string {
	return fmt.Sprintf(
		"당신은 공감적이고 도움이 되는 상담사입니다. 상대방의 감정 상태는 '%s'이며, 상황은 '%s'입니다. 상대방의 감정을 이해하고 적절한 조언을 제공해주세요.",
		r.Profile.Emotion.Type, situationText(r.Profile.Emotion.Situation),
	)
}

// situationText renders a list of situation tags as "a, b" rather than a bracketed list.
func situationText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return strings.Join(list, ", ")
	}
	return rawText(raw)
}

// rawText returns a JSON string's value, or the compact JSON text of any other value.
func rawText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatSample struct {
	Messages []ChatMessage `json:"messages"`
}

type AlpacaSample struct {
	Instruction string `json:"instruction"`
	Input       string `json:"input"`
	Output      string `json:"output"`
}

type ConversationSample struct {
	Context  string `json:"context"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Samples renders a record in format f. Records without complete turns yield nothing.
func Samples(r Record, f Format) ([]any, error) {
	turns := r.Turns()
	persona := r.PersonaContext()
	var out []any
	switch f {
	case FormatOpenAI:
		for _, t := range turns {
			out = append(out, ChatSample{Messages: []ChatMessage{
				{Role: "system", Content: persona},
				{Role: "user", Content: t.Human},
				{Role: "assistant", Content: t.Assistant},
			}})
		}
	case FormatAlpaca:
		for _, t := range turns {
			out = append(out, AlpacaSample{Instruction: persona, Input: t.Human, Output: t.Assistant})
		}
	case FormatConversation:
		for _, t := range turns {
			out = append(out, ConversationSample{Context: persona, Question: t.Human, Answer: t.Assistant})
		}
	case FormatMultiTurn:
		if len(turns) == 0 {
			return nil, nil
		}
		msgs := []ChatMessage{{Role: "system", Content: persona}}
		for _, t := range turns {
			msgs = append(msgs,
				ChatMessage{Role: "user", Content: t.Human},
				ChatMessage{Role: "assistant", Content: t.Assistant},
			)
		}
		out = append(out, ChatSample{Messages: msgs})
	default:
		return nil, fmt.Errorf("unknown format %q", f)
	}
	return out, nil
}

// ConvertOptions controls Convert.
type ConvertOptions struct {
	Overwrite bool
	Logger    *slog.Logger
}

// ConvertResult contains basic stats from a conversion run.
type ConvertResult struct {
	Records int
	Samples int
	Skipped int
}

// Convert reads JSONL dialogue records and writes fine-tuning samples in format f.
// Lines that are not JSON objects are logged, counted in Skipped, and otherwise ignored.
func Convert(ctx context.Context, inputPath, outputPath string, f Format, opts ConvertOptions) (ConvertResult, error) {
	if _, err := ParseFormat(string(f)); err != nil {
		return ConvertResult{}, fmt.Errorf("Convert: %w", err)
	}
	if inputPath == "" || outputPath == "" {
		return ConvertResult{}, errors.New("Convert: input and output paths are required")
	}
	if !opts.Overwrite && fileutils.FileExists(outputPath) {
		return ConvertResult{}, fmt.Errorf("Convert: %s: %w", outputPath, fileutils.ErrExists)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	in, err := os.Open(inputPath)
	if err != nil {
		return ConvertResult{}, fmt.Errorf("Convert: open input: %w", err)
	}
	defer in.Close()

	out, err := fileutils.CreateAtomic(outputPath, 0o644)
	if err != nil {
		return ConvertResult{}, fmt.Errorf("Convert: create output: %w", err)
	}
	defer out.Abort()

	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var res ConvertResult
	lineNum := 0
	for sc.Scan() {
		lineNum++
		if lineNum%256 == 0 {
			if err := ctx.Err(); err != nil {
				return ConvertResult{}, err
			}
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			logger.Warn("skipping malformed record", "line", lineNum, "error", err)
			res.Skipped++
			continue
		}
		res.Records++

		samples, err := Samples(rec, f)
		if err != nil {
			return ConvertResult{}, fmt.Errorf("Convert: line %d: %w", lineNum, err)
		}
		for _, s := range samples {
			if err := enc.Encode(s); err != nil {
				return ConvertResult{}, fmt.Errorf("Convert: write sample: %w", err)
			}
			res.Samples++
		}
	}
	if err := sc.Err(); err != nil {
		return ConvertResult{}, fmt.Errorf("Convert: read input: %w", err)
	}
	if err := out.Commit(); err != nil {
		return ConvertResult{}, fmt.Errorf("Convert: commit output: %w", err)
	}
	return res, nil
}

// Preview returns up to n lines from the start of a JSONL file.
func Preview(path string, n int) ([]json.RawMessage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	var out []json.RawMessage
	for len(out) < n && sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		out = append(out, json.RawMessage(line))
	}
	return out, sc.Err()
}
