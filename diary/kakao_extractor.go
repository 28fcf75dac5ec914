package diary

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultMaxUtterances is how many of a day's most recent utterances are kept.
const DefaultMaxUtterances = 30

// DefaultNoiseMarkers are substrings that disqualify a message: photo attachments, emoticons,
// and member join/leave notices.
var DefaultNoiseMarkers = []string{
	"[사진]",
	"이모티콘",
	"님이 입장",
	"님이 들어왔습니다",
	"님이 나갔",
}

// ExtractOptions controls ExtractDayWithOptions.
type ExtractOptions struct {
	// NoiseMarkers disqualify any candidate utterance containing one of them.
	// A nil slice means DefaultNoiseMarkers; an empty non-nil slice disables filtering.
	NoiseMarkers []string

	// MaxUtterances caps the result to the most recent N utterances (defaults to 30).
	MaxUtterances int

	// KeepUnmatched keeps lines inside the day's block that match neither message grammar
	// (continuation lines, notices) as raw utterances. When false they are discarded.
	KeepUnmatched bool
}

// DefaultExtractOptions returns the strict policy: default markers, 30 utterances,
// unmatched lines discarded.
func DefaultExtractOptions() ExtractOptions {
	return ExtractOptions{
		NoiseMarkers:  append([]string(nil), DefaultNoiseMarkers...),
		MaxUtterances: DefaultMaxUtterances,
	}
}

type scanState int

const (
	scanIdle scanState = iota
	scanCollecting
)

// messageGrammar is one accepted message line shape. textGroup is the submatch holding the
// message body; author and timestamp are matched but never kept.
type messageGrammar struct {
	name      string
	re        *regexp.Regexp
	textGroup int
}

// Tried in order; the first match wins.
var messageGrammars = []messageGrammar{
	// [민수] 오후 1:30 안녕  /  [민수] [오후 1:30] 안녕
	{
		name:      "author-time",
		re:        regexp.MustCompile(`^\[([^\]]*)\]\s*\[?(오전|오후|AM|PM|am|pm)\s*\d{1,2}:\d{2}\]?\s*(.*)$`),
		textGroup: 3,
	},
	// 오후 1:30 [민수] 안녕
	{
		name:      "time-author",
		re:        regexp.MustCompile(`^\[?(오전|오후|AM|PM|am|pm)\s*\d{1,2}:\d{2}\]?\s*\[([^\]]*)\]\s*(.*)$`),
		textGroup: 3,
	},
}

// Day boundaries other than the target day. A separator is either dash framed, or a bare date
// with at most a weekday after it, so a message line that merely opens with a date is not one.
// Submatches are year, month and day.
var separatorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^-+\s*(\d{4})년\s*(\d{1,2})월\s*(\d{1,2})일.*$`),
	regexp.MustCompile(`^(\d{4})년\s*(\d{1,2})월\s*(\d{1,2})일(?:\s*[월화수목금토일]요일)?[-\s]*$`),
}

// matchSeparator reports whether the trimmed line is a day boundary and returns its submatches.
func matchSeparator(line string) ([]string, bool) {
	for _, re := range separatorPatterns {
		if m := re.FindStringSubmatch(line); m != nil {
			return m, true
		}
	}
	return nil, false
}

// ExtractDay returns the utterances under the separator for dateLabel using the default options.
func ExtractDay(rawText, dateLabel string) []string {
	return ExtractDayWithOptions(rawText, dateLabel, DefaultExtractOptions())
}

// ExtractDayWithOptions scans a chat export for the block that starts at the separator line
// carrying dateLabel and returns its message bodies in order, noise removed, keeping only the
// last opts.MaxUtterances. Collection stops at the next separator line.
//
// The target separator is any line opening with dateLabel, so a message line that starts with
// the target date and precedes the real separator begins the block early. Other dates end the
// block only on a dash-framed line or a bare date with an optional weekday.
//
// Malformed input never produces an error: no matching separator yields an empty slice.
func ExtractDayWithOptions(rawText, dateLabel string, opts ExtractOptions) []string {
	label := strings.TrimSpace(dateLabel)
	if label == "" {
		return []string{}
	}
	target := regexp.MustCompile(`^[-\s]*` + regexp.QuoteMeta(label) + `.*$`)

	markers := opts.NoiseMarkers
	if markers == nil {
		markers = DefaultNoiseMarkers
	}
	limit := opts.MaxUtterances
	if limit <= 0 {
		limit = DefaultMaxUtterances
	}
	window := newTailWindow(limit)

	state := scanIdle
scan:
	for _, ln := range splitLines(rawText) {
		ln = strings.TrimSpace(ln)

		isTarget := target.MatchString(ln)
		_, isSeparator := matchSeparator(ln)
		if isTarget || isSeparator {
			switch state {
			case scanCollecting:
				break scan
			case scanIdle:
				if isTarget {
					state = scanCollecting
				}
			}
			continue
		}

		if state != scanCollecting || ln == "" {
			continue
		}

		candidate, ok := matchMessage(ln)
		if !ok {
			if !opts.KeepUnmatched {
				continue
			}
			candidate = ln
		}
		candidate = strings.TrimSpace(candidate)
		if candidate == "" || containsAny(candidate, markers) {
			continue
		}
		window.push(candidate)
	}
	return window.items()
}

// JoinTranscript joins utterances the way prompts consume them.
func JoinTranscript(utterances []string) string {
	return strings.Join(utterances, "\n")
}

// ExportDays lists the dates of the separator lines in rawText in first-seen order, without
// duplicates. Separators naming impossible dates are skipped.
func ExportDays(rawText string) []Date {
	var days []Date
	seen := make(map[Date]bool)
	for _, ln := range splitLines(rawText) {
		m, ok := matchSeparator(strings.TrimSpace(ln))
		if !ok {
			continue
		}
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		day := Date{Year: y, Month: time.Month(mo), Day: d}
		if DateOf(time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)) != day || seen[day] {
			continue
		}
		seen[day] = true
		days = append(days, day)
	}
	return days
}

func matchMessage(line string) (string, bool) {
	for _, g := range messageGrammars {
		if m := g.re.FindStringSubmatch(line); m != nil {
			return m[g.textGroup], true
		}
	}
	return "", false
}

func containsAny(s string, markers []string) bool {
	for _, k := range markers {
		if k != "" && strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// splitLines splits on the same boundaries as a universal-newline reader, including
// form feeds and the Unicode line/paragraph separators.
func splitLines(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		switch r {
		case '\n', '\r', '\v', '\f', '\x1c', '\x1d', '\x1e', '\u0085', '\u2028', '\u2029':
			return true
		}
		return false
	})
}

// tailWindow retains the most recent size items, evicting the oldest on overflow.
type tailWindow struct {
	buf   []string
	size  int
	start int
}

func newTailWindow(size int) *tailWindow {
	return &tailWindow{size: size}
}

func (w *tailWindow) push(s string) {
	if len(w.buf) < w.size {
		w.buf = append(w.buf, s)
		return
	}
	w.buf[w.start] = s
	w.start = (w.start + 1) % w.size
}

func (w *tailWindow) items() []string {
	out := make([]string, 0, len(w.buf))
	out = append(out, w.buf[w.start:]...)
	out = append(out, w.buf[:w.start]...)
	return out
}
