package fileutils

import (
	"errors"
	"io"
	"testing"
)

type summaryReply struct {
	Summary string `json:"summary"`
}

func TestDecodeStrictObject(t *testing.T) {
	t.Parallel()

	var got summaryReply
	if err := DecodeStrictObject("  {\"summary\":\"오전에 병원에 다녀왔다.\"}\n", &got, "summary"); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Summary != "오전에 병원에 다녀왔다." {
		t.Fatalf("Summary=%q", got.Summary)
	}
}

func TestDecodeStrictObjectRejects(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"prose around":  "여기 요약입니다: {\"summary\":\"x\"}",
		"code fence":    "```json\n{\"summary\":\"x\"}\n```",
		"trailing text": "{\"summary\":\"x\"} 끝",
		"missing key":   "{\"other\":\"x\"}",
		"unknown key":   "{\"summary\":\"x\",\"mood\":\"y\"}",
		"non-string":    "{\"summary\":3}",
		"null value":    "{\"summary\":null}",
		"array":         "[{\"summary\":\"x\"}]",
		"invalid":       "{\"summary\":",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			var v summaryReply
			if err := DecodeStrictObject(in, &v, "summary"); err == nil {
				t.Fatalf("expected error for %q", in)
			}
		})
	}
}

func TestDecodeStrictObjectEmpty(t *testing.T) {
	t.Parallel()

	var v summaryReply
	if err := DecodeStrictObject(" \n", &v); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("err=%v, want io.ErrUnexpectedEOF", err)
	}
}
