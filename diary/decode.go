package diary

import (
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DecodeExport turns an uploaded export into text without ever failing.
// A UTF-16 or UTF-8 byte order mark selects the decoder; otherwise the bytes are taken as
// UTF-8 and invalid sequences are dropped.
func DecodeExport(b []byte) string {
	out, _, err := transform.Bytes(unicode.BOMOverride(transform.Nop), b)
	if err != nil {
		out = b
	}
	s := strings.ToValidUTF8(string(out), "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return s
}
