package fileutils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/tidwall/gjson"
)

// DecodeStrictObject unmarshals a model reply that must be exactly one JSON object.
// Surrounding prose, code fences, keys v does not declare, and required keys that are missing or
// hold anything but a JSON string (null included) are errors. Nothing is repaired.
func DecodeStrictObject(outputText string, v any, required ...string) error {
	s := strings.TrimSpace(outputText)
	if s == "" {
		return io.ErrUnexpectedEOF
	}
	if !gjson.Valid(s) {
		return fmt.Errorf("reply is not a single JSON value (len=%d)", len(s))
	}
	res := gjson.Parse(s)
	if !res.IsObject() {
		return fmt.Errorf("reply is a JSON %v, want object", res.Type)
	}

	present := make(map[string]gjson.Type)
	res.ForEach(func(k, val gjson.Result) bool {
		present[k.String()] = val.Type
		return true
	})
	var missing, notString []string
	for _, k := range required {
		t, ok := present[k]
		switch {
		case !ok:
			missing = append(missing, k)
		case t != gjson.String:
			notString = append(notString, k)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("reply is missing keys %q", missing)
	}
	if len(notString) > 0 {
		return fmt.Errorf("reply keys %q must be strings", notString)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	return nil
}
