package finetune

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/theimaginaryfoundation/emotion-diary/diary/fileutils"
)

// JSONLOptions controls JSONToJSONL.
type JSONLOptions struct {
	// ArrayField selects the record array inside a top-level object. When empty, a top-level
	// object is written as a single record.
	ArrayField string

	// Overwrite allows replacing an existing output file.
	Overwrite bool
}

// JSONLResult contains basic stats from a conversion run.
type JSONLResult struct {
	Records      int
	BytesWritten int64
}

// JSONToJSONL rewrites a JSON document as one compact record per line.
// A top-level array yields one line per element. The input is streamed, never fully loaded,
// and the output replaces outputPath only when the whole input converted cleanly.
func JSONToJSONL(ctx context.Context, inputPath, outputPath string, opts JSONLOptions) (JSONLResult, error) {
	if inputPath == "" {
		return JSONLResult{}, errors.New("JSONToJSONL: inputPath is empty")
	}
	if outputPath == "" {
		return JSONLResult{}, errors.New("JSONToJSONL: outputPath is empty")
	}
	if !opts.Overwrite && fileutils.FileExists(outputPath) {
		return JSONLResult{}, fmt.Errorf("JSONToJSONL: %s: %w", outputPath, fileutils.ErrExists)
	}

	f, err := os.Open(inputPath)
	if err != nil {
		return JSONLResult{}, fmt.Errorf("JSONToJSONL: open input: %w", err)
	}
	defer f.Close()

	br := bufio.NewReaderSize(f, 1<<20)
	first, err := peekFirstByte(br)
	if err != nil {
		return JSONLResult{}, fmt.Errorf("JSONToJSONL: read input: %w", err)
	}

	out, err := fileutils.CreateAtomic(outputPath, 0o644)
	if err != nil {
		return JSONLResult{}, fmt.Errorf("JSONToJSONL: create output: %w", err)
	}
	defer out.Abort()

	w := &lineWriter{w: out}
	dec := json.NewDecoder(br)

	switch {
	case first == '[':
		if err := expectDelim(dec, '['); err != nil {
			return JSONLResult{}, fmt.Errorf("JSONToJSONL: %w", err)
		}
		if err := writeArrayElements(ctx, dec, w); err != nil {
			return JSONLResult{}, err
		}
	case first == '{' && opts.ArrayField != "":
		if err := writeArrayField(ctx, dec, opts.ArrayField, w); err != nil {
			return JSONLResult{}, err
		}
	default:
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return JSONLResult{}, fmt.Errorf("JSONToJSONL: decode record: %w", err)
		}
		if err := w.write(raw); err != nil {
			return JSONLResult{}, err
		}
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return JSONLResult{}, errors.New("JSONToJSONL: trailing data after top-level value")
	}
	if err := out.Commit(); err != nil {
		return JSONLResult{}, fmt.Errorf("JSONToJSONL: commit output: %w", err)
	}
	return JSONLResult{Records: w.records, BytesWritten: w.bytes}, nil
}

func writeArrayField(ctx context.Context, dec *json.Decoder, field string, w *lineWriter) error {
	if err := expectDelim(dec, '{'); err != nil {
		return fmt.Errorf("JSONToJSONL: %w", err)
	}
	found := false
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("JSONToJSONL: read object key: %w", err)
		}
		key, _ := keyTok.(string)
		if key != field {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return fmt.Errorf("JSONToJSONL: skip key %q value: %w", key, err)
			}
			continue
		}
		if err := expectDelim(dec, '['); err != nil {
			return fmt.Errorf("JSONToJSONL: key %q: %w", key, err)
		}
		if err := writeArrayElements(ctx, dec, w); err != nil {
			return err
		}
		found = true
	}
	if err := expectDelim(dec, '}'); err != nil {
		return fmt.Errorf("JSONToJSONL: %w", err)
	}
	if !found {
		return fmt.Errorf("JSONToJSONL: no array field %q in top-level object", field)
	}
	return nil
}

// writeArrayElements writes every element after an already consumed '[' and consumes the ']'.
func writeArrayElements(ctx context.Context, dec *json.Decoder, w *lineWriter) error {
	for dec.More() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("JSONToJSONL: decode element %d: %w", w.records, err)
		}
		if err := w.write(raw); err != nil {
			return err
		}
	}
	if err := expectDelim(dec, ']'); err != nil {
		return fmt.Errorf("JSONToJSONL: %w", err)
	}
	return nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("read %q: %w", want, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

var utf8BOM = []byte{0xef, 0xbb, 0xbf}

// peekFirstByte skips a BOM and leading whitespace and returns the next byte without consuming it.
func peekFirstByte(br *bufio.Reader) (byte, error) {
	if b, err := br.Peek(3); err == nil && bytes.Equal(b, utf8BOM) {
		_, _ = br.Discard(3)
	}
	for {
		b, err := br.Peek(1)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return 0, io.ErrUnexpectedEOF
			}
			return 0, err
		}
		switch b[0] {
		case ' ', '\t', '\r', '\n':
			_, _ = br.ReadByte()
		default:
			return b[0], nil
		}
	}
}

type lineWriter struct {
	w       io.Writer
	buf     bytes.Buffer
	records int
	bytes   int64
}

func (l *lineWriter) write(raw json.RawMessage) error {
	l.buf.Reset()
	if err := json.Compact(&l.buf, raw); err != nil {
		return fmt.Errorf("JSONToJSONL: compact record %d: %w", l.records, err)
	}
	l.buf.WriteByte('\n')
	n, err := l.w.Write(l.buf.Bytes())
	l.bytes += int64(n)
	if err != nil {
		return fmt.Errorf("JSONToJSONL: write record %d: %w", l.records, err)
	}
	l.records++
	return nil
}
