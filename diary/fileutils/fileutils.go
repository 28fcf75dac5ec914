package fileutils

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrExists is returned by the atomic writers when the destination exists and overwrite is off.
var ErrExists = errors.New("destination exists")

func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// SanitizeNewlines folds any newline style into a literal `\n` so text fits on one log line.
func SanitizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

// Truncate trims s and cuts it to at most limit bytes without splitting a UTF-8 sequence.
func Truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 || len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}

func utf8RuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

// MarshalJSON encodes v without HTML escaping, optionally indented, with no trailing newline.
func MarshalJSON(v any, pretty bool) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func WriteJSONFileAtomic(path string, v any, pretty, overwrite bool) error {
	b, err := MarshalJSON(v, pretty)
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	if !overwrite && FileExists(path) {
		return fmt.Errorf("write json: %s: %w", path, ErrExists)
	}
	if err := WriteFileAtomicSameDir(path, append(b, '\n'), 0o644); err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	return nil
}

// WriteFileAtomicSameDir writes data to a temp file next to path and renames it into place.
func WriteFileAtomicSameDir(path string, data []byte, mode fs.FileMode) error {
	af, err := CreateAtomic(path, mode)
	if err != nil {
		return err
	}
	if _, err := af.Write(data); err != nil {
		af.Abort()
		return err
	}
	return af.Commit()
}

// AtomicFile is a buffered temp file that replaces its destination only on Commit.
type AtomicFile struct {
	path string
	tmp  *os.File
	w    *bufio.Writer
	done bool
}

// CreateAtomic opens a temp file in path's directory, creating the directory if needed.
func CreateAtomic(path string, mode fs.FileMode) (*AtomicFile, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	tmp, err := os.CreateTemp(dir, ".tmp_"+filepath.Base(path)+"_*")
	if err != nil {
		return nil, err
	}
	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return nil, err
	}
	return &AtomicFile{path: path, tmp: tmp, w: bufio.NewWriterSize(tmp, 1<<20)}, nil
}

func (a *AtomicFile) Write(p []byte) (int, error) {
	return a.w.Write(p)
}

// Commit flushes, syncs, and renames the temp file over the destination.
func (a *AtomicFile) Commit() error {
	if a.done {
		return errors.New("atomic file already closed")
	}
	a.done = true
	tmpName := a.tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := a.w.Flush(); err != nil {
		_ = a.tmp.Close()
		return err
	}
	if err := a.tmp.Sync(); err != nil {
		_ = a.tmp.Close()
		return err
	}
	if err := a.tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, a.path)
}

// Abort discards the temp file. It is a no-op after Commit.
func (a *AtomicFile) Abort() {
	if a.done {
		return
	}
	a.done = true
	_ = a.tmp.Close()
	_ = os.Remove(a.tmp.Name())
}
