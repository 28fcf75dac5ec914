// Package store keeps generated diaries in a local SQLite database.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/theimaginaryfoundation/emotion-diary/diary"
)

const schema = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA busy_timeout = 5000;

CREATE TABLE IF NOT EXISTS diaries (
    id            TEXT PRIMARY KEY,
    day           TEXT NOT NULL,
    date_label    TEXT NOT NULL,
    transcript    TEXT NOT NULL DEFAULT '',
    search_log    TEXT NOT NULL DEFAULT '',
    summary       TEXT NOT NULL DEFAULT '',
    auto_summary  TEXT NOT NULL DEFAULT '',
    utterances    INTEGER NOT NULL DEFAULT 0,
    diary_json    TEXT NOT NULL,
    created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS diaries_day_created ON diaries(day, created_at);
`

// createdAtLayout is fixed-width so that created_at sorts lexically.
const createdAtLayout = "2006-01-02T15:04:05.000000000Z"

// ErrNotFound is returned when no diary exists for the requested day.
var ErrNotFound = errors.New("diary not found")

// Entry is one stored diary. A day may have several entries; the newest wins on lookup.
type Entry struct {
	ID          uuid.UUID          `json:"id"`
	Date        string             `json:"date"`
	DateLabel   string             `json:"date_label"`
	Inputs      diary.DayInputs    `json:"inputs"`
	AutoSummary string             `json:"auto_summary,omitempty"`
	Utterances  int                `json:"utterances"`
	Diary       diary.EmotionDiary `json:"diary"`
	CreatedAt   time.Time          `json:"created_at"`
}

// EntryFromResult builds an unsaved entry from a generation result.
func EntryFromResult(r diary.Result) Entry {
	return Entry{
		Date:        r.Date,
		DateLabel:   r.DateLabel,
		Inputs:      r.Inputs,
		AutoSummary: r.AutoSummary,
		Utterances:  len(r.Utterances),
		Diary:       r.Diary,
	}
}

type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &DB{db: db}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Save inserts e, assigning an ID and creation time when they are unset.
func (d *DB) Save(ctx context.Context, e Entry) (Entry, error) {
	if _, err := diary.ParseDate(e.Date); err != nil {
		return Entry{}, fmt.Errorf("Save: %w", err)
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	body, err := json.Marshal(e.Diary)
	if err != nil {
		return Entry{}, fmt.Errorf("Save: marshal diary: %w", err)
	}

	_, err = d.db.ExecContext(ctx, `
INSERT INTO diaries (id, day, date_label, transcript, search_log, summary, auto_summary, utterances, diary_json, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), e.Date, e.DateLabel,
		e.Inputs.Transcript, e.Inputs.SearchLog, e.Inputs.Summary,
		e.AutoSummary, e.Utterances, string(body),
		e.CreatedAt.UTC().Format(createdAtLayout),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("Save: insert: %w", err)
	}
	return e, nil
}

const selectColumns = `id, day, date_label, transcript, search_log, summary, auto_summary, utterances, diary_json, created_at`

// Latest returns the newest entry for day (YYYY-MM-DD).
func (d *DB) Latest(ctx context.Context, day string) (Entry, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM diaries WHERE day = ? ORDER BY created_at DESC LIMIT 1`, day)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("Latest: %w", err)
	}
	return e, nil
}

// List returns up to limit entries, newest day first.
func (d *DB) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM diaries ORDER BY day DESC, created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("List: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var (
		e         Entry
		id        string
		body      string
		createdAt string
	)
	err := s.Scan(&id, &e.Date, &e.DateLabel,
		&e.Inputs.Transcript, &e.Inputs.SearchLog, &e.Inputs.Summary,
		&e.AutoSummary, &e.Utterances, &body, &createdAt)
	if err != nil {
		return Entry{}, err
	}
	if e.ID, err = uuid.Parse(id); err != nil {
		return Entry{}, fmt.Errorf("parse id %q: %w", id, err)
	}
	if err := json.Unmarshal([]byte(body), &e.Diary); err != nil {
		return Entry{}, fmt.Errorf("decode diary %s: %w", id, err)
	}
	if e.CreatedAt, err = time.Parse(createdAtLayout, createdAt); err != nil {
		return Entry{}, fmt.Errorf("parse created_at %q: %w", createdAt, err)
	}
	return e, nil
}
