package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Entry is one acknowledged dose. Immutable once written; removed only by
// explicit user action.
type Entry struct {
	ID       string    `json:"id"`
	Medicine string    `json:"medicine"`
	Dose     string    `json:"dose"`
	Image    string    `json:"image,omitempty"`
	TakenAt  time.Time `json:"takenAt"`
}

// Ledger is the durable log of taken doses. It is the only state required to
// survive a restart.
type Ledger struct {
	db *sql.DB
	mu sync.Mutex
}

func Open(dbPath string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	l := &Ledger{db: db}
	if err := l.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := l.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := l.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (l *Ledger) initSchema() error {
	_, err := l.db.Exec(`CREATE TABLE IF NOT EXISTS history (
		id TEXT PRIMARY KEY,
		medicine TEXT NOT NULL,
		dose TEXT NOT NULL,
		image TEXT NOT NULL DEFAULT '',
		taken_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("init history schema: %w", err)
	}
	_, err = l.db.Exec(`CREATE INDEX IF NOT EXISTS idx_history_taken_at ON history(taken_at)`)
	if err != nil {
		return fmt.Errorf("init history index: %w", err)
	}
	return nil
}

func (l *Ledger) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Append records an acknowledged dose. A missing ID or timestamp is filled in.
func (l *Ledger) Append(e Entry) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if strings.TrimSpace(e.Medicine) == "" {
		return Entry{}, fmt.Errorf("history entry requires a medicine name")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.TakenAt.IsZero() {
		e.TakenAt = time.Now()
	}

	_, err := l.db.Exec(
		`INSERT INTO history (id, medicine, dose, image, taken_at) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.Medicine, e.Dose, e.Image, e.TakenAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("append history entry: %w", err)
	}
	return e, nil
}

// List returns entries newest first. limit <= 0 returns everything.
func (l *Ledger) List(limit int) ([]Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	query := `SELECT id, medicine, dose, image, taken_at FROM history ORDER BY taken_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := l.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var takenAt string
		if err := rows.Scan(&e.ID, &e.Medicine, &e.Dose, &e.Image, &takenAt); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		ts, err := time.Parse(time.RFC3339Nano, takenAt)
		if err != nil {
			return nil, fmt.Errorf("parse taken_at %q: %w", takenAt, err)
		}
		e.TakenAt = ts
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Delete removes exactly the entries with the given IDs and reports how many
// were removed. Unknown IDs are ignored.
func (l *Ledger) Delete(ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	res, err := l.db.Exec(`DELETE FROM history WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("delete history entries: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Clear removes every entry and reports how many were removed.
func (l *Ledger) Clear() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, err := l.db.Exec(`DELETE FROM history`)
	if err != nil {
		return 0, fmt.Errorf("clear history: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Count returns the number of entries in the ledger.
func (l *Ledger) Count() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var n int
	if err := l.db.QueryRow(`SELECT COUNT(*) FROM history`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count history: %w", err)
	}
	return n, nil
}
