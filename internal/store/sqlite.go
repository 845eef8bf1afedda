package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// collectionKey names the single blob the store reads and writes.
const collectionKey = "bricks"

// DefaultHistoryDepth is how many previous generations SQLiteBackend keeps.
const DefaultHistoryDepth = 10

// SQLiteBackend keeps the collection blob in a SQLite database, along with a
// short history of previously saved generations.
type SQLiteBackend struct {
	db           *sql.DB
	path         string
	historyDepth int
}

// Generation is a previously saved collection blob.
type Generation struct {
	Seq     int64     `json:"seq"`
	SavedAt time.Time `json:"saved_at"`
	Size    int       `json:"size"`
	Data    []byte    `json:"-"`
}

// NewSQLiteBackend opens or creates a SQLite database at the given path.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	b := &SQLiteBackend{db: db, path: dbPath, historyDepth: DefaultHistoryDepth}
	if err := b.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return b, nil
}

// WithHistoryDepth sets how many previous generations are retained. Zero
// disables history.
func (b *SQLiteBackend) WithHistoryDepth(n int) *SQLiteBackend {
	if n < 0 {
		n = 0
	}
	b.historyDepth = n
	return b
}

// Path returns the database file path.
func (b *SQLiteBackend) Path() string { return b.path }

func (b *SQLiteBackend) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS blobs (
		key        TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS blob_history (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		key        TEXT NOT NULL,
		value      BLOB NOT NULL,
		saved_at   TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_blob_history_key ON blob_history(key, seq DESC);
	`
	_, err := b.db.Exec(schema)
	return err
}

func (b *SQLiteBackend) Load(ctx context.Context) ([]byte, error) {
	var data []byte
	err := b.db.QueryRowContext(ctx, `SELECT value FROM blobs WHERE key = ?`, collectionKey).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Save replaces the blob in one transaction, moving the previous value into
// history first.
func (b *SQLiteBackend) Save(ctx context.Context, data []byte) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if b.historyDepth > 0 {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO blob_history (key, value, saved_at)
			 SELECT key, value, updated_at FROM blobs WHERE key = ?`, collectionKey)
		if err != nil {
			return fmt.Errorf("archive blob: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`DELETE FROM blob_history WHERE key = ? AND seq NOT IN (
				SELECT seq FROM blob_history WHERE key = ? ORDER BY seq DESC LIMIT ?
			)`, collectionKey, collectionKey, b.historyDepth)
		if err != nil {
			return fmt.Errorf("trim history: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO blobs (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		collectionKey, data, now)
	if err != nil {
		return fmt.Errorf("write blob: %w", err)
	}

	return tx.Commit()
}

// History lists retained generations, newest first. Data is not loaded.
func (b *SQLiteBackend) History(ctx context.Context) ([]Generation, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT seq, saved_at, length(value) FROM blob_history WHERE key = ? ORDER BY seq DESC`, collectionKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var gens []Generation
	for rows.Next() {
		var g Generation
		var savedAt string
		if err := rows.Scan(&g.Seq, &savedAt, &g.Size); err != nil {
			return nil, err
		}
		g.SavedAt, _ = time.Parse(time.RFC3339Nano, savedAt)
		gens = append(gens, g)
	}
	return gens, rows.Err()
}

// LoadGeneration returns the blob saved under seq.
func (b *SQLiteBackend) LoadGeneration(ctx context.Context, seq int64) ([]byte, error) {
	var data []byte
	err := b.db.QueryRowContext(ctx,
		`SELECT value FROM blob_history WHERE key = ? AND seq = ?`, collectionKey, seq).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("generation %d not found", seq)
	}
	return data, err
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
