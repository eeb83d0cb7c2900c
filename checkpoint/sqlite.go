package checkpoint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/parlorhq/parlor/core"
	"github.com/parlorhq/parlor/logging"
)

// SQLiteStore implements Store on a single SQLite database file. The handle
// is opened once at construction and shared process-wide; callers own its
// lifetime and must Close it at shutdown. WAL mode keeps readers of other
// threads unblocked while a commit is in flight.
type SQLiteStore struct {
	db     *sql.DB
	logger logging.Logger
}

// NewSQLiteStore creates a SQLite-backed store at the given path. The
// schema is created if it does not exist; parent directories are created if
// needed. A nil logger is replaced with a no-op logger.
func NewSQLiteStore(path string, logger logging.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("sqlite checkpoint store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist.
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS threads (
			thread_id  TEXT PRIMARY KEY,
			name       TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS checkpoints (
			thread_id  TEXT NOT NULL,
			seq        INTEGER NOT NULL,
			history    TEXT NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (thread_id, seq),
			FOREIGN KEY (thread_id) REFERENCES threads(thread_id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_checkpoints_thread_seq
			ON checkpoints(thread_id, seq DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

// LoadLatest implements the Store interface.
func (s *SQLiteStore) LoadLatest(ctx context.Context, threadID string) ([]core.Message, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		`SELECT history FROM checkpoints WHERE thread_id = ? ORDER BY seq DESC LIMIT 1`,
		threadID,
	).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return []core.Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading latest checkpoint: %w", err)
	}
	return core.UnmarshalHistory([]byte(blob))
}

// Commit implements the Store interface. The thread upsert and snapshot
// insert share one transaction so a crash can never expose a snapshot
// without its thread row or vice versa.
func (s *SQLiteStore) Commit(ctx context.Context, threadID string, history []core.Message, name string) (core.Checkpoint, error) {
	data, err := core.MarshalHistory(history)
	if err != nil {
		return core.Checkpoint{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Checkpoint{}, fmt.Errorf("beginning commit: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	ts := now.Format(time.RFC3339Nano)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO threads (thread_id, name, created_at, updated_at)
		VALUES (?, NULLIF(?, ''), ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET
			name = COALESCE(threads.name, NULLIF(excluded.name, '')),
			updated_at = excluded.updated_at`,
		threadID, name, ts, ts,
	)
	if err != nil {
		return core.Checkpoint{}, fmt.Errorf("upserting thread: %w", err)
	}

	var seq int64
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM checkpoints WHERE thread_id = ?`,
		threadID,
	).Scan(&seq)
	if err != nil {
		return core.Checkpoint{}, fmt.Errorf("allocating checkpoint seq: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO checkpoints (thread_id, seq, history, created_at) VALUES (?, ?, ?, ?)`,
		threadID, seq, string(data), ts,
	)
	if err != nil {
		return core.Checkpoint{}, fmt.Errorf("inserting checkpoint: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return core.Checkpoint{}, fmt.Errorf("committing checkpoint: %w", err)
	}

	s.logger.Debug("checkpoint committed", "thread_id", threadID, "seq", seq, "messages", len(history))
	return core.Checkpoint{ThreadID: threadID, Seq: seq, CreatedAt: now}, nil
}

// ListThreads implements the Store interface.
func (s *SQLiteStore) ListThreads(ctx context.Context) ([]ThreadInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.thread_id, COALESCE(t.name, '')
		FROM threads t
		WHERE EXISTS (SELECT 1 FROM checkpoints c WHERE c.thread_id = t.thread_id)
		ORDER BY t.created_at, t.thread_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing threads: %w", err)
	}
	defer rows.Close()

	var threads []ThreadInfo
	for rows.Next() {
		var info ThreadInfo
		if err := rows.Scan(&info.ThreadID, &info.Name); err != nil {
			return nil, fmt.Errorf("scanning thread row: %w", err)
		}
		threads = append(threads, info)
	}
	return threads, rows.Err()
}

// SetName implements the Store interface.
func (s *SQLiteStore) SetName(ctx context.Context, threadID, name string) error {
	ts := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO threads (thread_id, name, created_at, updated_at)
		VALUES (?, NULLIF(?, ''), ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET
			name = NULLIF(excluded.name, ''),
			updated_at = excluded.updated_at`,
		threadID, name, ts, ts,
	)
	if err != nil {
		return fmt.Errorf("setting thread name: %w", err)
	}
	return nil
}

// Delete implements the Store interface.
func (s *SQLiteStore) Delete(ctx context.Context, threadID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM checkpoints WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("deleting checkpoints: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM threads WHERE thread_id = ?`, threadID); err != nil {
		return fmt.Errorf("deleting thread: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing delete: %w", err)
	}

	s.logger.Debug("thread deleted", "thread_id", threadID)
	return nil
}

// Close implements the Store interface.
func (s *SQLiteStore) Close() error { return s.db.Close() }
