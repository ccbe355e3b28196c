// Package store implements the Durable Store Port over SQLite (development
// and test) and PostgreSQL (production).
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/relaycore/relaycore/internal/ports"
)

// SQLiteStore implements ports.DurableStorePort using modernc.org/sqlite
// (pure Go, no cgo).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens or creates a SQLite database at the given DSN.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite pragmas: %w", err)
	}
	// SQLite only supports one writer at a time; keep the pool small.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return &SQLiteStore{db: db}, nil
}

// DB returns the underlying sql.DB handle.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS session_state (
			session_id VARCHAR(64) PRIMARY KEY,
			payload BLOB NOT NULL,
			payload_hash VARCHAR(64) NOT NULL,
			version INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_session_state_updated_at ON session_state(updated_at)`,
		`CREATE TABLE IF NOT EXISTS session_ledger (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id VARCHAR(64) NOT NULL,
			payload BLOB NOT NULL,
			checksum VARCHAR(64) NOT NULL,
			replayed INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_session_ledger_session_id ON session_ledger(session_id)`,
	}
	for _, q := range queries {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) GetState(ctx context.Context, sessionID string) (*ports.StateRow, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, payload, payload_hash, version, created_at, updated_at
		 FROM session_state WHERE session_id = ?`, sessionID)
	var r ports.StateRow
	var created, updated string
	if err := row.Scan(&r.SessionID, &r.Payload, &r.PayloadHash, &r.Version, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var err error
	if r.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, false, err
	}
	if r.UpdatedAt, err = time.Parse(time.RFC3339Nano, updated); err != nil {
		return nil, false, err
	}
	return &r, true, nil
}

// UpsertState implements the read-current/insert-or-update sequence from
// §4.2 within a single transaction: absent row -> insert at version 1;
// present row with an unchanged hash -> no-op (wrote=false); otherwise ->
// update with version+1.
func (s *SQLiteStore) UpsertState(ctx context.Context, sessionID string, payload []byte, payloadHash string) (*ports.StateRow, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	var (
		currentHash string
		version     int
		createdAt   string
	)
	row := tx.QueryRowContext(ctx,
		`SELECT payload_hash, version, created_at FROM session_state WHERE session_id = ?`, sessionID)
	err = row.Scan(&currentHash, &version, &createdAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		created := now.Format(time.RFC3339Nano)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO session_state (session_id, payload, payload_hash, version, created_at, updated_at)
			 VALUES (?, ?, ?, 1, ?, ?)`, sessionID, payload, payloadHash, created, created); err != nil {
			return nil, false, err
		}
		if err := tx.Commit(); err != nil {
			return nil, false, err
		}
		return &ports.StateRow{
			SessionID: sessionID, Payload: payload, PayloadHash: payloadHash,
			Version: 1, CreatedAt: now, UpdatedAt: now,
		}, true, nil
	case err != nil:
		return nil, false, err
	}

	createdTime, perr := time.Parse(time.RFC3339Nano, createdAt)
	if perr != nil {
		return nil, false, perr
	}

	if currentHash == payloadHash {
		// Hash-idempotent no-op save: do not mutate version or updated_at.
		if err := tx.Commit(); err != nil {
			return nil, false, err
		}
		return &ports.StateRow{
			SessionID: sessionID, Payload: payload, PayloadHash: payloadHash,
			Version: version, CreatedAt: createdTime, UpdatedAt: createdTime,
		}, false, nil
	}

	newVersion := version + 1
	if _, err := tx.ExecContext(ctx,
		`UPDATE session_state SET payload = ?, payload_hash = ?, version = ?, updated_at = ?
		 WHERE session_id = ?`, payload, payloadHash, newVersion, now.Format(time.RFC3339Nano), sessionID); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return &ports.StateRow{
		SessionID: sessionID, Payload: payload, PayloadHash: payloadHash,
		Version: newVersion, CreatedAt: createdTime, UpdatedAt: now,
	}, true, nil
}

func (s *SQLiteStore) DeleteState(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM session_state WHERE session_id = ?`, sessionID)
	return err
}

func (s *SQLiteStore) StateExists(ctx context.Context, sessionID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM session_state WHERE session_id = ?`, sessionID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *SQLiteStore) PurgeStaleState(ctx context.Context, threshold time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM session_state WHERE updated_at < ?`, threshold.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) AppendLedger(ctx context.Context, sessionID string, payload []byte, checksum string) (*ports.LedgerRow, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO session_ledger (session_id, payload, checksum, replayed, created_at)
		 VALUES (?, ?, ?, 0, ?)`, sessionID, payload, checksum, now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &ports.LedgerRow{
		ID: id, SessionID: sessionID, Payload: payload, Checksum: checksum,
		Replayed: false, CreatedAt: now,
	}, nil
}

func (s *SQLiteStore) FetchLedger(ctx context.Context, sessionID string) ([]ports.LedgerRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, payload, checksum, replayed, created_at
		 FROM session_ledger WHERE session_id = ?`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ports.LedgerRow
	for rows.Next() {
		var r ports.LedgerRow
		var replayed int
		var created string
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Payload, &r.Checksum, &replayed, &created); err != nil {
			return nil, err
		}
		r.Replayed = replayed != 0
		t, err := time.Parse(time.RFC3339Nano, created)
		if err != nil {
			return nil, err
		}
		r.CreatedAt = t
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) MarkLedgerReplayed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args := buildInClause(`UPDATE session_ledger SET replayed = 1 WHERE id IN (`, ids)
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

func buildInClause(prefix string, ids []int64) (string, []any) {
	query := prefix
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			query += ","
		}
		query += "?"
		args[i] = id
	}
	query += ")"
	return query, args
}
