// Package ports defines the narrow, storage-agnostic interfaces that the
// state repository and session ledger compose: an expiring key/value cache
// and a transactional relational store.
package ports

import (
	"context"
	"time"
)

// CachePort is an expiring key/value cache. Values are opaque bytes; TTLs
// are durations. Implementations must treat a missing key as (nil, false,
// nil), never as an error.
type CachePort interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	SetEX(ctx context.Context, key string, ttl time.Duration, value []byte) error
	Delete(ctx context.Context, key string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
}

// StateRow is the durable-store representation of a session_state row.
type StateRow struct {
	SessionID   string
	Payload     []byte
	PayloadHash string
	Version     int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// LedgerRow is the durable-store representation of a session_ledger row.
type LedgerRow struct {
	ID        int64
	SessionID string
	Payload   []byte
	Checksum  string
	Replayed  bool
	CreatedAt time.Time
}

// DurableStorePort is the transactional relational backend for session
// state and the session ledger. Implementations (SQLite for development,
// PostgreSQL for production) must serialize concurrent writes to the same
// session_id via a row lock, and must enforce the session_state primary
// key uniqueness constraint.
type DurableStorePort interface {
	// GetState returns the current row for session_id, or (nil, false) if
	// absent.
	GetState(ctx context.Context, sessionID string) (*StateRow, bool, error)
	// UpsertState performs the read-current/insert-or-update sequence
	// described in §4.2 within a single transaction, returning the
	// resulting row and whether a durable write actually occurred.
	UpsertState(ctx context.Context, sessionID string, payload []byte, payloadHash string) (row *StateRow, wrote bool, err error)
	// DeleteState removes the row for session_id. Deleting an absent row
	// is not an error.
	DeleteState(ctx context.Context, sessionID string) error
	// StateExists is a single-column existence check.
	StateExists(ctx context.Context, sessionID string) (bool, error)
	// PurgeStaleState deletes rows whose updated_at precedes threshold
	// and returns the number of rows removed.
	PurgeStaleState(ctx context.Context, threshold time.Time) (int64, error)

	// AppendLedger inserts a new session_ledger row with replayed=false
	// and returns it, including the durable-store-assigned id.
	AppendLedger(ctx context.Context, sessionID string, payload []byte, checksum string) (*LedgerRow, error)
	// FetchLedger returns every row for session_id in no particular
	// guaranteed order; callers sort explicitly.
	FetchLedger(ctx context.Context, sessionID string) ([]LedgerRow, error)
	// MarkLedgerReplayed flips replayed=true for the given ids in one
	// transaction. An empty slice is a no-op.
	MarkLedgerReplayed(ctx context.Context, ids []int64) error

	// Migrate creates the session_state and session_ledger tables and
	// their indexes if they do not already exist.
	Migrate(ctx context.Context) error
	// Close releases underlying connections.
	Close() error
}
