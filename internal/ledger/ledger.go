// Package ledger implements the Session Ledger: a durable, append-only
// record of session-affecting events, each stamped with a content
// checksum and creation time.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/relaycore/relaycore/internal/codec"
	"github.com/relaycore/relaycore/internal/ports"
)

// Entry is the decoded, application-facing view of a ledger row.
type Entry struct {
	ID        int64
	SessionID string
	Payload   []byte
	Checksum  string
	Replayed  bool
	CreatedAt time.Time
}

// Ledger wraps a DurableStorePort's ledger half with the ordering and
// checksum guarantees of §4.3.
type Ledger struct {
	store ports.DurableStorePort
}

// New constructs a Ledger over the given durable store.
func New(store ports.DurableStorePort) *Ledger {
	return &Ledger{store: store}
}

// Append canonical-encodes payload, SHA-256s it, and inserts a row with
// replayed=0.
func (l *Ledger) Append(ctx context.Context, sessionID string, payload map[string]any) (Entry, error) {
	canon, err := codec.Canonicalize(payload)
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: canonicalize payload: %w", err)
	}
	checksum := codec.HashBytes(canon)

	row, err := l.store.AppendLedger(ctx, sessionID, canon, checksum)
	if err != nil {
		return Entry{}, fmt.Errorf("ledger: append: %w", err)
	}
	return fromRow(*row), nil
}

// FetchEntries loads all entries for a session, sorted by created_at
// ascending with id breaking ties. Sorting happens in application code
// rather than relying on the durable store's own ordering, matching the
// original reference's explicit sort.
func (l *Ledger) FetchEntries(ctx context.Context, sessionID string) ([]Entry, error) {
	rows, err := l.store.FetchLedger(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("ledger: fetch entries: %w", err)
	}

	entries := make([]Entry, len(rows))
	for i, row := range rows {
		entries[i] = fromRow(row)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		}
		return entries[i].ID < entries[j].ID
	})
	return entries, nil
}

// MarkReplayed sets replayed=1 for the given ids in one call. Empty
// input is a no-op.
func (l *Ledger) MarkReplayed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if err := l.store.MarkLedgerReplayed(ctx, ids); err != nil {
		return fmt.Errorf("ledger: mark replayed: %w", err)
	}
	return nil
}

func fromRow(row ports.LedgerRow) Entry {
	return Entry{
		ID: row.ID, SessionID: row.SessionID, Payload: row.Payload,
		Checksum: row.Checksum, Replayed: row.Replayed, CreatedAt: row.CreatedAt,
	}
}
