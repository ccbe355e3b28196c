// Package replay implements the Replay Engine: deterministic
// reconstruction of session state by applying ledger entries in order.
package replay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/relaycore/relaycore/internal/codec"
	"github.com/relaycore/relaycore/internal/ledger"
	"github.com/relaycore/relaycore/internal/repository"
)

// ErrLedgerReplay is returned for a checksum mismatch or an attempt to
// replay an already-replayed entry.
var ErrLedgerReplay = errors.New("replay: ledger entry invalid")

// BatchResult summarizes a replay_batch run.
type BatchResult struct {
	Replayed []SessionOutcome
	Skipped  []SessionSkip
}

// SessionOutcome records a successfully replayed session and how many
// entries were applied.
type SessionOutcome struct {
	SessionID string
	Count     int
}

// SessionSkip records a session skipped because replay failed.
type SessionSkip struct {
	SessionID string
	Reason    string
}

// Engine replays ledger entries against a Repository.
type Engine struct {
	ledger *ledger.Ledger
	repo   *repository.Repository
	logger *slog.Logger
}

// New constructs a replay Engine.
func New(l *ledger.Ledger, repo *repository.Repository, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{ledger: l, repo: repo, logger: logger}
}

// Replay fetches entries for session_id, sorted by created_at ascending,
// and applies each in order: reject if already replayed, recompute the
// SHA-256 over the payload bytes and reject on mismatch, decode and save.
// Entries are marked replayed in a single call after all are applied.
func (e *Engine) Replay(ctx context.Context, sessionID string) ([]ledger.Entry, error) {
	entries, err := e.ledger.FetchEntries(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}

	if err := EnsureIdempotency(entries); err != nil {
		return nil, err
	}

	applied := make([]ledger.Entry, 0, len(entries))
	ids := make([]int64, 0, len(entries))
	for _, entry := range entries {
		if err := validateChecksum(entry); err != nil {
			return nil, err
		}

		payload, err := codec.Decode(entry.Payload)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: decode: %v", ErrLedgerReplay, entry.ID, err)
		}
		if _, err := e.repo.Save(ctx, sessionID, payload); err != nil {
			return nil, fmt.Errorf("replay: apply entry %d: %w", entry.ID, err)
		}
		applied = append(applied, entry)
		ids = append(ids, entry.ID)
	}

	if err := e.ledger.MarkReplayed(ctx, ids); err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	return applied, nil
}

// ReplayBatch replays each session in sessionIDs independently, catching
// ErrLedgerReplay per session and summarizing outcomes.
func (e *Engine) ReplayBatch(ctx context.Context, sessionIDs []string) BatchResult {
	var result BatchResult
	for _, sessionID := range sessionIDs {
		applied, err := e.Replay(ctx, sessionID)
		if err != nil {
			e.logger.Warn("skipping session due to replay error", "session_id", sessionID, "error", err)
			result.Skipped = append(result.Skipped, SessionSkip{SessionID: sessionID, Reason: err.Error()})
			continue
		}
		result.Replayed = append(result.Replayed, SessionOutcome{SessionID: sessionID, Count: len(applied)})
	}
	return result
}

// EnsureIdempotency rejects entries that have already been replayed; it
// is the pre-check callers use to reject a double replay.
func EnsureIdempotency(entries []ledger.Entry) error {
	for _, entry := range entries {
		if entry.Replayed {
			return fmt.Errorf("%w: entry %d already replayed", ErrLedgerReplay, entry.ID)
		}
	}
	return nil
}

// validateChecksum recomputes SHA-256 over the entry's payload bytes and
// compares against the stored checksum. This is stricter than the
// reference replay, which only checks that a checksum is present; here a
// mismatch is rejected outright, guarding against storage corruption or
// tampering.
func validateChecksum(entry ledger.Entry) error {
	if entry.Checksum == "" {
		return fmt.Errorf("%w: entry %d missing checksum", ErrLedgerReplay, entry.ID)
	}
	want := codec.HashBytes(entry.Payload)
	if want != entry.Checksum {
		return fmt.Errorf("%w: entry %d checksum mismatch", ErrLedgerReplay, entry.ID)
	}
	return nil
}
