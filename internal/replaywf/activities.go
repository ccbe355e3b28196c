// Package replaywf exposes the replay engine's Replay/ReplayBatch
// operations as a Temporal workflow, for deployments that want
// crash-resumable replay orchestration layered on top of the ledger's
// own idempotent replay semantics (replay is safe to retry on its own;
// this package adds durable scheduling and visibility).
package replaywf

import (
	"context"
	"fmt"

	"github.com/relaycore/relaycore/internal/replay"
)

// Activities bundles the replay engine behind Temporal activity
// methods. One Activities value is registered per worker.
type Activities struct {
	Engine *replay.Engine
}

// ReplaySessionInput is the argument to ReplaySession.
type ReplaySessionInput struct {
	SessionID string
}

// ReplaySessionOutput reports how many ledger entries were applied.
type ReplaySessionOutput struct {
	SessionID      string
	EntriesApplied int
}

// ReplaySession runs replay.Engine.Replay for a single session.
func (a *Activities) ReplaySession(ctx context.Context, in ReplaySessionInput) (ReplaySessionOutput, error) {
	applied, err := a.Engine.Replay(ctx, in.SessionID)
	if err != nil {
		return ReplaySessionOutput{}, fmt.Errorf("replaywf: replay session %s: %w", in.SessionID, err)
	}
	return ReplaySessionOutput{SessionID: in.SessionID, EntriesApplied: len(applied)}, nil
}

// ReplayBatchInput is the argument to ReplayBatch.
type ReplayBatchInput struct {
	SessionIDs []string
}

// ReplayBatchOutput mirrors replay.BatchResult for workflow transport.
type ReplayBatchOutput struct {
	Replayed []replay.SessionOutcome
	Skipped  []replay.SessionSkip
}

// ReplayBatch runs replay.Engine.ReplayBatch across many sessions. It
// never returns an error itself: per-session failures are reported in
// the Skipped field, matching the engine's own catch-and-summarize
// behavior so the workflow never fails wholesale on one bad session.
func (a *Activities) ReplayBatch(ctx context.Context, in ReplayBatchInput) (ReplayBatchOutput, error) {
	result := a.Engine.ReplayBatch(ctx, in.SessionIDs)
	return ReplayBatchOutput{Replayed: result.Replayed, Skipped: result.Skipped}, nil
}
