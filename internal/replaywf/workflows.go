package replaywf

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	// TaskQueue is the default Temporal task queue for replay workflows.
	TaskQueue = "relaycore-replay"
)

var activityOptions = workflow.ActivityOptions{
	StartToCloseTimeout: 2 * time.Minute,
	RetryPolicy: &temporal.RetryPolicy{
		InitialInterval:    time.Second,
		BackoffCoefficient: 2.0,
		MaximumInterval:    30 * time.Second,
		MaximumAttempts:    5,
	},
}

// ReplaySessionWorkflow durably replays one session's ledger entries.
// Replay itself is idempotent (replayed entries are rejected on a
// re-run), so retrying the activity after a worker crash is safe.
func ReplaySessionWorkflow(ctx workflow.Context, in ReplaySessionInput) (ReplaySessionOutput, error) {
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	var out ReplaySessionOutput
	var a *Activities
	err := workflow.ExecuteActivity(ctx, a.ReplaySession, in).Get(ctx, &out)
	if err != nil {
		return ReplaySessionOutput{}, err
	}
	return out, nil
}

// ReplayBatchWorkflow durably replays many sessions, summarizing
// per-session outcomes the same way the synchronous engine does.
func ReplayBatchWorkflow(ctx workflow.Context, in ReplayBatchInput) (ReplayBatchOutput, error) {
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	var out ReplayBatchOutput
	var a *Activities
	err := workflow.ExecuteActivity(ctx, a.ReplayBatch, in).Get(ctx, &out)
	if err != nil {
		return ReplayBatchOutput{}, err
	}
	return out, nil
}
