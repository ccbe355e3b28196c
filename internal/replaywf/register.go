package replaywf

import "go.temporal.io/sdk/worker"

// Register wires the replay workflows and activities into w.
func Register(w worker.Worker, activities *Activities) {
	w.RegisterWorkflow(ReplaySessionWorkflow)
	w.RegisterWorkflow(ReplayBatchWorkflow)
	w.RegisterActivity(activities)
}
