package replaywf

import (
	"fmt"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
)

// Config holds the Temporal connection settings used to start a
// Manager. A zero TaskQueue falls back to the package's default
// TaskQueue constant.
type Config struct {
	HostPort  string
	Namespace string
	TaskQueue string
}

// Manager owns the Temporal client and worker lifecycle for the replay
// workflows. It is optional: a deployment that never constructs one
// still has full replay functionality through replay.Engine's
// synchronous Replay/ReplayBatch, called directly by internal/httpapi.
type Manager struct {
	client client.Client
	worker worker.Worker
	cfg    Config
}

// NewManager dials the configured Temporal server and registers the
// replay workflows and activities on a worker bound to cfg.TaskQueue.
func NewManager(cfg Config, activities *Activities) (*Manager, error) {
	if cfg.TaskQueue == "" {
		cfg.TaskQueue = TaskQueue
	}
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("replaywf: temporal client dial: %w", err)
	}

	w := worker.New(c, cfg.TaskQueue, worker.Options{})
	Register(w, activities)

	return &Manager{client: c, worker: w, cfg: cfg}, nil
}

// Start begins the worker polling for replay workflow tasks. Start
// itself does not block; the worker runs on its own goroutines.
func (m *Manager) Start() error {
	return m.worker.Start()
}

// Client returns the Temporal client, for callers that want to start
// replay workflows asynchronously rather than invoke replay.Engine
// synchronously.
func (m *Manager) Client() client.Client {
	return m.client
}

// TaskQueue returns the configured task queue name.
func (m *Manager) TaskQueue() string {
	return m.cfg.TaskQueue
}

// Stop gracefully stops the worker and closes the client.
func (m *Manager) Stop() {
	if m.worker != nil {
		m.worker.Stop()
	}
	if m.client != nil {
		m.client.Close()
	}
}
