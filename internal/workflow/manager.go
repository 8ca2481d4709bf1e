package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sys/unix"

	"narrator/internal/logging"
	"narrator/internal/queue"
	"narrator/internal/services"
)

// finishedRetention is how many finished jobs stay queryable in memory.
const finishedRetention = 64

var (
	// ErrShuttingDown rejects submissions after Shutdown.
	ErrShuttingDown = errors.New("workflow manager shutting down")
	// ErrUnknownJob is returned for ids the manager does not track.
	ErrUnknownJob = errors.New("unknown job")
)

// Manager runs submitted jobs concurrently up to a fixed limit.
type Manager struct {
	orch         *Orchestrator
	sem          *semaphore.Weighted
	workRoot     string
	minFreeBytes uint64
	logger       *slog.Logger

	baseCtx   context.Context
	cancelAll context.CancelFunc
	wg        sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	jobs     map[string]*tracked
	finished []string
}

type tracked struct {
	job    *Job
	cancel context.CancelFunc
	done   chan struct{}
	result PipelineResult
}

// ManagerOptions configure a Manager.
type ManagerOptions struct {
	MaxConcurrent int
	// MinFreeDiskMB rejects submissions while the work root has less free space.
	MinFreeDiskMB int
	Logger        *slog.Logger
}

// NewManager constructs a manager around orch.
func NewManager(orch *Orchestrator, opts ManagerOptions) *Manager {
	limit := opts.MaxConcurrent
	if limit <= 0 {
		limit = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		orch:      orch,
		sem:       semaphore.NewWeighted(int64(limit)),
		workRoot:  orch.settings.WorkRoot,
		logger:    logging.NewComponentLogger(logger, "workflow-manager"),
		baseCtx:   ctx,
		cancelAll: cancel,
		jobs:      make(map[string]*tracked),
	}
	if opts.MinFreeDiskMB > 0 {
		m.minFreeBytes = uint64(opts.MinFreeDiskMB) * 1024 * 1024
	}
	return m
}

// Submit starts job in the background. It returns once the job is accepted;
// the job may still wait for a free slot.
func (m *Manager) Submit(job *Job) error {
	if err := m.checkDisk(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrShuttingDown
	}
	if _, exists := m.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already submitted", job.ID)
	}
	ctx, cancel := context.WithCancel(m.baseCtx)
	t := &tracked{job: job, cancel: cancel, done: make(chan struct{})}
	m.jobs[job.ID] = t
	m.wg.Add(1)
	go m.run(ctx, t)
	return nil
}

func (m *Manager) run(ctx context.Context, t *tracked) {
	defer m.wg.Done()
	defer t.cancel()
	if err := m.sem.Acquire(ctx, 1); err == nil {
		defer m.sem.Release(1)
	} else {
		m.logger.Debug("job cancelled before it started", logging.String(logging.FieldJobID, t.job.ID))
	}
	// A job cancelled while waiting still runs so its outcome is recorded.
	result := m.orch.Run(ctx, t.job)

	m.mu.Lock()
	t.result = result
	close(t.done)
	m.finished = append(m.finished, t.job.ID)
	for len(m.finished) > finishedRetention {
		delete(m.jobs, m.finished[0])
		m.finished = m.finished[1:]
	}
	m.mu.Unlock()
}

func (m *Manager) checkDisk() error {
	if m.minFreeBytes == 0 {
		return nil
	}
	var st unix.Statfs_t
	if err := unix.Statfs(m.workRoot, &st); err != nil {
		return services.Wrap(services.ErrConfiguration, "", "check disk", "stat work root "+m.workRoot, err)
	}
	free := st.Bavail * uint64(st.Bsize)
	if free < m.minFreeBytes {
		return services.Wrap(services.ErrConfiguration, "", "check disk",
			fmt.Sprintf("%d MB free under %s, need %d MB", free/1024/1024, m.workRoot, m.minFreeBytes/1024/1024), nil)
	}
	return nil
}

// Cancel requests cancellation of a running or waiting job.
func (m *Manager) Cancel(id string) error {
	m.mu.Lock()
	t, ok := m.jobs[id]
	m.mu.Unlock()
	if !ok {
		return ErrUnknownJob
	}
	select {
	case <-t.done:
		return fmt.Errorf("job %s already finished", id)
	default:
	}
	t.cancel()
	return nil
}

// Wait blocks until job id finishes or ctx ends.
func (m *Manager) Wait(ctx context.Context, id string) (PipelineResult, error) {
	m.mu.Lock()
	t, ok := m.jobs[id]
	m.mu.Unlock()
	if !ok {
		return PipelineResult{}, ErrUnknownJob
	}
	select {
	case <-t.done:
		m.mu.Lock()
		defer m.mu.Unlock()
		return t.result, nil
	case <-ctx.Done():
		return PipelineResult{}, ctx.Err()
	}
}

// Get returns a tracked job.
func (m *Manager) Get(id string) (*Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.jobs[id]
	if !ok {
		return nil, false
	}
	return t.job, true
}

// Active returns the jobs that have not finished, oldest first.
func (m *Manager) Active() []*Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Job
	for _, t := range m.jobs {
		if _, status := t.job.State(); status == queue.StatusPending || status == queue.StatusRunning {
			out = append(out, t.job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Shutdown rejects new jobs, cancels running ones and waits for them to
// record their outcome.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.cancelAll()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
