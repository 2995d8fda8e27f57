package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/redub/internal/app"
	"github.com/MrWong99/redub/internal/job"
	"github.com/MrWong99/redub/internal/pipeline"
)

// defaultMaxJobs bounds concurrent dub jobs when the configuration does not
// say otherwise. Dubbing is subprocess-heavy, so the default is conservative.
const defaultMaxJobs = 2

// task pairs a submitted job with its final record once the pipeline has
// finished. rec stays nil while the job is in flight.
type task struct {
	job *job.Job
	rec *pipeline.Record
}

// Tracker owns the lifecycle of jobs submitted through the MCP tools. It
// enforces the concurrency bound, runs each job's pipeline in its own
// goroutine, and serves status snapshots while jobs are still running.
// Finished jobs stay queryable until the server exits.
type Tracker struct {
	app     *app.App
	baseCtx context.Context // cancelled on shutdown so job goroutines stop

	mu      sync.Mutex
	tasks   map[string]*task
	cancels map[string]context.CancelFunc
	maxJobs int
	running int
}

// NewTracker creates a Tracker bounded to maxJobs concurrent jobs (values
// below one select [defaultMaxJobs]). baseCtx should be cancelled on shutdown
// so in-flight pipelines clean up their subprocesses.
func NewTracker(application *app.App, maxJobs int, baseCtx context.Context) *Tracker {
	if maxJobs < 1 {
		maxJobs = defaultMaxJobs
	}
	return &Tracker{
		app:     application,
		baseCtx: baseCtx,
		tasks:   make(map[string]*task),
		cancels: make(map[string]context.CancelFunc),
		maxJobs: maxJobs,
	}
}

// Submit creates a job and starts its pipeline in a goroutine, returning the
// job immediately. Progress is available through [Tracker.Status].
func (t *Tracker) Submit(sourcePath string, opts job.Options) (*job.Job, error) {
	t.mu.Lock()
	if t.running >= t.maxJobs {
		t.mu.Unlock()
		return nil, fmt.Errorf("mcpserver: max concurrent jobs reached (%d)", t.maxJobs)
	}
	t.running++
	t.mu.Unlock()

	j, err := t.app.NewJob(sourcePath, opts)
	if err != nil {
		t.mu.Lock()
		t.running--
		t.mu.Unlock()
		return nil, err
	}

	// Derive the goroutine context from baseCtx (cancelled on shutdown)
	// rather than the tool-call context, which the SDK cancels as soon as
	// the response is sent.
	runCtx, cancel := context.WithCancel(t.baseCtx)

	t.mu.Lock()
	t.tasks[j.ID] = &task{job: j}
	t.cancels[j.ID] = cancel
	t.mu.Unlock()

	go t.run(runCtx, j)

	return j, nil
}

// run drives one job's pipeline to completion and stores the final record.
func (t *Tracker) run(ctx context.Context, j *job.Job) {
	defer func() {
		t.mu.Lock()
		if cancel, ok := t.cancels[j.ID]; ok {
			cancel()
			delete(t.cancels, j.ID)
		}
		t.running--
		t.mu.Unlock()
	}()

	res, err := t.app.RunJob(ctx, j)
	if err != nil {
		slog.Warn("job failed", "job_id", j.ID, "error", err)
	}

	rec := pipeline.NewRecord(j, res)

	t.mu.Lock()
	t.tasks[j.ID].rec = &rec
	t.mu.Unlock()
}

// Status returns the record for a job: the final record once the pipeline
// has finished, or a live snapshot while it is still running. The second
// return reports whether the job is known.
func (t *Tracker) Status(id string) (pipeline.Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	tk, ok := t.tasks[id]
	if !ok {
		return pipeline.Record{}, false
	}
	if tk.rec != nil {
		return *tk.rec, true
	}
	j := tk.job
	return pipeline.Record{
		JobID:          j.ID,
		Status:         j.State(),
		SourcePath:     j.SourcePath,
		TargetLanguage: j.Options.TargetLanguage,
		Stages:         j.Stages(),
		Artifacts:      j.Artifacts(),
	}, true
}

// Cancel aborts a running job. It reports whether the job was known and
// still in flight; cancelling a finished or unknown job returns false.
func (t *Tracker) Cancel(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	cancel, ok := t.cancels[id]
	if ok {
		cancel()
	}
	return ok
}

// Running reports how many jobs are currently in flight.
func (t *Tracker) Running() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Ready is a readiness check that fails while the tracker is at capacity,
// so orchestrators stop routing new work here until a slot frees up.
func (t *Tracker) Ready(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running >= t.maxJobs {
		return fmt.Errorf("at capacity: %d of %d jobs running", t.running, t.maxJobs)
	}
	return nil
}
