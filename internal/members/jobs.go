package members

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Import job statuses.
const (
	JobRunning             = "running"
	JobCompleted           = "completed"
	JobCompletedWithErrors = "completed_with_errors"
	JobFailed              = "failed"
	JobCancelled           = "cancelled"
)

// ImportJob tracks the progress of a background import batch.
type ImportJob struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	Report      Report     `json:"report"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	cancel context.CancelFunc
}

// Jobs runs imports in the background and keeps their progress in memory.
type Jobs struct {
	importer *Importer
	log      *zap.Logger

	mu   sync.Mutex
	jobs map[string]*ImportJob
}

func NewJobs(importer *Importer, log *zap.Logger) *Jobs {
	return &Jobs{
		importer: importer,
		log:      log.Named("jobs"),
		jobs:     make(map[string]*ImportJob),
	}
}

// Start launches an import of ids and returns its job snapshot immediately.
// The job runs on its own context so it survives the request that started it.
func (j *Jobs) Start(ids []string) ImportJob {
	ctx, cancel := context.WithCancel(context.Background())
	job := &ImportJob{
		ID:        uuid.New().String(),
		Status:    JobRunning,
		Report:    Report{Total: len(ids)},
		StartedAt: time.Now(),
		cancel:    cancel,
	}

	j.mu.Lock()
	j.jobs[job.ID] = job
	snapshot := job.snapshot()
	j.mu.Unlock()

	go j.run(ctx, job, ids)
	return snapshot
}

func (j *Jobs) run(ctx context.Context, job *ImportJob, ids []string) {
	defer job.cancel()
	j.log.Info("import job starting", zap.String("job", job.ID), zap.Int("ids", len(ids)))

	report, err := j.importer.Run(ctx, ids, func(r Report) {
		j.mu.Lock()
		job.Report = r
		j.mu.Unlock()
	})

	now := time.Now()
	j.mu.Lock()
	job.Report = report
	job.CompletedAt = &now
	switch {
	case errors.Is(err, context.Canceled):
		job.Status = JobCancelled
	case err != nil:
		job.Status = JobFailed
		job.Error = err.Error()
	case report.Failed() > 0:
		job.Status = JobCompletedWithErrors
	default:
		job.Status = JobCompleted
	}
	status := job.Status
	j.mu.Unlock()

	j.log.Info("import job finished",
		zap.String("job", job.ID),
		zap.String("status", status),
		zap.Int("loaded", report.Loaded),
		zap.Int("failed", report.Failed()),
	)
}

// Get returns a copy of one job.
func (j *Jobs) Get(id string) (ImportJob, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	job, ok := j.jobs[id]
	if !ok {
		return ImportJob{}, false
	}
	return job.snapshot(), true
}

// List returns copies of every job, newest first.
func (j *Jobs) List() []ImportJob {
	j.mu.Lock()
	out := make([]ImportJob, 0, len(j.jobs))
	for _, job := range j.jobs {
		out = append(out, job.snapshot())
	}
	j.mu.Unlock()

	sort.Slice(out, func(a, b int) bool { return out[a].StartedAt.After(out[b].StartedAt) })
	return out
}

// Cancel stops a running job between member ids.
func (j *Jobs) Cancel(id string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	job, ok := j.jobs[id]
	if !ok || job.Status != JobRunning {
		return false
	}
	job.cancel()
	return true
}

// snapshot must be called with the registry lock held.
func (job *ImportJob) snapshot() ImportJob {
	c := *job
	c.Report = job.Report.clone()
	c.cancel = nil
	return c
}
