package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voyagen/channelfold/internal/cache"
	"github.com/voyagen/channelfold/internal/store"
)

// Job states recorded in JobStatus.
const (
	JobQueued  = "queued"
	JobRunning = "running"
	JobDone    = "done"
	JobFailed  = "failed"
)

const (
	jobStatusTTL   = 24 * time.Hour
	dequeueTimeout = 5 * time.Second
)

// JobStatus is the progress of a queued sync, kept in Redis under
// cache.SyncJobKey.
type JobStatus struct {
	Job      cache.SyncJob `json:"job"`
	State    string        `json:"state"`
	Progress SyncProgress  `json:"progress"`
	Report   *SyncReport   `json:"report,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// ConnectFunc returns an authenticated catalog client.
type ConnectFunc func(ctx context.Context) (Catalog, error)

// EnqueueSync queues a sync of the source's selected channels and returns the
// job's initial status.
func EnqueueSync(ctx context.Context, r *cache.Redis, sourceID, profileID int64) (JobStatus, error) {
	if profileID == 0 {
		return JobStatus{}, ErrNoProfile
	}
	job := cache.SyncJob{ID: uuid.NewString(), SourceID: sourceID, ProfileID: profileID, RequestedAt: time.Now().UTC()}
	status := JobStatus{Job: job, State: JobQueued}
	if err := cache.Set(ctx, r, cache.SyncJobKey(job.ID), status, jobStatusTTL); err != nil {
		return JobStatus{}, err
	}
	if err := cache.Enqueue(ctx, r, cache.SyncQueue, job); err != nil {
		return JobStatus{}, err
	}
	return status, nil
}

// GetJobStatus returns the status of a queued sync, or store.ErrNotFound.
func GetJobStatus(ctx context.Context, r *cache.Redis, id string) (JobStatus, error) {
	st, err := cache.Get[JobStatus](ctx, r, cache.SyncJobKey(id))
	if cache.IsMiss(err) {
		return JobStatus{}, store.ErrNotFound
	}
	return st, err
}

// Worker consumes queued sync jobs.
type Worker struct {
	Store        store.Store
	Redis        *cache.Redis
	Connect      ConnectFunc
	DefaultGroup string
	Log          *zap.Logger
}

// Run processes jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	log := w.logger()
	log.Info("sync worker started")
	for {
		if ctx.Err() != nil {
			log.Info("sync worker stopped")
			return nil
		}
		job, err := cache.Dequeue(ctx, w.Redis, cache.SyncQueue, dequeueTimeout)
		if err != nil {
			log.Error("dequeue failed", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		if job == nil {
			continue
		}
		w.Process(ctx, *job)
	}
}

// Process runs one job and records its outcome.
func (w *Worker) Process(ctx context.Context, job cache.SyncJob) JobStatus {
	log := w.logger().With(zap.String("job_id", job.ID), zap.Int64("source_id", job.SourceID))
	status := JobStatus{Job: job, State: JobRunning}
	w.save(ctx, status, log)

	report, err := w.run(ctx, job, func(p SyncProgress) {
		status.Progress = p
		w.save(ctx, status, log)
	})
	if err != nil {
		status.State = JobFailed
		status.Error = err.Error()
		log.Error("sync job failed", zap.Error(err))
	} else {
		status.State = JobDone
		log.Info("sync job done", zap.Int("created", report.Created), zap.Int("failed", report.Failed))
	}
	status.Report = &report
	w.save(ctx, status, log)
	return status
}

func (w *Worker) run(ctx context.Context, job cache.SyncJob, progress func(SyncProgress)) (SyncReport, error) {
	unlock, err := w.Redis.TryLock(ctx, cache.SourceLockKey(job.SourceID), lockTTL)
	if err != nil {
		return SyncReport{}, fmt.Errorf("lock source %d: %w", job.SourceID, err)
	}
	defer unlock()

	if w.Connect == nil {
		return SyncReport{}, errors.New("no catalog configured")
	}
	cat, err := w.Connect(ctx)
	if err != nil {
		return SyncReport{}, fmt.Errorf("connect catalog: %w", err)
	}
	return SyncSource(ctx, w.Store, cat, job.SourceID, SyncOptions{
		ProfileID:    job.ProfileID,
		DefaultGroup: w.DefaultGroup,
		Logger:       w.logger(),
		OnProgress:   progress,
	})
}

func (w *Worker) logger() *zap.Logger {
	if w.Log == nil {
		return zap.NewNop()
	}
	return w.Log.Named("worker")
}

func (w *Worker) save(ctx context.Context, status JobStatus, log *zap.Logger) {
	// Detached so the final status is recorded even when ctx was cancelled mid-job.
	if err := cache.Set(context.WithoutCancel(ctx), w.Redis, cache.SyncJobKey(status.Job.ID), status, jobStatusTTL); err != nil {
		log.Warn("saving job status failed", zap.Error(err))
	}
}
