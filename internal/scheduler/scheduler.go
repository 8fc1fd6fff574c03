package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gookit/event"

	apperrors "imgshare-bot/internal/errors"
	"imgshare-bot/internal/metrics"
	"imgshare-bot/internal/publish"
	"imgshare-bot/internal/session"
)

// Event names fired on the shared event manager. Params: "job" (Job),
// plus "link" (string) on completion or "error" (error) on failure.
const (
	EventJobCompleted = "scheduler.job.completed"
	EventJobFailed    = "scheduler.job.failed"
	EventJobExpired   = "scheduler.job.expired"
)

// TimeLayout is the accepted schedule input format.
const TimeLayout = "2006-01-02 15:04"

// DefaultStaleAfter drops jobs that fire this long after their due time.
const DefaultStaleAfter = 24 * time.Hour

// ErrJobNotFound is returned when a job does not exist or belongs to
// another user.
var ErrJobNotFound = errors.New("scheduled job not found")

// Publisher runs one publish.
type Publisher interface {
	Publish(ctx context.Context, req publish.Request) (*publish.Result, error)
}

// Job is a deferred publish with its own copy of the session data.
type Job struct {
	ID        string
	OwnerID   int64
	ChatID    int64
	Snapshot  session.Snapshot
	FiresAt   time.Time
	CreatedAt time.Time
}

type entry struct {
	job   Job
	timer *time.Timer
}

// Scheduler keeps pending jobs in memory and fires each one exactly once.
// Whoever removes a job from the map owns its artifact.
type Scheduler struct {
	mu         sync.Mutex
	jobs       map[string]*entry
	publisher  Publisher
	events     *event.Manager
	release    func(path string) error
	staleAfter time.Duration
	loc        *time.Location
	now        func() time.Time
	afterFunc  func(d time.Duration, f func()) *time.Timer
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	logger     *slog.Logger
}

// New creates a scheduler. events may be nil.
func New(publisher Publisher, events *event.Manager, release func(path string) error,
	staleAfter time.Duration, loc *time.Location, logger *slog.Logger) *Scheduler {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	if loc == nil {
		loc = time.UTC
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		jobs:       make(map[string]*entry),
		publisher:  publisher,
		events:     events,
		release:    release,
		staleAfter: staleAfter,
		loc:        loc,
		now:        time.Now,
		afterFunc:  time.AfterFunc,
		ctx:        ctx,
		cancel:     cancel,
		logger:     logger,
	}
}

// Location is the timezone schedule input is read in.
func (s *Scheduler) Location() *time.Location {
	return s.loc
}

// ParseTime reads TimeLayout input in the scheduler's timezone and checks
// that it lies in the future.
func (s *Scheduler) ParseTime(input string) (time.Time, error) {
	return ParseTime(input, s.loc, s.now())
}

// ParseTime reads input as TimeLayout in loc. Times not after now are
// rejected with ErrPastTime, unparsable input with ErrInvalidTime.
func ParseTime(input string, loc *time.Location, now time.Time) (time.Time, error) {
	t, err := time.ParseInLocation(TimeLayout, strings.TrimSpace(input), loc)
	if err != nil {
		return time.Time{}, apperrors.ErrInvalidTime
	}
	if !t.After(now) {
		return time.Time{}, apperrors.ErrPastTime
	}
	return t, nil
}

// Schedule registers a job that publishes snap at firesAt. The job takes
// ownership of snap.ArtifactPath.
func (s *Scheduler) Schedule(snap session.Snapshot, firesAt time.Time) (Job, error) {
	now := s.now()
	if !firesAt.After(now) {
		return Job{}, apperrors.ErrPastTime
	}

	job := Job{
		ID:        uuid.NewString(),
		OwnerID:   snap.OwnerID,
		ChatID:    snap.ChatID,
		Snapshot:  snap,
		FiresAt:   firesAt,
		CreatedAt: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return Job{}, errors.New("scheduler stopped")
	}

	e := &entry{job: job}
	e.timer = s.afterFunc(firesAt.Sub(now), func() { s.fire(job.ID) })
	s.jobs[job.ID] = e
	metrics.PendingJobs.Inc()

	s.logger.Info("publish scheduled", "user_id", job.OwnerID, "job_id", job.ID, "fires_at", firesAt)
	return job, nil
}

// Cancel drops the job jobID owned by ownerID and releases its artifact.
func (s *Scheduler) Cancel(ownerID int64, jobID string) error {
	s.mu.Lock()
	e, ok := s.jobs[jobID]
	if !ok || e.job.OwnerID != ownerID {
		s.mu.Unlock()
		return ErrJobNotFound
	}
	delete(s.jobs, jobID)
	e.timer.Stop()
	s.mu.Unlock()

	metrics.PendingJobs.Dec()
	metrics.ScheduledJobs.WithLabelValues("cancelled").Inc()
	s.releaseArtifact(e.job)
	s.logger.Info("scheduled publish cancelled", "user_id", ownerID, "job_id", jobID)
	return nil
}

// List returns ownerID's pending jobs ordered by fire time.
func (s *Scheduler) List(ownerID int64) []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Job
	for _, e := range s.jobs {
		if e.job.OwnerID == ownerID {
			out = append(out, e.job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FiresAt.Before(out[j].FiresAt) })
	return out
}

// Len reports the number of pending jobs.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// fire runs job id. It never looks at the live session store.
func (s *Scheduler) fire(id string) {
	s.mu.Lock()
	e, ok := s.jobs[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	delete(s.jobs, id)
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	metrics.PendingJobs.Dec()
	job := e.job
	logger := s.logger.With("user_id", job.OwnerID, "job_id", job.ID)

	if late := s.now().Sub(job.FiresAt); late > s.staleAfter {
		logger.Warn("dropping stale scheduled publish", "late_by", late)
		s.releaseArtifact(job)
		metrics.ScheduledJobs.WithLabelValues("expired").Inc()
		s.emit(EventJobExpired, event.M{"job": job})
		return
	}

	res, err := s.publisher.Publish(s.ctx, publish.Request{
		OwnerID:      job.OwnerID,
		SourceRef:    job.Snapshot.SourceRef,
		ArtifactPath: job.Snapshot.ArtifactPath,
		Caption:      job.Snapshot.Caption,
	})
	if err != nil {
		metrics.ScheduledJobs.WithLabelValues("failed").Inc()
		s.emit(EventJobFailed, event.M{"job": job, "error": err})
		return
	}

	logger.Info("scheduled publish completed", "link", res.Link)
	metrics.ScheduledJobs.WithLabelValues("completed").Inc()
	s.emit(EventJobCompleted, event.M{"job": job, "link": res.Link})
}

func (s *Scheduler) emit(name string, params event.M) {
	if s.events == nil {
		return
	}
	if err, _ := s.events.Fire(name, params); err != nil {
		s.logger.Warn("event listener failed", "event", name, "error", err)
	}
}

func (s *Scheduler) releaseArtifact(job Job) {
	path := job.Snapshot.ArtifactPath
	if path == "" || s.release == nil {
		return
	}
	if err := s.release(path); err != nil {
		s.logger.Warn("failed to release artifact", "error", err, "job_id", job.ID, "path", path)
	}
}

// Stop cancels every pending job, releases their artifacts and waits for
// in-flight publishes to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	pending := make([]Job, 0, len(s.jobs))
	for id, e := range s.jobs {
		e.timer.Stop()
		pending = append(pending, e.job)
		delete(s.jobs, id)
	}
	s.cancel()
	s.mu.Unlock()

	for _, job := range pending {
		metrics.PendingJobs.Dec()
		s.releaseArtifact(job)
	}
	if len(pending) > 0 {
		s.logger.Warn("scheduler stopped with pending jobs", "count", len(pending))
	}
	s.wg.Wait()
}
