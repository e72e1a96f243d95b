// Package jobstore owns the job lifecycle: it is the single writer of
// status, progress and attempt, enforces capacity, concurrency and
// rate-limit gates on dispatch, decides retry vs give-up with exponential
// backoff, and writes every committed mutation through to the snapshot
// store.
package jobstore

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"cardflow/internal/compose"
	"cardflow/internal/job"
	"cardflow/internal/parse"
	"cardflow/internal/store"
)

// Config tunes the scheduler gates and the retry policy.
type Config struct {
	// MaxOutstanding caps jobs in any non-terminal state; Enqueue beyond it
	// fails with job.ErrCapacityExceeded.
	MaxOutstanding int
	// Concurrency caps jobs claimed by workers at once.
	Concurrency int
	// StartsPerWindow caps job starts per RateWindow; 0 disables the gate.
	StartsPerWindow int
	RateWindow      time.Duration

	MaxAttempts int
	BackoffBase time.Duration
}

func (c *Config) normalize() {
	if c.MaxOutstanding <= 0 {
		c.MaxOutstanding = 100
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 3
	}
	if c.RateWindow <= 0 {
		c.RateWindow = time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 2 * time.Second
	}
}

// RetryDecision is the outcome of RecordFailure.
type RetryDecision struct {
	Retry bool
	// Delay before the job becomes eligible again; zero on give-up.
	Delay time.Duration
}

// Store is the in-memory authoritative job table plus scheduler state.
type Store struct {
	cfg       Config
	snapshots store.SnapshotStore
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	jobs     map[uuid.UUID]*job.Job
	pending  []uuid.UUID // FIFO among eligible queued jobs
	claimed  map[uuid.UUID]struct{}
	inflight int

	limiter *rate.Limiter
	wake    chan struct{}
}

// New builds a store over snapshots, restoring prior jobs. Jobs caught
// mid-flight at the previous shutdown are reset to queued with progress 0.
func New(ctx context.Context, cfg Config, snapshots store.SnapshotStore, logger *slog.Logger) (*Store, error) {
	cfg.normalize()
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		cfg:       cfg,
		snapshots: snapshots,
		logger:    logger,
		now:       time.Now,
		jobs:      make(map[uuid.UUID]*job.Job),
		claimed:   make(map[uuid.UUID]struct{}),
		wake:      make(chan struct{}, 1),
	}
	if cfg.StartsPerWindow > 0 {
		s.limiter = rate.NewLimiter(
			rate.Every(cfg.RateWindow/time.Duration(cfg.StartsPerWindow)),
			cfg.StartsPerWindow,
		)
	}
	if err := s.restore(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) restore(ctx context.Context) error {
	prior, err := s.snapshots.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("restore snapshots: %w", err)
	}
	for i := range prior {
		j := prior[i]
		if !j.Status.IsTerminal() && j.Status != job.StatusQueued {
			s.logger.Warn("resetting job interrupted mid-flight",
				"job_id", j.ID, "status", string(j.Status))
			j.Status = job.StatusQueued
			j.Progress = 0
			j.EligibleAt = s.now()
			s.persist(ctx, &j)
		}
		cp := j
		s.jobs[j.ID] = &cp
		if j.Status == job.StatusQueued {
			s.pending = append(s.pending, j.ID)
		}
	}
	if len(prior) > 0 {
		s.logger.Info("restored jobs from snapshots", "count", len(prior), "pending", len(s.pending))
	}
	return nil
}

// Wake returns the signal channel workers select on instead of busy-polling.
// One signal may coalesce several newly-eligible jobs.
func (s *Store) Wake() <-chan struct{} { return s.wake }

func (s *Store) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Enqueue creates a job in queued state and appends it to the pending set.
func (s *Store) Enqueue(ctx context.Context, payload job.Payload) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	outstanding := 0
	for _, j := range s.jobs {
		if !j.Status.IsTerminal() {
			outstanding++
		}
	}
	if outstanding >= s.cfg.MaxOutstanding {
		return uuid.Nil, fmt.Errorf("%w: %d outstanding", job.ErrCapacityExceeded, outstanding)
	}

	now := s.now()
	j := &job.Job{
		ID:         uuid.New(),
		Payload:    payload,
		Status:     job.StatusQueued,
		CreatedAt:  now,
		EligibleAt: now,
	}
	if err := s.snapshots.Save(ctx, *j); err != nil {
		return uuid.Nil, fmt.Errorf("persist new job: %w", err)
	}
	s.jobs[j.ID] = j
	s.pending = append(s.pending, j.ID)
	s.logger.Info("job enqueued", "job_id", j.ID, "image", payload.ImagePath)
	s.signal()
	return j.ID, nil
}

// DequeueNext claims the oldest eligible queued job, subject to the
// concurrency and rate gates. Returns false when nothing can start; callers
// wait on Wake or poll for backoff expiry.
func (s *Store) DequeueNext(ctx context.Context) (job.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inflight >= s.cfg.Concurrency {
		return job.Job{}, false
	}

	now := s.now()
	idx := -1
	for i, id := range s.pending {
		j, ok := s.jobs[id]
		if !ok || j.Status != job.StatusQueued {
			continue
		}
		if _, held := s.claimed[id]; held {
			continue
		}
		if j.EligibleAt.After(now) {
			continue
		}
		idx = i
		break
	}
	if idx < 0 {
		return job.Job{}, false
	}
	if s.limiter != nil && !s.limiter.AllowN(now, 1) {
		return job.Job{}, false
	}

	id := s.pending[idx]
	s.pending = append(s.pending[:idx], s.pending[idx+1:]...)
	s.claimed[id] = struct{}{}
	s.inflight++
	j := s.jobs[id]
	s.logger.Debug("job claimed", "job_id", id, "attempt", j.Attempt, "inflight", s.inflight)
	return j.Clone(), true
}

// UpdateStatus commits a forward status transition with a progress
// checkpoint. Out-of-order updates are rejected with job.ErrStaleTransition,
// never silently applied. Terminal states go through MarkSent/RecordFailure.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, status job.Status, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return job.ErrNotFound
	}
	if status.IsTerminal() {
		return fmt.Errorf("%w: terminal status %q must go through MarkSent or RecordFailure",
			job.ErrStaleTransition, status)
	}
	if status.Rank() <= j.Status.Rank() {
		return fmt.Errorf("%w: %s -> %s", job.ErrStaleTransition, j.Status, status)
	}
	if progress < j.Progress {
		return fmt.Errorf("%w: progress %d -> %d", job.ErrStaleTransition, j.Progress, progress)
	}
	j.Status = status
	j.Progress = progress
	s.persist(ctx, j)
	return nil
}

// AttachContact stores the parse result on the job.
func (s *Store) AttachContact(ctx context.Context, id uuid.UUID, rec parse.ContactRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return job.ErrNotFound
	}
	j.Contact = &rec
	s.persist(ctx, j)
	return nil
}

// AttachEmail stores the composed content on the job.
func (s *Store) AttachEmail(ctx context.Context, id uuid.UUID, content compose.EmailContent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return job.ErrNotFound
	}
	j.Email = &content
	s.persist(ctx, j)
	return nil
}

// MarkSent commits the terminal success: status sent, progress 100,
// completion timestamp, worker slot released.
func (s *Store) MarkSent(ctx context.Context, id uuid.UUID, deliveryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return job.ErrNotFound
	}
	if j.Status != job.StatusSending {
		return fmt.Errorf("%w: %s -> %s", job.ErrStaleTransition, j.Status, job.StatusSent)
	}
	now := s.now()
	j.Status = job.StatusSent
	j.Progress = 100
	j.DeliveryID = deliveryID
	j.ErrorMessage = ""
	j.CompletedAt = &now
	s.release(id)
	s.persist(ctx, j)
	s.logger.Info("job sent", "job_id", id, "delivery_id", deliveryID, "attempt", j.Attempt)
	s.signal()
	return nil
}

// RecordFailure applies the retry policy to a stage failure: retry with
// exponential backoff while the budget lasts, terminal failed afterwards.
func (s *Store) RecordFailure(ctx context.Context, id uuid.UUID, cause error) (RetryDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return RetryDecision{}, job.ErrNotFound
	}
	j.ErrorMessage = cause.Error()
	s.release(id)

	if j.Attempt < s.cfg.MaxAttempts-1 {
		delay := s.cfg.BackoffBase << uint(j.Attempt)
		j.Attempt++
		j.Status = job.StatusQueued
		j.Progress = 0
		j.Contact = nil
		j.Email = nil
		j.EligibleAt = s.now().Add(delay)
		s.pending = append(s.pending, id)
		s.persist(ctx, j)
		s.logger.Warn("job failed, will retry",
			"job_id", id, "attempt", j.Attempt, "delay", delay, "error", cause)
		s.signal()
		return RetryDecision{Retry: true, Delay: delay}, nil
	}

	now := s.now()
	j.Attempt++
	j.Status = job.StatusFailed
	j.CompletedAt = &now
	j.ErrorMessage = fmt.Sprintf("job failed after %d attempts: %s", j.Attempt, cause.Error())
	s.persist(ctx, j)
	s.logger.Error("job failed permanently", "job_id", id, "attempts", j.Attempt, "error", cause)
	s.signal()
	return RetryDecision{}, nil
}

// GetStatus returns a read-only snapshot reflecting the latest committed
// state.
func (s *Store) GetStatus(id uuid.UUID) (job.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return job.Job{}, job.ErrNotFound
	}
	return j.Clone(), nil
}

// List returns snapshots of every known job, oldest first.
func (s *Store) List() []job.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]job.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.Clone())
	}
	sortByCreatedAt(out)
	return out
}

// Retry re-queues a terminally failed job with a fresh attempt budget.
func (s *Store) Retry(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return job.ErrNotFound
	}
	if j.Status != job.StatusFailed {
		return fmt.Errorf("retry only valid for failed jobs, status is %q", j.Status)
	}
	j.Status = job.StatusQueued
	j.Progress = 0
	j.Attempt = 0
	j.ErrorMessage = ""
	j.Contact = nil
	j.Email = nil
	j.CompletedAt = nil
	j.EligibleAt = s.now()
	s.pending = append(s.pending, id)
	s.persist(ctx, j)
	s.logger.Info("job manually retried", "job_id", id)
	s.signal()
	return nil
}

// CancelIfQueued withdraws a job that no worker has claimed yet. Returns
// false once processing has started; claimed jobs run to stage completion.
func (s *Store) CancelIfQueued(ctx context.Context, id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok || j.Status != job.StatusQueued {
		return false
	}
	if _, held := s.claimed[id]; held {
		return false
	}
	for i, pid := range s.pending {
		if pid == id {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			break
		}
	}
	now := s.now()
	j.Status = job.StatusFailed
	j.ErrorMessage = "canceled"
	j.CompletedAt = &now
	s.persist(ctx, j)
	s.logger.Info("job canceled while queued", "job_id", id)
	return true
}

// release frees the worker slot held by id. Caller holds s.mu.
func (s *Store) release(id uuid.UUID) {
	if _, held := s.claimed[id]; held {
		delete(s.claimed, id)
		s.inflight--
	}
}

// persist writes the committed state through to the snapshot store.
// Durability failures after enqueue are logged, not propagated: the
// in-memory state remains authoritative for this process's lifetime.
func (s *Store) persist(ctx context.Context, j *job.Job) {
	if err := s.snapshots.Save(ctx, *j); err != nil {
		s.logger.Error("snapshot save failed", "job_id", j.ID, "error", err)
	}
}

func sortByCreatedAt(jobs []job.Job) {
	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].CreatedAt.Before(jobs[k].CreatedAt)
	})
}
