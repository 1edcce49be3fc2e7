package service

import (
	"Go_Drop/internal/metrics"
	"Go_Drop/internal/repo"
	"Go_Drop/internal/storage"
	"Go_Drop/model"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type RetirementOutcome int

const (
	OutcomeNotYetComplete RetirementOutcome = iota
	OutcomeRetired
	OutcomeAlreadyRetired
	// OutcomeDeletionFailed accompanies ErrDeletionFailed: the file stays
	// retiring and a retry has been scheduled.
	OutcomeDeletionFailed
	// OutcomeDeferred: the file is closed and its object is deleted later by
	// the sweeper.
	OutcomeDeferred
)

func (o RetirementOutcome) String() string {
	switch o {
	case OutcomeRetired:
		return "retired"
	case OutcomeAlreadyRetired:
		return "already_retired"
	case OutcomeDeletionFailed:
		return "deletion_failed"
	case OutcomeDeferred:
		return "deferred"
	default:
		return "not_yet_complete"
	}
}

// RetryScheduler arranges for a failed deletion to be attempted again.
// attempt is the number of failed deletes so far.
type RetryScheduler interface {
	ScheduleRetry(ctx context.Context, fileID string, attempt int) error
}

// NoopScheduler relies on the periodic sweeper to find retiring files.
type NoopScheduler struct{}

func (NoopScheduler) ScheduleRetry(context.Context, string, int) error { return nil }

type RetireOptions struct {
	DeleteTimeout time.Duration
	Lease         time.Duration
	RetryDelays   []time.Duration
	// Grace is how long a deferred retirement waits before the sweeper
	// deletes the object.
	Grace time.Duration
}

// Coordinator deletes the backing object of a completed file exactly once.
type Coordinator struct {
	store     repo.GrantStore
	blobs     storage.Store
	scheduler RetryScheduler
	opts      RetireOptions
	logger    *zap.Logger
	now       func() time.Time
}

// NewCoordinator creates a retirement coordinator.
func NewCoordinator(store repo.GrantStore, blobs storage.Store, scheduler RetryScheduler, opts RetireOptions, logger *zap.Logger) *Coordinator {
	if scheduler == nil {
		scheduler = NoopScheduler{}
	}
	if opts.DeleteTimeout <= 0 {
		opts.DeleteTimeout = 10 * time.Second
	}
	if opts.Lease < 2*opts.DeleteTimeout {
		opts.Lease = 2 * opts.DeleteTimeout
	}
	if opts.Grace <= 0 {
		opts.Grace = 15 * time.Minute
	}
	return &Coordinator{
		store:     store,
		blobs:     blobs,
		scheduler: scheduler,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
}

// PickRetryDelay returns the delay before retry number attempt (1-based).
// Attempts past the end of delays reuse the last delay.
func PickRetryDelay(attempt int, delays []time.Duration) time.Duration {
	if len(delays) == 0 {
		return time.Minute
	}
	if attempt <= 0 {
		return delays[0]
	}
	if attempt > len(delays) {
		return delays[len(delays)-1]
	}
	return delays[attempt-1]
}

// RetireIfComplete retires fileID when all of its grants are consumed. Only
// the caller that wins the active to retiring transition deletes the object.
func (c *Coordinator) RetireIfComplete(ctx context.Context, fileID string) (RetirementOutcome, error) {
	file, err := c.loadFile(ctx, fileID)
	if err != nil {
		return OutcomeNotYetComplete, err
	}
	switch file.State {
	case model.FileStateRetiring, model.FileStateRetired:
		return c.finish(fileID, OutcomeAlreadyRetired, nil)
	}
	if !file.IsComplete() {
		return c.finish(fileID, OutcomeNotYetComplete, nil)
	}

	won, err := c.store.BeginRetirement(ctx, fileID, c.opts.Lease)
	if err != nil {
		return OutcomeNotYetComplete, fmt.Errorf("%w: begin retirement: %w", ErrPersistence, err)
	}
	if !won {
		return c.finish(fileID, OutcomeAlreadyRetired, nil)
	}
	return c.deleteObject(ctx, file)
}

// DeferRetirement closes a complete file without deleting its object yet.
// The sweeper deletes it once the grace period has passed. It is used when
// the last recipient was handed a storage URL instead of the object itself.
func (c *Coordinator) DeferRetirement(ctx context.Context, fileID string) (RetirementOutcome, error) {
	file, err := c.loadFile(ctx, fileID)
	if err != nil {
		return OutcomeNotYetComplete, err
	}
	switch file.State {
	case model.FileStateRetiring, model.FileStateRetired:
		return c.finish(fileID, OutcomeAlreadyRetired, nil)
	}
	if !file.IsComplete() {
		return c.finish(fileID, OutcomeNotYetComplete, nil)
	}

	retryAt := c.now().Add(c.opts.Grace)
	won, err := c.store.DeferRetirement(ctx, fileID, retryAt)
	if err != nil {
		return OutcomeNotYetComplete, fmt.Errorf("%w: defer retirement: %w", ErrPersistence, err)
	}
	if !won {
		return c.finish(fileID, OutcomeAlreadyRetired, nil)
	}
	c.logger.Info("retirement deferred", zap.String("file_id", fileID), zap.Time("next_retry_at", retryAt))
	return c.finish(fileID, OutcomeDeferred, nil)
}

// RetryDeletion re-attempts the delete of a retiring file. It returns
// OutcomeAlreadyRetired when the file is retired or another worker holds its
// lease.
func (c *Coordinator) RetryDeletion(ctx context.Context, fileID string) (RetirementOutcome, error) {
	file, err := c.loadFile(ctx, fileID)
	if err != nil {
		return OutcomeNotYetComplete, err
	}
	switch file.State {
	case model.FileStateRetired:
		return c.finish(fileID, OutcomeAlreadyRetired, nil)
	case model.FileStateActive:
		return c.finish(fileID, OutcomeNotYetComplete, nil)
	}

	claimed, err := c.store.ClaimRetry(ctx, fileID, c.opts.Lease)
	if err != nil {
		return OutcomeNotYetComplete, fmt.Errorf("%w: claim retry: %w", ErrPersistence, err)
	}
	if !claimed {
		return c.finish(fileID, OutcomeAlreadyRetired, nil)
	}
	return c.deleteObject(ctx, file)
}

func (c *Coordinator) loadFile(ctx context.Context, fileID string) (*model.SharedFile, error) {
	file, err := c.store.GetFile(ctx, fileID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load file: %w", ErrPersistence, err)
	}
	return file, nil
}

// deleteObject runs with the lease held.
func (c *Coordinator) deleteObject(ctx context.Context, file *model.SharedFile) (RetirementOutcome, error) {
	dctx, cancel := context.WithTimeout(ctx, c.opts.DeleteTimeout)
	err := c.blobs.RemoveObject(dctx, file.StorageKey)
	cancel()
	if err != nil {
		return c.recordFailure(ctx, file, err)
	}

	// The object is gone; finishing must not depend on the caller staying around.
	retired, err := c.store.MarkRetired(context.WithoutCancel(ctx), file.ID)
	if err != nil {
		return OutcomeNotYetComplete, fmt.Errorf("%w: mark retired: %w", ErrPersistence, err)
	}
	if !retired {
		return c.finish(file.ID, OutcomeAlreadyRetired, nil)
	}
	c.logger.Info("file retired", zap.String("file_id", file.ID))
	return c.finish(file.ID, OutcomeRetired, nil)
}

func (c *Coordinator) recordFailure(ctx context.Context, file *model.SharedFile, cause error) (RetirementOutcome, error) {
	metrics.DeleteFailures.Inc()
	attempt := file.DeleteAttempts + 1
	next := c.now().Add(PickRetryDelay(attempt, c.opts.RetryDelays))
	bg := context.WithoutCancel(ctx)

	if err := c.store.MarkDeleteFailed(bg, file.ID, cause.Error(), next); err != nil {
		c.logger.Error("record delete failure",
			zap.String("file_id", file.ID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	if err := c.scheduler.ScheduleRetry(bg, file.ID, attempt); err != nil {
		c.logger.Warn("schedule retry, leaving it to the sweeper",
			zap.String("file_id", file.ID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	c.logger.Warn("delete object failed",
		zap.String("file_id", file.ID),
		zap.Int("attempt", attempt),
		zap.Time("next_retry_at", next),
		zap.Error(cause),
	)
	return c.finish(file.ID, OutcomeDeletionFailed, fmt.Errorf("%w: %w", ErrDeletionFailed, cause))
}

func (c *Coordinator) finish(fileID string, outcome RetirementOutcome, err error) (RetirementOutcome, error) {
	metrics.Retirements.WithLabelValues(outcome.String()).Inc()
	c.logger.Debug("retirement outcome", zap.String("file_id", fileID), zap.Stringer("outcome", outcome))
	return outcome, err
}
