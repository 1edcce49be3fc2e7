package worker

import (
	"Go_Drop/internal/service"
	"Go_Drop/model"
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Locker guards a sweep so that only one process runs it at a time.
type Locker interface {
	Lock(ctx context.Context) error
	Unlock(ctx context.Context) error
}

// RetiringLister lists retiring files whose next retry is due.
type RetiringLister interface {
	ListRetiring(ctx context.Context, dueBefore time.Time, limit int) ([]model.SharedFile, error)
}

// Sweeper periodically retries deletes of files stuck in retiring. It covers
// lost broker messages, exhausted retries and crashed lease holders.
type Sweeper struct {
	files    RetiringLister
	retirer  Retirer
	lock     Locker
	interval time.Duration
	batch    int
	logger   *zap.Logger
	now      func() time.Time
}

func NewSweeper(files RetiringLister, retirer Retirer, lock Locker, interval time.Duration, batch int, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if batch <= 0 {
		batch = 100
	}
	return &Sweeper{
		files:    files,
		retirer:  retirer,
		lock:     lock,
		interval: interval,
		batch:    batch,
		logger:   logger,
		now:      time.Now,
	}
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Warn("retire sweep failed", zap.Error(err))
			}
		}
	}
}

// SweepOnce retries every due retiring file and returns how many were retired.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	if s.lock != nil {
		if err := s.lock.Lock(ctx); err != nil {
			s.logger.Debug("retire sweep skipped", zap.Error(err))
			return 0, nil
		}
		defer func() {
			if err := s.lock.Unlock(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("release sweep lock", zap.Error(err))
			}
		}()
	}

	files, err := s.files.ListRetiring(ctx, s.now(), s.batch)
	if err != nil {
		return 0, err
	}
	retired := 0
	for _, f := range files {
		if ctx.Err() != nil {
			return retired, ctx.Err()
		}
		outcome, err := s.retirer.RetryDeletion(ctx, f.ID)
		if err != nil {
			s.logger.Warn("sweep retry failed",
				zap.String("file_id", f.ID),
				zap.Int("attempt", f.DeleteAttempts+1),
				zap.Error(err),
			)
			continue
		}
		if outcome == service.OutcomeRetired {
			retired++
		}
	}
	if len(files) > 0 {
		s.logger.Info("retire sweep finished", zap.Int("due", len(files)), zap.Int("retired", retired))
	}
	return retired, nil
}
