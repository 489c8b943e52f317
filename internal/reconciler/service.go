// Package reconciler sweeps photos left unlinked by interrupted or
// compensated retouch completions.
package reconciler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lensmarket/api/internal/services"
)

// Purger is the slice of services.AssetStore the sweep needs.
type Purger interface {
	ListUnlinkedPhotos(ctx context.Context, before time.Time, limit int) ([]services.Photo, error)
	PurgeUnlinkedPhoto(ctx context.Context, photoID string, before time.Time) (services.PurgeOutcome, error)
}

// Config controls how often the sweep runs and how much work a pass takes on.
type Config struct {
	Interval    time.Duration
	GracePeriod time.Duration
	BatchSize   int
	Concurrency int
}

// Summary counts what one pass did.
type Summary struct {
	Scanned  int
	Deleted  int
	Relinked int
	Skipped  int
	Failed   int
}

// Service runs the sweep on a ticker. Each pass is safe to run alongside
// another instance because every purge re-checks the photo first.
type Service struct {
	assets Purger
	cfg    Config
	clock  func() time.Time
	logger *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source used to compute the grace cutoff.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger sets the logger for pass summaries and purge failures.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New validates cfg and returns a stopped Service.
func New(assets Purger, cfg Config, opts ...Option) (*Service, error) {
	if assets == nil {
		return nil, errors.New("reconciler: asset store is required")
	}
	if cfg.Interval <= 0 || cfg.GracePeriod <= 0 || cfg.BatchSize <= 0 || cfg.Concurrency <= 0 {
		return nil, errors.New("reconciler: interval, grace period, batch size and concurrency must be positive")
	}
	s := &Service{assets: assets, cfg: cfg, clock: time.Now, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RunOnce sweeps everything flagged before now minus the grace period. It
// keeps paging while a full batch made progress, so rows that keep failing
// cannot spin it forever.
func (s *Service) RunOnce(ctx context.Context) (Summary, error) {
	cutoff := s.clock().Add(-s.cfg.GracePeriod)
	var total Summary
	for {
		photos, err := s.assets.ListUnlinkedPhotos(ctx, cutoff, s.cfg.BatchSize)
		if err != nil {
			return total, err
		}
		batch := s.purgeBatch(ctx, photos, cutoff)
		total.Scanned += batch.Scanned
		total.Deleted += batch.Deleted
		total.Relinked += batch.Relinked
		total.Skipped += batch.Skipped
		total.Failed += batch.Failed

		if len(photos) < s.cfg.BatchSize || batch.Deleted+batch.Relinked == 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
	s.logger.Info("unlinked photo sweep finished",
		zap.Time("cutoff", cutoff),
		zap.Int("scanned", total.Scanned),
		zap.Int("deleted", total.Deleted),
		zap.Int("relinked", total.Relinked),
		zap.Int("skipped", total.Skipped),
		zap.Int("failed", total.Failed),
	)
	return total, nil
}

func (s *Service) purgeBatch(ctx context.Context, photos []services.Photo, cutoff time.Time) Summary {
	var deleted, relinked, skipped, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, photo := range photos {
		photoID := photo.ID
		g.Go(func() error {
			outcome, err := s.assets.PurgeUnlinkedPhoto(gctx, photoID, cutoff)
			if err != nil {
				failed.Add(1)
				s.logger.Warn("unlinked photo purge failed", zap.String("photo", photoID), zap.Error(err))
				// One bad row must not cancel its siblings.
				return nil
			}
			switch outcome {
			case services.PurgeOutcomeDeleted:
				deleted.Add(1)
			case services.PurgeOutcomeRelinked:
				relinked.Add(1)
			default:
				skipped.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	return Summary{
		Scanned:  len(photos),
		Deleted:  int(deleted.Load()),
		Relinked: int(relinked.Load()),
		Skipped:  int(skipped.Load()),
		Failed:   int(failed.Load()),
	}
}

// Start runs a pass immediately and then every Interval until Stop or ctx
// cancellation. Calling Start twice is a no-op.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("unlinked photo sweep failed", zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	s.logger.Info("reconciler started", zap.Duration("interval", s.cfg.Interval), zap.Duration("grace_period", s.cfg.GracePeriod))
}

// Stop cancels the loop and waits for the running pass, bounded by ctx.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
