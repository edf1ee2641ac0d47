package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"identity-api/config"
	"identity-api/services/logging"
)

// Sweeper runs the background purge loop for expired and inactive refresh
// tokens: one catch-up pass at startup, then one pass per interval until the
// context injected at Start is cancelled. Cancellation is only observed
// between passes, never inside one.
type Sweeper struct {
	store    Store
	interval time.Duration
	logger   *logging.Service
	cancel   context.CancelFunc
	done     chan struct{}
}

// Store is the purge surface of the refresh token store.
type Store interface {
	CountPurgeable() (int64, error)
	PurgeExpiredOrInactive(db *gorm.DB) (int64, error)
}

func New(store Store, cfg *config.Config, logger *logging.Service) *Sweeper {
	return &Sweeper{
		store:    store,
		interval: cfg.RefreshToken.SweepInterval,
		logger:   logger,
	}
}

// Start spawns the loop. Stop cancels it.
func (s *Sweeper) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx)

	s.logger.Info("token sweeper started", zap.Duration("interval", s.interval))
}

// Stop cancels the loop and waits for it to drain, bounded by ctx.
func (s *Sweeper) Stop(ctx context.Context) error {
	if s.cancel == nil {
		return nil
	}
	s.cancel()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	// Catch-up pass for tokens that went stale while the process was down.
	if _, err := s.RunOnce(); err != nil {
		s.logger.Error("initial token sweep failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("token sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(); err != nil {
				// A failed pass is recoverable; the next tick retries.
				s.logger.Error("token sweep failed", zap.Error(err))
			}
		}
	}
}

// RunOnce executes a single count-then-purge pass. It is also the backing
// for the admin-triggered manual sweep.
func (s *Sweeper) RunOnce() (int64, error) {
	eligible, err := s.store.CountPurgeable()
	if err != nil {
		return 0, err
	}
	if eligible == 0 {
		s.logger.Debug("token sweep: nothing to purge")
		return 0, nil
	}

	s.logger.Info("token sweep starting", zap.Int64("eligible", eligible))

	purged, err := s.store.PurgeExpiredOrInactive(nil)
	if err != nil {
		return 0, err
	}

	return purged, nil
}
