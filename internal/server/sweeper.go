package server

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/autoshop/internal/telemetry"
)

// DefaultSweepInterval is how often expired sessions are deleted.
const DefaultSweepInterval = time.Hour

// ExpiredSessionDeleter removes sessions past their expiry.
type ExpiredSessionDeleter interface {
	DeleteExpired(ctx context.Context) (int, error)
}

// SessionSweeper periodically deletes expired sessions.
type SessionSweeper struct {
	sessions ExpiredSessionDeleter
	interval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSessionSweeper creates a sweeper and starts its background goroutine,
// which runs until Stop is called.
func NewSessionSweeper(ctx context.Context, sessions ExpiredSessionDeleter, interval time.Duration) *SessionSweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	sweeperCtx, cancel := context.WithCancel(ctx)

	s := &SessionSweeper{
		sessions: sessions,
		interval: interval,
		ctx:      sweeperCtx,
		cancel:   cancel,
	}

	s.wg.Add(1)
	go s.loop()

	return s
}

// Stop gracefully stops the background goroutine.
func (s *SessionSweeper) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *SessionSweeper) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			log.Info().Msg("Session sweeper stopped")
			return

		case <-ticker.C:
			if _, err := s.Sweep(s.ctx); err != nil {
				log.Error().Err(err).Msg("Failed to delete expired sessions")
			}
		}
	}
}

// Sweep deletes expired sessions once and returns how many were removed.
func (s *SessionSweeper) Sweep(ctx context.Context) (int, error) {
	n, err := s.sessions.DeleteExpired(ctx)
	if err != nil {
		return 0, err
	}

	telemetry.GetMetrics().SessionsSweptTotal.Add(ctx, int64(n))
	log.Debug().Int("count", n).Msg("Deleted expired sessions")

	return n, nil
}
