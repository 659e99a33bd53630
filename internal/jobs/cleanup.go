package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shoesfit/partner-server-go/internal/config"
	"github.com/shoesfit/partner-server-go/internal/obs"
)

// RefreshSweeper is satisfied by *service.RefreshLedger.
type RefreshSweeper interface {
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

type CleanupJob struct {
	refreshTokens RefreshSweeper
	interval      time.Duration
	timeout       time.Duration
	now           func() time.Time
	done          chan struct{}
	stopOnce      sync.Once
	wg            sync.WaitGroup
}

func NewCleanupJob(refreshTokens RefreshSweeper, interval time.Duration) *CleanupJob {
	return &CleanupJob{
		refreshTokens: refreshTokens,
		interval:      interval,
		timeout:       config.CleanupJobTimeout,
		now:           time.Now,
		done:          make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	j.wg.Add(1)
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("cleanup job started")
}

// Stop ends the loop and waits for a sweep in progress to finish.
func (j *CleanupJob) Stop() {
	j.stopOnce.Do(func() {
		close(j.done)
		j.wg.Wait()
		log.Info().Msg("cleanup job stopped")
	})
}

func (j *CleanupJob) run() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	now := j.now()
	j.runCleanup(ctx, "expired refresh tokens", func(ctx context.Context) (int64, error) {
		count, err := j.refreshTokens.SweepExpired(ctx, now)
		if err == nil {
			obs.ObserveSweep(count)
		}
		return count, err
	})
}

func (j *CleanupJob) runCleanup(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to cleanup %s", name)
	} else if count > 0 {
		log.Info().Int64("count", count).Msgf("cleaned up %s", name)
	}
}
