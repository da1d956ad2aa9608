// Package sweep periodically auto-submits attempts whose time limit has passed.
// Attempts are also finalized lazily when read.
package sweep

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mind-engage/mindengage-quiz/internal/metrics"
)

// Expirer is implemented by quiz.Service.
type Expirer interface {
	ExpireStale(ctx context.Context, limit int) (int, error)
}

type Sweeper struct {
	svc     Expirer
	batch   int
	timeout time.Duration
	log     *slog.Logger
	cron    *cron.Cron
}

func New(svc Expirer, batch int, log *slog.Logger) *Sweeper {
	if batch <= 0 {
		batch = 200
	}
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{svc: svc, batch: batch, timeout: time.Minute, log: log}
}

// RunOnce drains expired attempts in batches until a batch comes back short.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := s.svc.ExpireStale(ctx, s.batch)
		total += n
		if err != nil || n < s.batch {
			metrics.SweepExpired(total)
			return total, err
		}
		if ctx.Err() != nil {
			metrics.SweepExpired(total)
			return total, ctx.Err()
		}
	}
}

// Start schedules RunOnce on a robfig/cron schedule such as "@every 1m". Overlapping runs are skipped.
func (s *Sweeper) Start(schedule string) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		n, err := s.RunOnce(ctx)
		if err != nil {
			s.log.Error("expiry sweep failed", "expired", n, "err", err)
			return
		}
		if n > 0 {
			s.log.Info("expiry sweep", "expired", n)
		}
	})
	if err != nil {
		return err
	}
	s.cron = c
	c.Start()
	s.log.Info("expiry sweep scheduled", "schedule", schedule, "batch", s.batch)
	return nil
}

// Stop waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}
