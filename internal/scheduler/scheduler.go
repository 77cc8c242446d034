// Package scheduler runs named jobs on fixed intervals.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/yakoovad/pr-daemon/pkg/logger"
	"go.uber.org/zap"
)

const DefaultInterval = time.Minute

// Job is run once on start and then on every tick of its interval. A tick never overlaps
// the previous tick of the same job; jobs run independently of each other.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

type Scheduler struct {
	jobs   []Job
	logger *zap.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started atomic.Bool
}

func New(l *zap.Logger, jobs ...Job) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	for i := range jobs {
		if jobs[i].Interval <= 0 {
			jobs[i].Interval = DefaultInterval
		}
	}
	return &Scheduler{
		jobs:   jobs,
		logger: l,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches one loop per job. Subsequent calls are no-ops.
func (s *Scheduler) Start() {
	if !s.started.CompareAndSwap(false, true) {
		s.logger.Warn("scheduler already started")
		return
	}

	s.wg.Add(len(s.jobs))
	for _, job := range s.jobs {
		s.logger.Info("scheduling job", zap.String("job", job.Name), zap.Duration("interval", job.Interval))
		go s.run(job)
	}
}

// Stop stops scheduling new ticks and waits for the running ones to return.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) run(job Job) {
	defer s.wg.Done()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	s.tick(job)

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.tick(job)
		}
	}
}

func (s *Scheduler) tick(job Job) {
	l := s.logger.With(zap.String("job", job.Name))
	ctx := logger.WithLogger(s.ctx, l)
	started := time.Now()

	err := safeRun(ctx, job.Run)
	if err != nil {
		l.Error("job failed", zap.Duration("elapsed", time.Since(started)), zap.Error(err))
		return
	}
	l.Debug("job finished", zap.Duration("elapsed", time.Since(started)))
}

func safeRun(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("job panicked: %v", r)
		}
	}()
	return fn(ctx)
}
