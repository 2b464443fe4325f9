package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Job is one unit of periodic work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Worker runs a Job on a fixed interval until stopped.
type Worker struct {
	job      Job
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
	doneChan chan struct{}
}

func NewWorker(job Job, interval time.Duration, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		job:      job,
		interval: interval,
		logger:   logger.With(zap.String("job", job.Name())),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
}

// Start blocks, running the job every interval, until ctx is cancelled or Stop is called.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	defer close(w.doneChan)

	w.logger.Info("worker started", zap.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped", zap.String("reason", "context cancelled"))
			return
		case <-w.stopChan:
			w.logger.Info("worker stopped", zap.String("reason", "stop requested"))
			return
		case <-ticker.C:
			start := time.Now()
			if err := w.job.Run(ctx); err != nil {
				w.logger.Error("job failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
			}
		}
	}
}

// Stop signals the loop and waits for it to exit.
func (w *Worker) Stop() {
	close(w.stopChan)
	<-w.doneChan
}
