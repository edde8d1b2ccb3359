package dispatcher

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// ErrLocked means another replica is running a dispatch.
var ErrLocked = errors.New("dispatch already running")

// Locker serializes runs across replicas. TryLock reports false when another
// holder owns the lock.
type Locker interface {
	TryLock(ctx context.Context) (unlock func(context.Context) error, ok bool, err error)
}

type Dispatcher interface {
	Run(ctx context.Context) (*Summary, error)
	SendTest(ctx context.Context, userID string) (*Summary, error)
}

type RunnerConfig struct {
	Tick     time.Duration
	Deadline time.Duration
}

type Runner struct {
	Log  *zap.Logger
	UC   Dispatcher
	Cfg  RunnerConfig
	Lock Locker
}

func NewRunner(log *zap.Logger, uc Dispatcher, cfg RunnerConfig, lock Locker) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Tick <= 0 {
		cfg.Tick = 5 * time.Minute
	}
	if cfg.Deadline <= 0 {
		cfg.Deadline = time.Minute
	}
	return &Runner{
		Log:  log.With(zap.String("component", "dispatcher.runner")),
		UC:   uc,
		Cfg:  cfg,
		Lock: lock,
	}
}

func (r *Runner) tick(ctx context.Context) {
	sum, err := r.RunOnce(ctx)
	switch {
	case errors.Is(err, ErrLocked):
		r.Log.Debug("run lock held elsewhere")
	case err != nil:
		r.Log.Warn("dispatch run error", zap.Error(err))
	case sum.Batches > 0:
		r.Log.Debug("dispatch run",
			zap.String("run_id", sum.RunID),
			zap.Int("batches", sum.Batches),
			zap.Int("sent", sum.Sent),
			zap.Int("results", len(sum.Results)),
		)
	}
}

// Run dispatches once immediately and then on every tick until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.Cfg.Tick)
	defer ticker.Stop()

	r.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// RunOnce executes a single deadline-bound run under the run lock.
func (r *Runner) RunOnce(ctx context.Context) (*Summary, error) {
	if r.Lock != nil {
		unlock, ok, err := r.Lock.TryLock(ctx)
		if err != nil {
			mRuns.WithLabelValues("error").Inc()
			return nil, err
		}
		if !ok {
			mRuns.WithLabelValues("skipped").Inc()
			return nil, ErrLocked
		}
		defer func() {
			uctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := unlock(uctx); err != nil {
				r.Log.Warn("release run lock", zap.Error(err))
			}
		}()
	}

	runCtx, cancel := context.WithTimeout(ctx, r.Cfg.Deadline)
	defer cancel()

	start := time.Now()
	sum, err := r.UC.Run(runCtx)
	mRunDur.Observe(time.Since(start).Seconds())
	if err != nil {
		mRuns.WithLabelValues("error").Inc()
		return nil, err
	}
	outcome := "ok"
	if sum.Batches == 0 {
		outcome = "empty"
	}
	mRuns.WithLabelValues(outcome).Inc()
	observeSummary(sum)
	return sum, nil
}

// SendTest runs a diagnostic push bound by the run deadline.
func (r *Runner) SendTest(ctx context.Context, userID string) (*Summary, error) {
	ctx, cancel := context.WithTimeout(ctx, r.Cfg.Deadline)
	defer cancel()
	return r.UC.SendTest(ctx, userID)
}
