// Package jobs runs the periodic maintenance tasks: sweeping expired
// revocation entries and expiring unpaid reservations. With Redis the
// tasks are scheduled through asynq so that only one replica runs each
// tick; without it a local ticker runs them in-process.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/iliyamo/event-gate/internal/logger"
)

const (
	TypeRevocationSweep = "revocation:sweep"
	TypeExpireHolds     = "ticket:expire-holds"
)

// Sweeper deletes revocation entries whose token has expired.
type Sweeper interface {
	SweepNow(ctx context.Context) (int64, error)
}

// RefreshPruner deletes refresh tokens past their expiry.
type RefreshPruner interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Expirer expires unpaid reservations past their hold.
type Expirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

// Handlers execute the maintenance tasks.
type Handlers struct {
	sweeper Sweeper
	expirer Expirer
	refresh RefreshPruner
	logger  *logger.Logger
	now     func() time.Time
}

// NewHandlers wires the handlers. refresh may be nil.
func NewHandlers(sweeper Sweeper, expirer Expirer, refresh RefreshPruner, logger *logger.Logger) *Handlers {
	return &Handlers{sweeper: sweeper, expirer: expirer, refresh: refresh, logger: logger, now: time.Now}
}

// HandleRevocationSweep is the asynq handler for TypeRevocationSweep. It
// also drops expired refresh tokens.
func (h *Handlers) HandleRevocationSweep(ctx context.Context, _ *asynq.Task) error {
	n, err := h.sweeper.SweepNow(ctx)
	if err != nil {
		return err
	}
	h.logger.Debug("revocation sweep done", "deleted", n)
	if h.refresh == nil {
		return nil
	}
	pruned, err := h.refresh.DeleteExpired(ctx, h.now())
	if err != nil {
		return fmt.Errorf("prune refresh tokens: %w", err)
	}
	h.logger.Debug("refresh tokens pruned", "deleted", pruned)
	return nil
}

// HandleExpireHolds is the asynq handler for TypeExpireHolds.
func (h *Handlers) HandleExpireHolds(ctx context.Context, _ *asynq.Task) error {
	n, err := h.expirer.ExpireStale(ctx)
	if err != nil {
		return err
	}
	h.logger.Debug("expire holds done", "expired", n)
	return nil
}

// Mux routes task types to handlers.
func (h *Handlers) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeRevocationSweep, h.HandleRevocationSweep)
	mux.HandleFunc(TypeExpireHolds, h.HandleExpireHolds)
	return mux
}

// Intervals are the task periods.
type Intervals struct {
	Sweep  time.Duration
	Expire time.Duration
}

func cronEvery(d time.Duration) string {
	return "@every " + d.String()
}

// taskServer and taskScheduler are the parts of asynq.Server and
// asynq.Scheduler the runner drives.
type taskServer interface {
	Start(handler asynq.Handler) error
	Shutdown()
}

type taskScheduler interface {
	Register(cronspec string, task *asynq.Task, opts ...asynq.Option) (string, error)
	Start() error
	Shutdown()
}

// Runner owns the asynq server and scheduler.
type Runner struct {
	server    taskServer
	scheduler taskScheduler
}

// Start registers the periodic tasks and starts processing them. Both
// tasks are unique for one period so overlapping ticks from several
// replicas collapse into one run.
func Start(redisOpt asynq.RedisClientOpt, h *Handlers, every Intervals) (*Runner, error) {
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 2,
		Queues:      map[string]int{"maintenance": 1},
	})
	return start(srv, func() taskScheduler { return asynq.NewScheduler(redisOpt, nil) }, h, every)
}

// start brings up the server first and builds the scheduler only once
// the server runs. Any later failure stops both before returning.
func start(srv taskServer, newScheduler func() taskScheduler, h *Handlers, every Intervals) (*Runner, error) {
	if err := srv.Start(h.Mux()); err != nil {
		return nil, fmt.Errorf("start asynq server: %w", err)
	}
	scheduler := newScheduler()
	fail := func(err error) (*Runner, error) {
		scheduler.Shutdown()
		srv.Shutdown()
		return nil, err
	}

	tasks := []struct {
		typ   string
		every time.Duration
	}{
		{TypeRevocationSweep, every.Sweep},
		{TypeExpireHolds, every.Expire},
	}
	for _, t := range tasks {
		if t.every <= 0 {
			continue
		}
		task := asynq.NewTask(t.typ, nil, asynq.Queue("maintenance"), asynq.Unique(t.every), asynq.MaxRetry(0))
		if _, err := scheduler.Register(cronEvery(t.every), task); err != nil {
			return fail(fmt.Errorf("schedule %s: %w", t.typ, err))
		}
	}
	if err := scheduler.Start(); err != nil {
		return fail(fmt.Errorf("start asynq scheduler: %w", err))
	}
	return &Runner{server: srv, scheduler: scheduler}, nil
}

// Shutdown stops scheduling and waits for running tasks.
func (r *Runner) Shutdown() {
	r.scheduler.Shutdown()
	r.server.Shutdown()
}

// RunLocal runs both tasks on tickers until ctx is done. It is the
// fallback when Redis is not available.
func RunLocal(ctx context.Context, h *Handlers, every Intervals) {
	tick := func(d time.Duration) <-chan time.Time {
		if d <= 0 {
			return nil
		}
		t := time.NewTicker(d)
		go func() {
			<-ctx.Done()
			t.Stop()
		}()
		return t.C
	}
	sweep, expire := tick(every.Sweep), tick(every.Expire)
	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep:
			if err := h.HandleRevocationSweep(ctx, nil); err != nil {
				h.logger.Error("revocation sweep failed", "error", err)
			}
		case <-expire:
			if err := h.HandleExpireHolds(ctx, nil); err != nil {
				h.logger.Error("expire holds failed", "error", err)
			}
		}
	}
}
