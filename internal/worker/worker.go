// Package worker — asynq-сервер фоновых задач плюс планировщик,
// который их периодически ставит.
package worker

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/Abhi773925/compiler-design-sub002/internal/metrics"
	"github.com/Abhi773925/compiler-design-sub002/internal/tasks"
)

type Sweeper interface {
	SweepExpired(ctx context.Context) (int64, error)
}

type Worker struct {
	srv       *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
}

// New собирает воркер: обработчик sweep-задачи и расписание её постановки.
// interval — cron-совместимая строка вида "@every 5m".
func New(redisAddr, interval string, sweeper Sweeper) (*Worker, error) {
	opt := asynq.RedisClientOpt{Addr: redisAddr}

	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: 2,
		Queues:      map[string]int{"default": 1},
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeSessionSweep, func(ctx context.Context, _ *asynq.Task) error {
		n, err := sweeper.SweepExpired(ctx)
		if err != nil {
			slog.Error("session sweep failed", "err", err)
			return err
		}
		if n > 0 {
			metrics.SessionsSweptTotal.Add(float64(n))
			slog.Info("expired sessions swept", "count", n)
		}
		return nil
	})

	scheduler := asynq.NewScheduler(opt, nil)
	if _, err := scheduler.Register(interval, tasks.NewSessionSweepTask()); err != nil {
		return nil, err
	}

	return &Worker{srv: srv, scheduler: scheduler, mux: mux}, nil
}

// Run запускает планировщик и сервер; блокирует до фатальной ошибки.
func (w *Worker) Run() error {
	if err := w.scheduler.Start(); err != nil {
		return err
	}
	return w.srv.Run(w.mux)
}

func (w *Worker) Shutdown() {
	w.scheduler.Shutdown()
	w.srv.Shutdown()
}
