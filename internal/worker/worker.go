package worker

import (
	"fmt"
	"log/slog"
)

type Worker struct {
	pool       *jobChannelPool
	jobChannel chan Job
	log        *slog.Logger
}

func NewWorker(pool *jobChannelPool, log *slog.Logger) *Worker {
	return &Worker{
		pool:       pool,
		jobChannel: make(chan Job),
		log:        log,
	}
}

// Start parks the worker in the idle list and runs jobs until it is told to
// stop or the pool is closed.
func (w *Worker) Start() {
	go func() {
		for {
			if !w.pool.Release(w.jobChannel) {
				w.pool.retire(w.jobChannel)
				return
			}
			job := <-w.jobChannel
			if job.stop {
				w.pool.retire(w.jobChannel)
				return
			}
			job.finish(w.run(job))
		}
	}()
}

func (w *Worker) run(job Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			w.log.Error("job panicked", "key", job.Key, "panic", rec)
			err = fmt.Errorf("job panicked: %v", rec)
		}
	}()
	if err := job.Ctx.Err(); err != nil {
		return err
	}
	return job.Run(job.Ctx)
}
