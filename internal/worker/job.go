package worker

import (
	"context"
	"errors"
)

var (
	// ErrDispatcherBusy is returned when the wait queue is full.
	ErrDispatcherBusy = errors.New("dispatcher busy")
	// ErrDispatcherStopped is returned for work submitted after Close.
	ErrDispatcherStopped = errors.New("dispatcher stopped")
)

// Task is a unit of work run on a pool worker.
type Task func(ctx context.Context) error

// Job carries a Task through the dispatcher. Key groups jobs for fair
// round-robin scheduling, usually one key per client.
type Job struct {
	Key  string
	Ctx  context.Context
	Run  Task
	done chan error
	stop bool
}

func (job Job) finish(err error) {
	if job.done != nil {
		job.done <- err
	}
}
