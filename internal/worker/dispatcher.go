package worker

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Config sizes the worker pool and its wait queue.
type Config struct {
	MinWorkers  int
	MaxWorkers  int
	QueueSize   int
	IdleTimeout time.Duration
	Logger      *slog.Logger
}

type keyQueue struct {
	jobs     []Job
	enqueued bool
}

// Dispatcher runs submitted tasks on a bounded, elastic worker pool. Waiting
// jobs are served round-robin across keys so one client cannot starve the
// others, and once QueueSize jobs are waiting new submissions are rejected
// with ErrDispatcherBusy.
type Dispatcher struct {
	pool     *jobChannelPool
	JobQueue chan Job // interface for outer jobs get in the dispatcher
	capacity int64
	waiting  atomic.Int64
	log      *slog.Logger

	stateMu sync.RWMutex
	stopped bool
	quit    chan struct{}
	done    chan struct{}

	mu        sync.Mutex
	queues    map[string]*keyQueue // job queue for each key
	ready     *list.List           // round-robin order of keys with work
	positions map[string]*list.Element
}

func NewDispatcher(cfg Config) *Dispatcher {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = 1
	}
	pool := newJobChannelPool(cfg.MinWorkers, cfg.MaxWorkers, cfg.IdleTimeout, log)

	d := &Dispatcher{
		pool:      pool,
		JobQueue:  make(chan Job, cfg.QueueSize),
		capacity:  int64(cfg.QueueSize),
		log:       log,
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		queues:    make(map[string]*keyQueue),
		ready:     list.New(),
		positions: make(map[string]*list.Element),
	}

	for i := 0; i < cfg.MinWorkers; i++ {
		d.pool.spawnWorker()
	}

	go d.run()
	return d
}

// Submit queues task under key and blocks until it has run or ctx is done.
// The task receives ctx.
func (d *Dispatcher) Submit(ctx context.Context, key string, task Task) error {
	job := Job{Key: key, Ctx: ctx, Run: task, done: make(chan error, 1)}

	d.stateMu.RLock()
	if d.stopped {
		d.stateMu.RUnlock()
		return ErrDispatcherStopped
	}
	if d.waiting.Add(1) > d.capacity {
		d.waiting.Add(-1)
		d.stateMu.RUnlock()
		return ErrDispatcherBusy
	}
	select {
	case d.JobQueue <- job:
	default:
		d.waiting.Add(-1)
		d.stateMu.RUnlock()
		return ErrDispatcherBusy
	}
	d.stateMu.RUnlock()

	select {
	case err := <-job.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Waiting reports how many submitted jobs have not reached a worker yet.
func (d *Dispatcher) Waiting() int {
	return int(d.waiting.Load())
}

// Close rejects new work, fails queued jobs with ErrDispatcherStopped and
// stops idle workers. Running jobs finish normally.
func (d *Dispatcher) Close() {
	d.stateMu.Lock()
	if d.stopped {
		d.stateMu.Unlock()
		return
	}
	d.stopped = true
	d.stateMu.Unlock()

	close(d.quit)
	d.pool.close()
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		// dispatch one job of the key at the front of the ready list
		if !d.dispatchOne() {
			select {
			case job := <-d.JobQueue:
				d.enqueueJob(job)
			case <-d.quit:
				d.drain()
				return
			}
			continue
		}
		select {
		case job := <-d.JobQueue:
			d.enqueueJob(job)
		case <-d.quit:
			d.drain()
			return
		default:
		}
	}
}

func (d *Dispatcher) enqueueJob(job Job) {
	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[job.Key]
	if q == nil {
		q = &keyQueue{}
		d.queues[job.Key] = q
	}
	q.jobs = append(q.jobs, job)
	if q.enqueued {
		return
	}
	q.enqueued = true
	d.positions[job.Key] = d.ready.PushBack(job.Key)
}

// dispatchOne takes the next job of the first key in the ready list and
// hands it to a worker, blocking until one is free.
func (d *Dispatcher) dispatchOne() bool {
	d.mu.Lock()
	elem := d.ready.Front()
	if elem == nil {
		d.mu.Unlock()
		return false
	}
	key := elem.Value.(string)
	q := d.queues[key]
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	if len(q.jobs) == 0 {
		q.enqueued = false
		d.ready.Remove(elem)
		delete(d.positions, key)
		delete(d.queues, key)
	} else {
		d.ready.MoveToBack(elem)
	}
	d.mu.Unlock()

	workerChan := d.pool.acquire()
	d.waiting.Add(-1)
	if workerChan == nil {
		job.finish(ErrDispatcherStopped)
		return true
	}
	d.log.Debug("dispatching job", "key", key)
	workerChan <- job
	return true
}

// drain fails every job that never reached a worker.
func (d *Dispatcher) drain() {
	for {
		select {
		case job := <-d.JobQueue:
			d.waiting.Add(-1)
			job.finish(ErrDispatcherStopped)
		default:
			d.mu.Lock()
			for key, q := range d.queues {
				for _, job := range q.jobs {
					d.waiting.Add(-1)
					job.finish(ErrDispatcherStopped)
				}
				delete(d.queues, key)
			}
			d.ready.Init()
			d.positions = make(map[string]*list.Element)
			d.mu.Unlock()
			return
		}
	}
}
