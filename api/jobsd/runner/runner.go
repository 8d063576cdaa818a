package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
	cron "github.com/robfig/cron/v3"
	"github.com/textileio/minion/api/jobsd/model"
	"github.com/textileio/minion/api/jobsd/store"
	"github.com/textileio/minion/util"
)

var (
	log = logging.Logger("jobsd.runner")

	// ErrAlreadyRegistered indicates a worker exists for the kind.
	ErrAlreadyRegistered = errors.New("worker already registered for kind")

	// ErrTimeout is the attempt error of work that outlived its timeout.
	ErrTimeout = errors.New("timeout")

	// ErrCancelled is the attempt error of work interrupted by shutdown.
	ErrCancelled = errors.New("cancelled")
)

// Func does the work of one job.
type Func func(ctx context.Context, j *model.Job) error

// Store is the job storage the runner needs.
type Store interface {
	Create(ctx context.Context, kind, client, queue, args string) (*model.Job, error)
	Claim(ctx context.Context, queue string, kinds []string, limit int64) ([]*model.Job, error)
	MarkRunning(ctx context.Context, id string) (*model.Job, error)
	Release(ctx context.Context, id string) error
	Cancel(ctx context.Context, id string) error
	AddAttempt(ctx context.Context, id string, a *model.Attempt) error
}

type worker struct {
	fn      Func
	timeout time.Duration
}

// Runner polls the store for pending jobs of registered kinds and runs them
// on a fixed number of goroutines.
type Runner struct {
	config config
	store  Store

	lk      sync.RWMutex
	workers map[string]worker
	subs    []func(Event)

	cron    *cron.Cron
	queue   chan string
	started bool

	daemonCtx       context.Context
	daemonCtxCancel context.CancelFunc
	daemonWG        sync.WaitGroup
}

// New returns a Runner over store. Call Start to begin processing.
func New(s Store, opts ...Option) (*Runner, error) {
	config := defaultConfig
	for _, o := range opts {
		o(&config)
	}
	if config.concurrency < 1 {
		return nil, fmt.Errorf("concurrency must be positive: %d", config.concurrency)
	}
	if config.bufferSize < 1 {
		return nil, fmt.Errorf("buffer size must be positive: %d", config.bufferSize)
	}
	if config.pollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive: %s", config.pollInterval)
	}

	ctx, cls := context.WithCancel(context.Background())
	return &Runner{
		config:          config,
		store:           s,
		workers:         make(map[string]worker),
		cron:            cron.New(cron.WithSeconds()),
		queue:           make(chan string, config.bufferSize),
		daemonCtx:       ctx,
		daemonCtxCancel: cls,
	}, nil
}

// Register adds the worker for kind using the default timeout.
func (r *Runner) Register(kind string, fn Func) error {
	return r.RegisterWithTimeout(kind, 0, fn)
}

// RegisterWithTimeout adds the worker for kind. A timeout <= 0 uses the
// runner default.
func (r *Runner) RegisterWithTimeout(kind string, timeout time.Duration, fn Func) error {
	if kind == "" {
		return errors.New("kind is required")
	}
	if fn == nil {
		return errors.New("worker func is required")
	}
	r.lk.Lock()
	defer r.lk.Unlock()
	if _, ok := r.workers[kind]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, kind)
	}
	r.workers[kind] = worker{fn: fn, timeout: timeout}
	return nil
}

// Kinds returns the registered kinds.
func (r *Runner) Kinds() []string {
	r.lk.RLock()
	defer r.lk.RUnlock()
	kinds := make([]string, 0, len(r.workers))
	for k := range r.workers {
		kinds = append(kinds, k)
	}
	return kinds
}

func (r *Runner) worker(kind string) (worker, bool) {
	r.lk.RLock()
	defer r.lk.RUnlock()
	w, ok := r.workers[kind]
	return w, ok
}

// Enqueue creates a pending job in the runner's queue.
func (r *Runner) Enqueue(ctx context.Context, kind, client, args string) (*model.Job, error) {
	j, err := r.store.Create(ctx, kind, client, r.config.queue, args)
	if err != nil {
		return nil, err
	}
	r.notify(EventCreated, j.ID, j.Kind)
	return j, nil
}

// Schedule enqueues a job of kind on a cron schedule with a leading seconds field.
func (r *Runner) Schedule(schedule, kind, client, args string) (cron.EntryID, error) {
	return r.cron.AddFunc(schedule, func() {
		r.notify(EventScheduled, "", kind)
		ctx, cancel := context.WithTimeout(r.daemonCtx, time.Minute)
		defer cancel()
		if _, err := r.Enqueue(ctx, kind, client, args); err != nil {
			log.Errorf("enqueuing scheduled %s job: %s", kind, err)
		}
	})
}

// Unschedule removes a scheduled entry.
func (r *Runner) Unschedule(id cron.EntryID) {
	r.cron.Remove(id)
}

// Start launches the producer, the runners, and the scheduler.
func (r *Runner) Start() {
	r.lk.Lock()
	defer r.lk.Unlock()
	if r.started {
		return
	}
	r.started = true

	r.daemonWG.Add(1)
	go r.produce()
	for i := 0; i < r.config.concurrency; i++ {
		r.daemonWG.Add(1)
		go r.run(i)
	}
	r.cron.Start()
	log.Infof("runner started with %d workers on queue %s", r.config.concurrency, r.config.queue)
}

// Close stops the runner. Work in progress is cancelled and recorded as a
// failed attempt. Jobs claimed but not yet started go back to pending.
func (r *Runner) Close() error {
	r.daemonCtxCancel()
	<-r.cron.Stop().Done()
	r.daemonWG.Wait()

	for {
		select {
		case id := <-r.queue:
			r.requeue(id)
		default:
			log.Info("runner closed")
			return nil
		}
	}
}

// requeue returns a claimed job that never started to pending.
func (r *Runner) requeue(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.store.Release(ctx, id); err != nil {
		log.Errorf("releasing job %s: %s", id, err)
		return
	}
	log.Debugf("released unstarted job %s", id)
}

// produce claims pending jobs whenever the queue has room.
func (r *Runner) produce() {
	defer r.daemonWG.Done()
	for {
		select {
		case <-r.daemonCtx.Done():
			log.Info("producer closed")
			return
		case <-time.After(r.config.pollInterval):
			if err := r.claim(); err != nil && r.daemonCtx.Err() == nil {
				log.Errorf("claiming jobs: %s", err)
			}
		}
	}
}

func (r *Runner) claim() error {
	room := cap(r.queue) - len(r.queue)
	if room <= 0 {
		return nil
	}
	kinds := r.Kinds()
	if len(kinds) == 0 {
		return nil
	}
	jobs, err := r.store.Claim(r.daemonCtx, r.config.queue, kinds, int64(room))
	for _, j := range jobs {
		r.notify(EventQueued, j.ID, j.Kind)
		r.queue <- j.ID
	}
	return err
}

func (r *Runner) run(n int) {
	defer r.daemonWG.Done()
	for {
		select {
		case <-r.daemonCtx.Done():
			log.Debugf("runner %d closed", n)
			return
		case id := <-r.queue:
			if r.daemonCtx.Err() != nil {
				r.requeue(id)
				return
			}
			if err := r.runJob(id); err != nil {
				log.Errorf("runner %d: job %s: %s", n, id, err)
			}
		}
	}
}

func (r *Runner) runJob(id string) error {
	j, err := r.store.MarkRunning(r.daemonCtx, id)
	if errors.Is(err, store.ErrJobNotFound) {
		log.Debugf("job %s is no longer queued", id)
		return nil
	} else if err != nil {
		return fmt.Errorf("marking running: %s", err)
	}

	w, ok := r.worker(j.Kind)
	if !ok {
		if err := r.store.Cancel(r.daemonCtx, j.ID); err != nil {
			return fmt.Errorf("cancelling job: %s", err)
		}
		return fmt.Errorf("worker not found for kind: %s", j.Kind)
	}

	r.notify(EventStart, j.ID, j.Kind)
	a := &model.Attempt{StartedAt: time.Now().UTC()}
	stack, werr := r.work(w, j)
	a.Duration = time.Since(a.StartedAt).Seconds()
	if werr != nil {
		a.Status = model.StatusFailed
		a.Error = werr.Error()
		a.Stacktrace = stack
	} else {
		a.Status = model.StatusFinished
	}
	r.notify(EventFinish, j.ID, j.Kind)

	// The attempt is saved even when shutdown interrupted the work.
	ctx, cancel := context.WithTimeout(util.DetachedContext(r.daemonCtx), 10*time.Second)
	defer cancel()
	if err := r.store.AddAttempt(ctx, j.ID, a); err != nil {
		return fmt.Errorf("saving attempt: %s", err)
	}

	if werr != nil {
		r.notify(EventFail, j.ID, j.Kind)
		log.Warnf("job %s (%s) failed: %s", j.ID, j.Kind, werr)
	} else {
		r.notify(EventSuccess, j.ID, j.Kind)
	}
	return nil
}

// work runs fn under the worker timeout. A panic becomes an error with the
// goroutine stack.
func (r *Runner) work(w worker, j *model.Job) ([]string, error) {
	timeout := w.timeout
	if timeout <= 0 {
		timeout = r.config.timeout
	}
	ctx, cancel := context.WithTimeout(r.daemonCtx, timeout)
	defer cancel()

	type result struct {
		err   error
		stack []string
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				ch <- result{
					err:   fmt.Errorf("panic: %v", rec),
					stack: stackLines(debug.Stack()),
				}
			}
		}()
		ch <- result{err: w.fn(ctx, j)}
	}()

	select {
	case res := <-ch:
		if res.err != nil && ctx.Err() != nil && errors.Is(res.err, ctx.Err()) {
			return nil, r.interrupted()
		}
		return res.stack, res.err
	case <-ctx.Done():
		return nil, r.interrupted()
	}
}

func (r *Runner) interrupted() error {
	if r.daemonCtx.Err() != nil {
		return ErrCancelled
	}
	return ErrTimeout
}

func stackLines(b []byte) []string {
	var lines []string
	for _, l := range strings.Split(string(b), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}
