// Package dispatch delivers alert messages with per-destination ordering and pacing.
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const DefaultPacing = 500 * time.Millisecond

var ErrClosed = errors.New("dispatcher closed")

type Sender interface {
	Send(ctx context.Context, destination, payload string) error
}

// Dispatcher runs one single-consumer worker per destination key. Workers are created on the
// first Enqueue for their key and live until Close. Different keys are delivered concurrently.
type Dispatcher struct {
	sender Sender
	pacing time.Duration
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu guards the worker map only; sends never run under it.
	mu      sync.Mutex
	workers map[string]*worker
	closed  bool
}

// Task is one queued delivery.
type Task struct {
	Destination string
	Payload     string
	EnqueuedAt  time.Time

	result chan error
}

func New(sender Sender, pacing time.Duration, l *zap.Logger) *Dispatcher {
	if l == nil {
		l = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		sender:  sender,
		pacing:  pacing,
		logger:  l.Named("dispatch"),
		ctx:     ctx,
		cancel:  cancel,
		workers: make(map[string]*worker),
	}
}

// Enqueue appends payload to the destination's queue. The returned channel receives exactly one
// value: nil on delivery, the send error otherwise, or ErrClosed if the dispatcher stopped first.
func (d *Dispatcher) Enqueue(destination, payload string) <-chan error {
	task := &Task{
		Destination: destination,
		Payload:     payload,
		EnqueuedAt:  time.Now(),
		result:      make(chan error, 1),
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		task.result <- ErrClosed
		return task.result
	}
	w, ok := d.workers[destination]
	if !ok {
		w = newWorker(destination)
		d.workers[destination] = w
		d.wg.Add(1)
		go d.run(w)
	}
	d.mu.Unlock()

	w.push(task)
	return task.result
}

// Close stops every worker. Queued tasks resolve with ErrClosed and in-flight sends are cancelled.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
}

// Destinations returns the number of live workers.
func (d *Dispatcher) Destinations() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.workers)
}

func (d *Dispatcher) run(w *worker) {
	defer d.wg.Done()
	defer w.drain(ErrClosed)

	l := d.logger.With(zap.String("destination", Redact(w.key)))

	for {
		task, ok := w.next(d.ctx)
		if !ok {
			return
		}

		err := d.send(task)
		if err != nil {
			l.Warn("delivery failed",
				zap.Duration("queued_for", time.Since(task.EnqueuedAt)),
				zap.Error(err))
		}
		task.result <- err

		if d.pacing <= 0 {
			continue
		}

		timer := time.NewTimer(d.pacing)
		select {
		case <-d.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (d *Dispatcher) send(task *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("sender panic: %v", r)
		}
	}()
	return d.sender.Send(d.ctx, task.Destination, task.Payload)
}

type worker struct {
	key  string
	wake chan struct{}

	mu     sync.Mutex
	queue  []*Task
	closed bool
}

func newWorker(key string) *worker {
	return &worker{
		key:  key,
		wake: make(chan struct{}, 1),
	}
}

func (w *worker) push(task *Task) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		task.result <- ErrClosed
		return
	}
	w.queue = append(w.queue, task)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// next blocks until a task is queued or ctx is done. A done ctx wins over queued tasks so
// they are left for drain.
func (w *worker) next(ctx context.Context) (*Task, bool) {
	for {
		if ctx.Err() != nil {
			return nil, false
		}

		w.mu.Lock()
		if len(w.queue) > 0 {
			task := w.queue[0]
			w.queue[0] = nil
			w.queue = w.queue[1:]
			w.mu.Unlock()
			return task, true
		}
		w.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, false
		case <-w.wake:
		}
	}
}

func (w *worker) drain(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed = true
	for _, task := range w.queue {
		task.result <- err
	}
	w.queue = nil
}
