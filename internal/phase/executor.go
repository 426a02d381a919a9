package phase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"lrcforge/internal/logging"
)

// MaxPollInterval bounds how long a callback may wait in the conduit before the
// caller replays it.
const MaxPollInterval = 100 * time.Millisecond

// ErrWorkerFailure marks an operation that panicked on its worker.
var ErrWorkerFailure = errors.New("worker failure")

// Worker is an execution context with a fixed number of slots. Operations
// submitted through Run wait for a free slot, so a one-slot worker runs its
// operations strictly one at a time across the process.
type Worker struct {
	name  string
	slots int64
	sem   *semaphore.Weighted
}

// NewWorker constructs a worker with the given slot count (minimum 1).
func NewWorker(name string, slots int) *Worker {
	if slots < 1 {
		slots = 1
	}
	return &Worker{name: name, slots: int64(slots), sem: semaphore.NewWeighted(int64(slots))}
}

// Name identifies the worker in logs.
func (w *Worker) Name() string { return w.name }

// Slots reports the worker's concurrency.
func (w *Worker) Slots() int { return int(w.slots) }

// Request describes one blocking operation and how its callbacks reach the caller.
type Request[T any] struct {
	// Op runs on a worker goroutine. Every emit call is queued and replayed on
	// the calling goroutine, in order, through OnEvent.
	Op func(ctx context.Context, emit func(T)) error
	// OnEvent receives replayed callbacks on the caller's goroutine.
	OnEvent func(T)
	// Cancelled is checked on every poll. Observing cancellation is logged but
	// does not interrupt Op.
	Cancelled func() bool
	// PollInterval caps replay latency; zero or values above MaxPollInterval use MaxPollInterval.
	PollInterval time.Duration
	Logger       *slog.Logger
}

// Run executes req.Op on w and blocks until it finishes, replaying its
// callbacks in emission order. Every callback emitted before Op returned is
// delivered before Run returns. A panic inside Op surfaces as ErrWorkerFailure.
func Run[T any](ctx context.Context, w *Worker, req Request[T]) error {
	if req.Op == nil {
		return errors.New("phase: nil operation")
	}
	logger := logging.NewComponentLogger(req.Logger, "phase").With(logging.String("worker", w.name))

	if err := w.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire %s worker: %w", w.name, err)
	}

	pipe := newConduit[T]()
	done := make(chan error, 1)
	go func() {
		defer w.sem.Release(1)
		var err error
		defer func() {
			if r := recover(); r != nil {
				logging.ErrorWithContext(logger, "operation panicked", "worker_panic",
					logging.String("panic", fmt.Sprint(r)),
					logging.String("stack", string(debug.Stack())),
				)
				err = fmt.Errorf("%w: operation terminated unexpectedly", ErrWorkerFailure)
			}
			done <- err
		}()
		err = req.Op(ctx, pipe.push)
	}()

	interval := req.PollInterval
	if interval <= 0 || interval > MaxPollInterval {
		interval = MaxPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	deliver := func() {
		for _, ev := range pipe.drain() {
			if req.OnEvent != nil {
				req.OnEvent(ev)
			}
		}
	}

	cancelSeen := false
	for {
		select {
		case err := <-done:
			deliver()
			return err
		case <-pipe.notify:
			deliver()
		case <-ticker.C:
			deliver()
			if !cancelSeen && req.Cancelled != nil && req.Cancelled() {
				cancelSeen = true
				logger.Info("cancellation requested; waiting for in-flight operation to finish")
			}
		}
	}
}

// conduit is an unbounded FIFO with a coalescing wakeup signal.
type conduit[T any] struct {
	mu     sync.Mutex
	items  []T
	notify chan struct{}
}

func newConduit[T any]() *conduit[T] {
	return &conduit[T]{notify: make(chan struct{}, 1)}
}

func (c *conduit[T]) push(v T) {
	c.mu.Lock()
	c.items = append(c.items, v)
	c.mu.Unlock()
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *conduit[T]) drain() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := c.items
	c.items = nil
	return items
}
