package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"lrcforge/internal/batch"
	"lrcforge/internal/eventbus"
	"lrcforge/internal/logging"
)

var (
	// ErrAlreadyRunning rejects a start while another batch's runner is still active.
	ErrAlreadyRunning = errors.New("a batch is already running")
	// ErrInvalidInput rejects a start with nothing to process.
	ErrInvalidInput = errors.New("invalid input")
	// ErrShuttingDown rejects a start after the manager's context has ended.
	ErrShuttingDown = errors.New("manager is shutting down")
)

// DefaultRecentEvents is how many history events Status includes.
const DefaultRecentEvents = 100

// Resolver turns user-supplied item names into batch items, dropping names
// whose source file is missing.
type Resolver interface {
	Resolve(names []string) ([]batch.Item, error)
}

// Config wires a Manager.
type Config struct {
	Bus          *eventbus.Bus
	Runner       *batch.Runner
	Resolver     Resolver
	Logger       *slog.Logger
	RecentEvents int
	Clock        func() time.Time
	NewID        func() string
}

// Manager is the single entry point for batch control. At most one batch runs
// at a time; a new batch is accepted only after the previous runner has exited.
type Manager struct {
	ctx      context.Context
	bus      *eventbus.Bus
	runner   *batch.Runner
	resolver Resolver
	logger   *slog.Logger
	recent   int
	now      func() time.Time
	newID    func() string

	mu      sync.Mutex
	current *batch.Batch
	wg      sync.WaitGroup
}

// Info describes an accepted batch.
type Info struct {
	ID    string
	Total int
}

// New constructs a manager. Runners are bound to ctx, which should live as
// long as the process.
func New(ctx context.Context, cfg Config) *Manager {
	m := &Manager{
		ctx:      ctx,
		bus:      cfg.Bus,
		runner:   cfg.Runner,
		resolver: cfg.Resolver,
		logger:   logging.NewComponentLogger(cfg.Logger, "task"),
		recent:   cfg.RecentEvents,
		now:      cfg.Clock,
		newID:    cfg.NewID,
	}
	if m.recent <= 0 {
		m.recent = DefaultRecentEvents
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.newID == nil {
		m.newID = func() string { return uuid.NewString() }
	}
	return m
}

// Start accepts items as a new batch and launches its runner. It returns
// ErrInvalidInput for an empty list and ErrAlreadyRunning while a previous
// runner is active.
func (m *Manager) Start(items []batch.Item, opts batch.Options) (Info, error) {
	if len(items) == 0 {
		return Info{}, fmt.Errorf("%w: no items to process", ErrInvalidInput)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx.Err() != nil {
		return Info{}, ErrShuttingDown
	}
	if m.current != nil {
		select {
		case <-m.current.Done():
		default:
			return Info{}, ErrAlreadyRunning
		}
	}

	b := batch.New(m.newID(), items, m.now())
	m.bus.Reset()
	m.current = b

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.runner.Run(m.ctx, b, opts)
	}()

	m.logger.Info("batch accepted",
		logging.String(logging.FieldBatchID, b.ID),
		logging.Int("items", len(items)),
	)
	return Info{ID: b.ID, Total: len(items)}, nil
}

// Submit resolves names through the configured resolver and starts a batch.
func (m *Manager) Submit(names []string, opts batch.Options) (Info, error) {
	if m.resolver == nil {
		return Info{}, errors.New("task: no resolver configured")
	}
	items, err := m.resolver.Resolve(names)
	if err != nil {
		return Info{}, err
	}
	if len(items) == 0 {
		return Info{}, fmt.Errorf("%w: no valid files selected", ErrInvalidInput)
	}
	return m.Start(items, opts)
}

// Cancel requests cancellation of the current batch. It returns false only
// when no batch has ever been started. batch_cancelled is published exactly
// once per batch; repeat calls and calls on a finished batch change nothing.
// The flag and the event are set under the same lock Start resets the bus
// with, so the event always lands in the cancelled batch's history.
func (m *Manager) Cancel() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.current
	if b == nil {
		return false
	}
	if b.RequestCancel() {
		m.bus.Publish(eventbus.BatchCancelled{})
		m.logger.Info("batch cancellation requested",
			logging.String(logging.FieldBatchID, b.ID),
			logging.String(logging.FieldItem, b.Snapshot().ItemName),
		)
	}
	return true
}

// Progress summarizes where the batch is.
type Progress struct {
	Current  int
	Total    int
	Phase    batch.Phase
	Item     string
	Duration time.Duration
}

// Status is a read-only view of the manager.
type Status struct {
	Running      bool
	BatchID      string
	Progress     Progress
	RecentEvents []eventbus.Event
	StartedAt    time.Time
	FinishedAt   time.Time
	SuccessCount int
	FailCount    int
	Cancelled    bool
	Items        []batch.Item
}

// Status reports the current or most recent batch. It never mutates state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	b := m.current
	m.mu.Unlock()

	status := Status{
		Progress:     Progress{Phase: batch.PhasePending},
		RecentEvents: m.bus.Recent(m.recent),
	}
	if b == nil {
		return status
	}

	snap := b.Snapshot()
	select {
	case <-b.Done():
	default:
		status.Running = true
	}
	status.BatchID = snap.ID
	status.StartedAt = snap.StartedAt
	status.FinishedAt = snap.FinishedAt
	status.SuccessCount = snap.SuccessCount
	status.FailCount = snap.FailCount
	status.Cancelled = snap.Cancelled
	status.Items = snap.Items
	status.Progress = Progress{
		Current: snap.Current,
		Total:   snap.Total,
		Phase:   snap.Phase,
		Item:    snap.ItemName,
	}
	if status.Running && !snap.ItemStartedAt.IsZero() {
		status.Progress.Duration = m.now().Sub(snap.ItemStartedAt)
	}
	return status
}

// Close ends every live subscription on the batch bus. Call it after Wait.
func (m *Manager) Close() {
	m.logger.Debug("closing batch event bus",
		logging.Int("subscribers", m.bus.Subscribers()),
		logging.Int("buffered_events", m.bus.Len()),
	)
	m.bus.Close()
}

// Events returns the full buffered history, oldest first.
func (m *Manager) Events() []eventbus.Event {
	return m.bus.Snapshot()
}

// Subscribe registers a live observer.
func (m *Manager) Subscribe() *eventbus.Subscription {
	return m.bus.Subscribe()
}

// Unsubscribe removes an observer. Safe to call more than once.
func (m *Manager) Unsubscribe(sub *eventbus.Subscription) {
	m.bus.Unsubscribe(sub)
}

// Wait blocks until every runner has exited or ctx ends.
func (m *Manager) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
