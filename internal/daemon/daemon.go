package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"lrcforge/internal/config"
	"lrcforge/internal/history"
	"lrcforge/internal/library"
	"lrcforge/internal/logging"
	"lrcforge/internal/merge"
	"lrcforge/internal/task"
)

// Options wires a Daemon. Config, Tasks, Merger and Library are required;
// History may be nil when the ledger could not be opened.
type Options struct {
	Config  *config.Live
	Tasks   *task.Manager
	Merger  *merge.Merger
	Library *library.Library
	History *history.Store
	Logger  *slog.Logger
}

// Daemon owns the process lock and the HTTP API.
type Daemon struct {
	live    *config.Live
	tasks   *task.Manager
	merger  *merge.Merger
	library *library.Library
	history *history.Store
	logger  *slog.Logger

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running   atomic.Bool
	startedAt time.Time
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	StartedAt    time.Time
	LockFilePath string
	APIAddress   string
}

// New constructs a daemon with initialized dependencies.
func New(opts Options) (*Daemon, error) {
	if opts.Config == nil || opts.Tasks == nil || opts.Merger == nil || opts.Library == nil {
		return nil, errors.New("daemon requires config, task manager, merger, and library")
	}
	cfg := opts.Config.Current()
	lockPath := cfg.LockPath()
	d := &Daemon{
		live:     opts.Config,
		tasks:    opts.Tasks,
		merger:   opts.Merger,
		library:  opts.Library,
		history:  opts.History,
		logger:   logging.NewComponentLogger(opts.Logger, "daemon"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(d, cfg.Server)
	return d, nil
}

// Start acquires the daemon lock and begins serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another lrcforge daemon instance is already running")
	}

	if err := d.api.start(ctx); err != nil {
		_ = d.lock.Unlock()
		return err
	}

	d.startedAt = time.Now()
	d.running.Store(true)
	d.logger.Info("lrcforge daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.address()),
	)
	return nil
}

// Stop shuts the API down and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_unlock_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove the lock file if no daemon is running"),
			logging.String("lock", d.lockPath),
		)
	}
	d.running.Store(false)
	d.logger.Info("lrcforge daemon stopped")
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		StartedAt:    d.startedAt,
		LockFilePath: d.lockPath,
		APIAddress:   d.api.address(),
	}
}

// Handler exposes the API routes, mainly for tests.
func (d *Daemon) Handler() http.Handler {
	return d.api.handler
}
