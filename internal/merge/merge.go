package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"lrcforge/internal/config"
	"lrcforge/internal/eventbus"
	"lrcforge/internal/logging"
	"lrcforge/internal/media/command"
)

var (
	// ErrBusy rejects a start while another merge is running.
	ErrBusy = errors.New("a merge is already running")
	// ErrInvalidInput rejects requests with fewer than two sources or no output.
	ErrInvalidInput = errors.New("invalid merge request")
)

// MinSources is the smallest number of files worth merging.
const MinSources = 2

// State is the lifecycle of a merge job.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Request describes one merge.
type Request struct {
	Sources       []string
	Output        string
	DeleteSources bool
}

// Status is a snapshot of the current or most recent job.
type Status struct {
	JobID      string
	State      State
	Percent    int
	Message    string
	Output     string
	Files      int
	StartedAt  time.Time
	FinishedAt time.Time
	Error      string
}

// ConfigSource yields the active configuration.
type ConfigSource interface {
	Current() config.Config
}

// Option configures a Merger.
type Option func(*Merger)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec command.Executor) Option {
	return func(m *Merger) {
		if exec != nil {
			m.exec = exec
		}
	}
}

// WithLogger sets the merger logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Merger) { m.logger = logger }
}

// WithBus sets the event bus merge progress is published on.
func WithBus(bus *eventbus.Bus) Option {
	return func(m *Merger) { m.bus = bus }
}

// Merger runs at most one merge job at a time.
type Merger struct {
	ctx     context.Context
	source  ConfigSource
	exec    command.Executor
	bus     *eventbus.Bus
	logger  *slog.Logger
	sampler *logging.ProgressSampler

	mu     sync.Mutex
	status Status
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a merger whose jobs are bound to ctx.
func New(ctx context.Context, source ConfigSource, opts ...Option) *Merger {
	m := &Merger{
		ctx:     ctx,
		source:  source,
		exec:    command.OS{},
		sampler: logging.NewProgressSampler(20),
		status:  Status{State: StateIdle},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.bus == nil {
		m.bus = eventbus.New(eventbus.Options{Logger: m.logger})
	}
	m.logger = logging.NewComponentLogger(m.logger, "merge")
	return m
}

// OutputPath forces a .wav extension, since the job always writes PCM WAV.
func OutputPath(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		return path
	}
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".wav"
}

// Start validates req and launches the job.
func (m *Merger) Start(req Request) (Status, error) {
	if len(req.Sources) < MinSources {
		return Status{}, fmt.Errorf("%w: at least %d files required", ErrInvalidInput, MinSources)
	}
	if strings.TrimSpace(req.Output) == "" {
		return Status{}, fmt.Errorf("%w: output path required", ErrInvalidInput)
	}
	req.Output = OutputPath(req.Output)
	for _, src := range req.Sources {
		if filepath.Clean(src) == filepath.Clean(req.Output) {
			return Status{}, fmt.Errorf("%w: output overwrites source %s", ErrInvalidInput, filepath.Base(src))
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status.State == StateRunning {
		return Status{}, ErrBusy
	}

	ctx, cancel := context.WithCancel(m.ctx)
	m.cancel = cancel
	m.status = Status{
		JobID:     uuid.NewString(),
		State:     StateRunning,
		Output:    req.Output,
		Files:     len(req.Sources),
		StartedAt: time.Now(),
	}
	m.bus.Reset()
	m.sampler.Reset()
	snapshot := m.status

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		m.run(ctx, snapshot.JobID, req)
	}()
	return snapshot, nil
}

// Cancel terminates the running ffmpeg process group. It reports whether a job
// was running.
func (m *Merger) Cancel() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status.State != StateRunning || m.cancel == nil {
		return false
	}
	m.cancel()
	return true
}

// Status returns the current job snapshot.
func (m *Merger) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Events returns the buffered history of the current job.
func (m *Merger) Events() []eventbus.Event {
	return m.bus.Snapshot()
}

// Subscribe registers a live observer of merge events.
func (m *Merger) Subscribe() *eventbus.Subscription {
	return m.bus.Subscribe()
}

// Unsubscribe removes an observer.
func (m *Merger) Unsubscribe(sub *eventbus.Subscription) {
	m.bus.Unsubscribe(sub)
}

// Wait blocks until the running job exits or ctx ends.
func (m *Merger) Wait(ctx context.Context) error {
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

// Close ends every live subscription on the merge bus. Call it after Wait.
func (m *Merger) Close() {
	m.logger.Debug("closing merge event bus",
		logging.Int("subscribers", m.bus.Subscribers()),
		logging.Int("buffered_events", m.bus.Len()),
	)
	m.bus.Close()
}

func (m *Merger) run(ctx context.Context, jobID string, req Request) {
	logger := m.logger.With(logging.String("job_id", jobID))
	logger.Info("merge started", logging.Int("files", len(req.Sources)), logging.String("output", req.Output))

	err := m.merge(ctx, logger, req)
	switch {
	case err == nil:
		m.progress(logger, 100, "merge complete")
		if req.DeleteSources {
			deleteSources(logger, req.Sources)
		}
		m.finish(StateCompleted, "")
		m.bus.Publish(eventbus.MergeComplete{Success: true, Output: req.Output, Message: "merge complete"})
		logger.Info("merge finished", logging.String("output", req.Output))
	case ctx.Err() != nil:
		_ = os.Remove(req.Output)
		m.finish(StateCancelled, "merge cancelled")
		m.bus.Publish(eventbus.MergeComplete{Success: false, Message: "merge cancelled"})
		logger.Info("merge cancelled")
	default:
		_ = os.Remove(req.Output)
		m.finish(StateFailed, err.Error())
		m.bus.Publish(eventbus.MergeComplete{Success: false, Message: err.Error()})
		logging.WarnWithContext(logger, "merge failed", "merge_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "no merged output was written"),
			logging.String(logging.FieldErrorHint, "check that every source is a readable audio file"),
		)
	}
}

func (m *Merger) merge(ctx context.Context, logger *slog.Logger, req Request) error {
	cfg := m.source.Current()
	m.progress(logger, 10, fmt.Sprintf("preparing to merge %d files", len(req.Sources)))

	if err := os.MkdirAll(filepath.Dir(req.Output), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	list, err := os.CreateTemp("", "lrcforge-concat-*.txt")
	if err != nil {
		return fmt.Errorf("create file list: %w", err)
	}
	listPath := list.Name()
	defer func() { _ = os.Remove(listPath) }()
	if _, err := list.WriteString(ConcatList(req.Sources)); err != nil {
		list.Close()
		return fmt.Errorf("write file list: %w", err)
	}
	if err := list.Close(); err != nil {
		return fmt.Errorf("close file list: %w", err)
	}

	m.progress(logger, 20, "starting ffmpeg")
	m.progress(logger, 30, "merging audio files")

	lines := 0
	err = m.exec.Run(ctx, command.Spec{
		Binary: cfg.Transcription.FFmpegBinary,
		Args:   ConcatArgs(listPath, req.Output),
		OnStderr: func(line string) {
			lines++
			logger.Debug("ffmpeg", logging.String("line", line))
			if lines%5 == 0 {
				m.progress(logger, ProgressForLines(lines), "merging audio files")
			}
		},
	})
	if err != nil {
		return fmt.Errorf("ffmpeg concat: %w", err)
	}
	return nil
}

func (m *Merger) progress(logger *slog.Logger, percent int, message string) {
	m.mu.Lock()
	if percent <= m.status.Percent {
		m.mu.Unlock()
		return
	}
	m.status.Percent = percent
	m.status.Message = message
	shouldLog := m.sampler.ShouldLog(percent, "merge")
	m.mu.Unlock()

	m.bus.Publish(eventbus.MergeProgress{Percent: percent, Message: message})
	if shouldLog {
		logger.Info("merge progress", logging.Int("percent", percent), logging.String("message", message))
	}
}

func (m *Merger) finish(state State, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status.State = state
	m.status.FinishedAt = time.Now()
	if state != StateCompleted {
		m.status.Error = message
		m.status.Message = message
	}
}

// ProgressForLines maps ffmpeg stderr line count to 30..90 percent.
func ProgressForLines(lines int) int {
	return min(90, 30+lines*2)
}

// ConcatList renders the concat demuxer input, escaping single quotes.
func ConcatList(sources []string) string {
	var b strings.Builder
	for _, src := range sources {
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(src, "'", `'\''`))
		b.WriteString("'\n")
	}
	return b.String()
}

// ConcatArgs builds the ffmpeg invocation writing 16-bit 44.1 kHz PCM WAV.
func ConcatArgs(listPath, output string) []string {
	return []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c:a", "pcm_s16le",
		"-ar", "44100",
		"-y",
		output,
	}
}

func deleteSources(logger *slog.Logger, sources []string) {
	for _, src := range sources {
		if err := os.Remove(src); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.WarnWithContext(logger, "source not deleted after merge", "merge_cleanup_failed",
				logging.String("path", src),
				logging.Error(err),
				logging.String(logging.FieldImpact, "source file remains alongside merged output"),
			)
			continue
		}
		logger.Info("source deleted", logging.String("path", src))
	}
}
