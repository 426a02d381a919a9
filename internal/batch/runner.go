package batch

import (
	"context"
	"log/slog"
	"time"

	"lrcforge/internal/eventbus"
	"lrcforge/internal/logging"
	"lrcforge/internal/lrc"
	"lrcforge/internal/phase"
)

// Transcriber produces the lyric artifact for an item, reporting each line as it is recognized.
type Transcriber interface {
	Transcribe(ctx context.Context, item Item, opts Options, onLine func(lrc.Line)) error
}

// Embedder produces the tagged output artifact for an item.
type Embedder interface {
	Embed(ctx context.Context, item Item, opts Options) error
}

// Artifacts answers whether a phase's output already exists.
type Artifacts interface {
	Exists(path string) bool
}

// Recorder receives the final snapshot of every batch.
type Recorder interface {
	RecordBatch(ctx context.Context, snap Snapshot) error
}

// RunnerConfig wires a Runner.
type RunnerConfig struct {
	Bus          *eventbus.Bus
	Transcriber  Transcriber
	Embedder     Embedder
	Artifacts    Artifacts
	Phase1       *phase.Worker
	Phase2       *phase.Worker
	PollInterval time.Duration
	Recorder     Recorder
	Logger       *slog.Logger
	Clock        func() time.Time
}

// Runner drives a batch through its items, one at a time, in submission order.
type Runner struct {
	bus         *eventbus.Bus
	transcriber Transcriber
	embedder    Embedder
	artifacts   Artifacts
	phase1      *phase.Worker
	phase2      *phase.Worker
	poll        time.Duration
	recorder    Recorder
	logger      *slog.Logger
	now         func() time.Time
}

// NewRunner constructs a runner. Phase workers default to one slot each.
func NewRunner(cfg RunnerConfig) *Runner {
	r := &Runner{
		bus:         cfg.Bus,
		transcriber: cfg.Transcriber,
		embedder:    cfg.Embedder,
		artifacts:   cfg.Artifacts,
		phase1:      cfg.Phase1,
		phase2:      cfg.Phase2,
		poll:        cfg.PollInterval,
		recorder:    cfg.Recorder,
		logger:      logging.NewComponentLogger(cfg.Logger, "batch"),
		now:         cfg.Clock,
	}
	if r.phase1 == nil {
		r.phase1 = phase.NewWorker("transcribe", 1)
	}
	if r.phase2 == nil {
		r.phase2 = phase.NewWorker("embed", 1)
	}
	if r.artifacts == nil {
		r.artifacts = FileArtifacts{}
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Run processes every item of b and closes b.Done when finished. Per-item
// failures are recorded and reported, never returned. Cancellation is observed
// between items; the item in flight always runs to completion.
func (r *Runner) Run(ctx context.Context, b *Batch, opts Options) {
	defer close(b.done)

	ctx = logging.WithBatch(ctx, b.ID)
	logger := logging.WithContext(ctx, r.logger)
	total := b.Len()
	logger.Info("batch started", logging.Int("items", total))

	aborted := false
	for i := 0; i < total; i++ {
		if b.CancelRequested() {
			logger.Info("batch cancelled before item", logging.Int("remaining", total-i))
			break
		}
		if ctx.Err() != nil {
			logging.WarnWithContext(logger, "batch aborted by shutdown", "batch_aborted",
				logging.Int("remaining", total-i),
				logging.String(logging.FieldImpact, "remaining items were not processed"),
				logging.String(logging.FieldErrorHint, "start the batch again after restart; finished items are skipped"),
			)
			aborted = true
			break
		}

		item := b.beginItem(i, r.now())
		r.bus.Publish(eventbus.Progress{
			Current: i + 1,
			Total:   total,
			Phase:   string(PhaseTranscribing),
			Item:    item.Name,
		})

		itemCtx := logging.WithItem(ctx, item.Name)
		message, err := r.processItem(itemCtx, b, item, opts, i+1, total)
		b.finishItem(i, err)
		if err != nil {
			logging.WarnWithContext(logging.WithContext(itemCtx, r.logger), "item failed", "item_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "item skipped; batch continues"),
				logging.String(logging.FieldErrorHint, "check the source file and external tool output"),
			)
			r.bus.Publish(eventbus.Error{Item: item.Name, Message: err.Error()})
			r.bus.Publish(eventbus.ItemComplete{Item: item.Name, Success: false, Message: err.Error()})
			continue
		}
		r.bus.Publish(eventbus.ItemComplete{Item: item.Name, Success: true, Message: message})
	}

	final := b.finish(r.now(), aborted)
	snap := b.Snapshot()
	if final == PhaseCompleted {
		r.bus.Publish(eventbus.BatchComplete{SuccessCount: snap.SuccessCount, FailCount: snap.FailCount})
	}
	logger.Info("batch finished",
		logging.String(logging.FieldPhase, string(final)),
		logging.Int("succeeded", snap.SuccessCount),
		logging.Int("failed", snap.FailCount),
		logging.Duration("elapsed", snap.FinishedAt.Sub(snap.StartedAt)),
	)

	if r.recorder != nil {
		if err := r.recorder.RecordBatch(context.WithoutCancel(ctx), snap); err != nil {
			logging.WarnWithContext(logger, "batch history not recorded", "history_write_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "batch missing from history listing"),
			)
		}
	}
}

func (r *Runner) processItem(ctx context.Context, b *Batch, item Item, opts Options, current, total int) (string, error) {
	logger := logging.WithContext(ctx, r.logger)
	transcribed, embedded := false, false

	if r.artifacts.Exists(item.LyricPath) {
		logger.Debug("lyrics already present; skipping transcription", logging.String("lyric_path", item.LyricPath))
	} else {
		b.setPhase(PhaseTranscribing)
		err := phase.Run(ctx, r.phase1, phase.Request[lrc.Line]{
			Op: func(ctx context.Context, emit func(lrc.Line)) error {
				return r.transcriber.Transcribe(ctx, item, opts, emit)
			},
			OnEvent: func(line lrc.Line) {
				r.bus.Publish(eventbus.Line{
					Item:     item.Name,
					Time:     line.Timestamp(),
					OffsetMS: line.Millis(),
					Text:     line.Text,
				})
			},
			Cancelled:    b.CancelRequested,
			PollInterval: r.poll,
			Logger:       logger,
		})
		if err != nil {
			return "", err
		}
		transcribed = true
		r.bus.Publish(eventbus.PhaseOneComplete{Item: item.Name})
	}

	if r.artifacts.Exists(item.OutputPath) {
		logger.Debug("output already present; skipping embedding", logging.String("output_path", item.OutputPath))
	} else {
		b.setPhase(PhaseEmbedding)
		r.bus.Publish(eventbus.Progress{
			Current:  current,
			Total:    total,
			Phase:    string(PhaseEmbedding),
			Item:     item.Name,
			Duration: r.now().Sub(b.itemStart()).Seconds(),
		})
		err := phase.Run(ctx, r.phase2, phase.Request[struct{}]{
			Op: func(ctx context.Context, _ func(struct{})) error {
				return r.embedder.Embed(ctx, item, opts)
			},
			Cancelled:    b.CancelRequested,
			PollInterval: r.poll,
			Logger:       logger,
		})
		if err != nil {
			return "", err
		}
		embedded = true
	}

	switch {
	case transcribed && embedded:
		return "transcribed and embedded", nil
	case embedded:
		return "embedded existing lyrics", nil
	case transcribed:
		return "transcribed; output already present", nil
	default:
		return "already processed", nil
	}
}
