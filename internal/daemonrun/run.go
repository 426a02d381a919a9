package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"lrcforge/internal/batch"
	"lrcforge/internal/config"
	"lrcforge/internal/daemon"
	"lrcforge/internal/deps"
	"lrcforge/internal/eventbus"
	"lrcforge/internal/history"
	"lrcforge/internal/library"
	"lrcforge/internal/logging"
	"lrcforge/internal/merge"
	"lrcforge/internal/phase"
	"lrcforge/internal/tagging"
	"lrcforge/internal/task"
	"lrcforge/internal/transcribe"
)

// shutdownGrace bounds how long Run waits for an in-flight item after a signal.
const shutdownGrace = 5 * time.Second

// Options configures daemon process runtime behavior.
type Options struct {
	ConfigPath string
	LogLevel   string
}

// Run starts the lrcforge daemon and blocks until SIGINT or SIGTERM.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if level := strings.TrimSpace(opts.LogLevel); level != "" {
		cfg.Logging.Level = level
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	logDependencySnapshot(logger, cfg)
	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	live := config.NewLive(cfg, opts.ConfigPath)
	if err := live.Watch(signalCtx, func(err error) {
		logging.WarnWithContext(logger, "config reload ignored", "config_reload_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "fix the config file; the previous settings stay active"),
		)
	}); err != nil {
		logging.WarnWithContext(logger, "config watch unavailable", "config_watch_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "edits to the config file require a restart"),
		)
	}

	store, err := history.Open(signalCtx, cfg.HistoryDBPath())
	if err != nil {
		logging.WarnWithContext(logger, "batch history unavailable", "history_open_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "finished batches will not be recorded"),
			logging.String(logging.FieldErrorHint, "check that paths.log_dir is writable"),
		)
		store = nil
	} else {
		defer store.Close()
	}

	tasks, merger, lib := buildServices(signalCtx, live, store, logger)

	d, err := daemon.New(daemon.Options{
		Config:  live,
		Tasks:   tasks,
		Merger:  merger,
		Library: lib,
		History: store,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	if err := d.Start(signalCtx); err != nil {
		return err
	}
	defer d.Stop()

	<-signalCtx.Done()
	logger.Info("lrcforge daemon shutting down")

	waitCtx, stop := context.WithTimeout(context.Background(), shutdownGrace)
	defer stop()
	if err := tasks.Wait(waitCtx); err != nil {
		logging.WarnWithContext(logger, "batch runner did not stop in time", "shutdown_timeout",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the current item may leave partial output"),
		)
	}
	_ = merger.Wait(waitCtx)
	tasks.Close()
	merger.Close()
	return nil
}

// buildServices wires the event bus, phase workers, runner, task manager and
// merger around the live config.
func buildServices(ctx context.Context, live *config.Live, store *history.Store, logger *slog.Logger) (*task.Manager, *merge.Merger, *library.Library) {
	cfg := live.Current()
	busOpts := eventbus.Options{
		HistorySize: cfg.Engine.HistorySize,
		OutboxSize:  cfg.Engine.OutboxSize,
		Logger:      logger,
	}
	bus := eventbus.New(busOpts)

	runnerCfg := batch.RunnerConfig{
		Bus:          bus,
		Transcriber:  transcribe.New(live, transcribe.WithLogger(logger)),
		Embedder:     tagging.New(live, tagging.WithLogger(logger)),
		Artifacts:    batch.FileArtifacts{},
		Phase1:       phase.NewWorker("transcribe", 1),
		Phase2:       phase.NewWorker("embed", cfg.Engine.Phase2Workers),
		PollInterval: cfg.PollInterval(),
		Logger:       logger,
	}
	if store != nil {
		runnerCfg.Recorder = store
	}

	lib := library.New(live)
	tasks := task.New(ctx, task.Config{
		Bus:      bus,
		Runner:   batch.NewRunner(runnerCfg),
		Resolver: lib,
		Logger:   logger,
	})
	merger := merge.New(ctx, live, merge.WithLogger(logger), merge.WithBus(eventbus.New(busOpts)))
	return tasks, merger, lib
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

var keyReplacer = strings.NewReplacer(" ", "_", ".", "_")

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "dependency_snapshot"),
		logging.String("model", cfg.Transcription.Model),
		logging.Bool("library_configured", cfg.LibraryConfigured()),
	}
	for _, status := range deps.CheckAll(cfg) {
		key := strings.ToLower(keyReplacer.Replace(status.Name))
		attrs = append(attrs, logging.Bool(key+"_available", status.Available))
		if !status.Available {
			attrs = append(attrs, logging.String(key+"_detail", status.Detail))
		}
	}
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
