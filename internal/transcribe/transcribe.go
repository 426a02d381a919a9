package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"lrcforge/internal/batch"
	"lrcforge/internal/config"
	"lrcforge/internal/logging"
	"lrcforge/internal/lrc"
	"lrcforge/internal/media/command"
	"lrcforge/internal/media/ffprobe"
)

// ConfigSource yields the active configuration.
type ConfigSource interface {
	Current() config.Config
}

// Service runs phase one for a single item.
type Service struct {
	source  ConfigSource
	exec    command.Executor
	tempDir string
	logger  *slog.Logger
}

// Option configures the service.
type Option func(*Service)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec command.Executor) Option {
	return func(s *Service) {
		if exec != nil {
			s.exec = exec
		}
	}
}

// WithTempDir sets where intermediate WAV files are written.
func WithTempDir(dir string) Option {
	return func(s *Service) { s.tempDir = dir }
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// New constructs a transcription service reading binaries and the model
// directory from source on every call.
func New(source ConfigSource, opts ...Option) *Service {
	s := &Service{source: source, exec: command.OS{}}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "transcribe")
	return s
}

// Transcribe writes item.LyricPath, calling onLine for each recognized line in
// order. A failure leaves no partial LRC behind.
func (s *Service) Transcribe(ctx context.Context, item batch.Item, opts batch.Options, onLine func(lrc.Line)) error {
	cfg := s.source.Current()
	logger := logging.WithContext(ctx, s.logger)

	probe, err := ffprobe.Inspect(ctx, s.exec, ffprobe.BinaryFor(cfg.Transcription.FFmpegBinary), item.SourcePath)
	if err != nil {
		return fmt.Errorf("transcribe: %w", err)
	}
	if probe.AudioStreamCount() == 0 {
		return fmt.Errorf("transcribe: %s has no audio stream", filepath.Base(item.SourcePath))
	}

	workDir, err := os.MkdirTemp(s.tempDir, "lrcforge-transcribe-*")
	if err != nil {
		return fmt.Errorf("transcribe: create work dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	wav := filepath.Join(workDir, "audio.wav")
	if err := s.exec.Run(ctx, command.Spec{
		Binary: cfg.Transcription.FFmpegBinary,
		Args:   ExtractArgs(item.SourcePath, wav),
	}); err != nil {
		return fmt.Errorf("transcribe: extract audio: %w", err)
	}

	cfg.Transcription.Model = opts.Model
	model := cfg.ModelPath()
	logger.Info("transcription started",
		logging.String("model", opts.Model),
		logging.String("language", opts.Language),
		logging.Duration("audio_duration", probe.Duration()),
	)

	started := time.Now()
	var lines []lrc.Line
	err = s.exec.Run(ctx, command.Spec{
		Binary: cfg.Transcription.WhisperBinary,
		Args:   WhisperArgs(model, wav, opts),
		OnStdout: func(raw string) {
			line, ok := ParseSegment(raw)
			if !ok {
				return
			}
			lines = append(lines, line)
			if onLine != nil {
				onLine(line)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("transcribe: whisper: %w", err)
	}

	if err := lrc.WriteFile(item.LyricPath, lines); err != nil {
		return fmt.Errorf("transcribe: write lyrics: %w", err)
	}
	logger.Info("transcription finished",
		logging.Int("lines", len(lines)),
		logging.Duration("elapsed", time.Since(started)),
		logging.String("lyric_path", item.LyricPath),
	)
	return nil
}

// ExtractArgs converts source to the 16 kHz mono PCM WAV whisper.cpp expects.
func ExtractArgs(source, dest string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-vn",
		"-sn",
		"-dn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		dest,
	}
}

// WhisperArgs builds the whisper-cli invocation.
func WhisperArgs(model, wav string, opts batch.Options) []string {
	language := strings.TrimSpace(opts.Language)
	if language == "" {
		language = "auto"
	}
	args := []string{"-m", model, "-f", wav, "-l", language}
	if opts.Threads > 0 {
		args = append(args, "-t", strconv.Itoa(opts.Threads))
	}
	if prompt := strings.TrimSpace(opts.Prompt); prompt != "" {
		args = append(args, "--prompt", prompt)
	}
	return args
}

var (
	segmentPattern    = regexp.MustCompile(`^\s*\[(\d+):(\d{2}):(\d{2})[.,](\d{3})\s*-->\s*[^\]]*\]\s*(.*)$`)
	annotationPattern = regexp.MustCompile(`^[\[(（【].*[\])）】]$`)
)

// ParseSegment extracts a timed line from whisper-cli output such as
// "[00:01:02.500 --> 00:01:05.000]  text". Blank segments and bracketed
// annotations like "[BLANK_AUDIO]" are rejected.
func ParseSegment(raw string) (lrc.Line, bool) {
	m := segmentPattern.FindStringSubmatch(raw)
	if m == nil {
		return lrc.Line{}, false
	}
	text := lrc.CleanText(m[5])
	if text == "" || annotationPattern.MatchString(text) {
		return lrc.Line{}, false
	}
	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	seconds, _ := strconv.Atoi(m[3])
	millis, _ := strconv.Atoi(m[4])
	offset := time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second +
		time.Duration(millis)*time.Millisecond
	return lrc.NewLine(offset, text), true
}
