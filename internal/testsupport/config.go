package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"lrcforge/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The source and merge source directories are created; everything else is
// left for the code under test to create.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.SourceDir = filepath.Join(base, "source")
	cfgVal.Paths.LyricDir = filepath.Join(base, "lyrics")
	cfgVal.Paths.OutputDir = filepath.Join(base, "output")
	cfgVal.Paths.MergeSourceDir = filepath.Join(base, "merge-source")
	cfgVal.Paths.MergeOutputDir = filepath.Join(base, "merge-output")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.ModelDir = filepath.Join(base, "models")
	cfgVal.Server.APIBind = "127.0.0.1:0"
	cfgVal.Tags.LyricsLanguage = "zho"
	cfgVal.Engine.PollIntervalMS = 5

	for _, dir := range []string{cfgVal.Paths.SourceDir, cfgVal.Paths.MergeSourceDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithAPIToken requires bearer authentication on the test API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Server.APIToken = token
	}
}

// WithoutLibrary clears the batch directories.
func WithoutLibrary() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.SourceDir = ""
		b.cfg.Paths.LyricDir = ""
		b.cfg.Paths.OutputDir = ""
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, the default lrcforge external
// binaries are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe", "whisper-cli"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.LogDir)
}

// NewLive persists cfg next to its temp directories, reloads it through
// config.Load, and wraps the result.
func NewLive(t testing.TB, cfg *config.Config) *config.Live {
	t.Helper()

	path := filepath.Join(BaseDir(cfg), "config.toml")
	if err := cfg.Save(path); err != nil {
		t.Fatalf("save config: %v", err)
	}
	loaded, resolved, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	return config.NewLive(loaded, resolved)
}
