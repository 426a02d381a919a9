package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"lrcforge/internal/fileutil"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains library and state directories.
type Paths struct {
	SourceDir      string `toml:"source_dir" json:"source_dir"`
	LyricDir       string `toml:"lyric_dir" json:"lyric_dir"`
	OutputDir      string `toml:"output_dir" json:"output_dir"`
	MergeSourceDir string `toml:"merge_source_dir" json:"merge_source_dir"`
	MergeOutputDir string `toml:"merge_output_dir" json:"merge_output_dir"`
	LogDir         string `toml:"log_dir" json:"log_dir"`
	ModelDir       string `toml:"model_dir" json:"model_dir"`
}

// Server contains HTTP API settings.
type Server struct {
	APIBind   string `toml:"api_bind"`
	APIToken  string `toml:"api_token"`
	StaticDir string `toml:"static_dir"`
}

// Transcription configures phase one (audio to LRC).
type Transcription struct {
	Model         string `toml:"model" json:"model"`
	Language      string `toml:"language" json:"language"`
	Prompt        string `toml:"prompt" json:"prompt"`
	Threads       int    `toml:"threads" json:"threads"`
	WhisperBinary string `toml:"whisper_binary" json:"whisper_binary"`
	FFmpegBinary  string `toml:"ffmpeg_binary" json:"ffmpeg_binary"`
}

// Tags configures phase two (ID3 metadata written into the output MP3).
type Tags struct {
	Singer         string `toml:"singer" json:"singer"`
	Album          string `toml:"album" json:"album"`
	CoverPath      string `toml:"cover_path" json:"cover_path"`
	LyricsLanguage string `toml:"lyrics_language" json:"lyrics_language"`
}

// Engine tunes the batch runner and event stream.
type Engine struct {
	HistorySize    int `toml:"history_size"`
	OutboxSize     int `toml:"outbox_size"`
	PollIntervalMS int `toml:"poll_interval_ms"`
	Phase2Workers  int `toml:"phase2_workers"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for lrcforge.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Server        Server        `toml:"server"`
	Transcription Transcription `toml:"transcription"`
	Tags          Tags          `toml:"tags"`
	Engine        Engine        `toml:"engine"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized. The bool reports whether the file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		if err := toml.NewDecoder(file).Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("lrcforge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the daemon writes into. Output
// directories are created only when configured.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Paths.LogDir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", c.Paths.LogDir, err)
	}
	for _, dir := range []string{c.Paths.LyricDir, c.Paths.OutputDir, c.Paths.MergeOutputDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockPath is the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "lrcforge.lock")
}

// PIDPath records the running daemon's process id.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.LogDir, "lrcforge.pid")
}

// HistoryDBPath is the sqlite ledger of finished batches.
func (c *Config) HistoryDBPath() string {
	return filepath.Join(c.Paths.LogDir, "history.db")
}

// ModelPath returns the ggml model file for the configured whisper model.
func (c *Config) ModelPath() string {
	return filepath.Join(c.Paths.ModelDir, "ggml-"+c.Transcription.Model+".bin")
}

// PollInterval is how often the batch runner drains worker callbacks.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Engine.PollIntervalMS) * time.Millisecond
}

// LibraryConfigured reports whether the three batch directories are set.
func (c *Config) LibraryConfigured() bool {
	return strings.TrimSpace(c.Paths.SourceDir) != "" &&
		strings.TrimSpace(c.Paths.LyricDir) != "" &&
		strings.TrimSpace(c.Paths.OutputDir) != ""
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	absolute, err := filepath.Abs(filepath.Clean(pathValue))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", pathValue, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Save writes the config as TOML, replacing path atomically.
func (c *Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	err = fileutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
	if err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}
