package config

import (
	"fmt"
	"sync"
)

// Settings is the user-editable subset of the config exposed over the HTTP API.
type Settings struct {
	SourceDir      string `json:"source_dir"`
	LyricDir       string `json:"lyric_dir"`
	OutputDir      string `json:"output_dir"`
	MergeSourceDir string `json:"merge_source_dir"`
	MergeOutputDir string `json:"merge_output_dir"`
	Model          string `json:"model"`
	Language       string `json:"language"`
	Prompt         string `json:"prompt"`
	SingerName     string `json:"singer_name"`
	AlbumName      string `json:"album_name"`
	CoverPath      string `json:"cover_path"`
}

// Settings extracts the editable subset.
func (c *Config) Settings() Settings {
	return Settings{
		SourceDir:      c.Paths.SourceDir,
		LyricDir:       c.Paths.LyricDir,
		OutputDir:      c.Paths.OutputDir,
		MergeSourceDir: c.Paths.MergeSourceDir,
		MergeOutputDir: c.Paths.MergeOutputDir,
		Model:          c.Transcription.Model,
		Language:       c.Transcription.Language,
		Prompt:         c.Transcription.Prompt,
		SingerName:     c.Tags.Singer,
		AlbumName:      c.Tags.Album,
		CoverPath:      c.Tags.CoverPath,
	}
}

func (c *Config) applySettings(s Settings) {
	c.Paths.SourceDir = s.SourceDir
	c.Paths.LyricDir = s.LyricDir
	c.Paths.OutputDir = s.OutputDir
	c.Paths.MergeSourceDir = s.MergeSourceDir
	c.Paths.MergeOutputDir = s.MergeOutputDir
	c.Transcription.Model = s.Model
	if s.Language != c.Transcription.Language {
		// Re-derive the ID3 lyric language from the new transcription language.
		c.Tags.LyricsLanguage = ""
	}
	c.Transcription.Language = s.Language
	c.Transcription.Prompt = s.Prompt
	c.Tags.Singer = s.SingerName
	c.Tags.Album = s.AlbumName
	c.Tags.CoverPath = s.CoverPath
}

// Live holds the daemon's current config and the file it persists to.
type Live struct {
	mu   sync.RWMutex
	cfg  Config
	path string
}

// NewLive wraps a loaded config.
func NewLive(cfg *Config, path string) *Live {
	return &Live{cfg: *cfg, path: path}
}

// Current returns a copy of the active config.
func (l *Live) Current() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// Path returns the file backing the config.
func (l *Live) Path() string {
	return l.path
}

// ApplySettings validates the edited settings, persists the result, and makes it current.
func (l *Live) ApplySettings(s Settings) (Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.cfg
	next.applySettings(s)
	if err := next.normalize(); err != nil {
		return Config{}, err
	}
	if err := next.Validate(); err != nil {
		return Config{}, err
	}
	if l.path != "" {
		if err := next.Save(l.path); err != nil {
			return Config{}, fmt.Errorf("persist settings: %w", err)
		}
	}
	l.cfg = next
	return next, nil
}

// Replace swaps in a config loaded elsewhere, for example by Watch.
func (l *Live) Replace(cfg *Config) {
	if cfg == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cfg = *cfg
}
