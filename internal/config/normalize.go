package config

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/language"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeServer()
	c.normalizeTranscription()
	if err := c.normalizeTags(); err != nil {
		return err
	}
	c.normalizeEngine()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if strings.TrimSpace(c.Paths.ModelDir) == "" {
		c.Paths.ModelDir = defaultModelDir
	}
	fields := []struct {
		key   string
		value *string
	}{
		{"paths.source_dir", &c.Paths.SourceDir},
		{"paths.lyric_dir", &c.Paths.LyricDir},
		{"paths.output_dir", &c.Paths.OutputDir},
		{"paths.merge_source_dir", &c.Paths.MergeSourceDir},
		{"paths.merge_output_dir", &c.Paths.MergeOutputDir},
		{"paths.log_dir", &c.Paths.LogDir},
		{"paths.model_dir", &c.Paths.ModelDir},
	}
	for _, field := range fields {
		expanded, err := expandPath(strings.TrimSpace(*field.value))
		if err != nil {
			return fmt.Errorf("%s: %w", field.key, err)
		}
		*field.value = expanded
	}
	return nil
}

func (c *Config) normalizeServer() {
	c.Server.APIBind = strings.TrimSpace(c.Server.APIBind)
	if c.Server.APIBind == "" {
		c.Server.APIBind = defaultAPIBind
	}
	c.Server.APIToken = strings.TrimSpace(c.Server.APIToken)
	if c.Server.APIToken == "" {
		if value, ok := os.LookupEnv("LRCFORGE_API_TOKEN"); ok {
			c.Server.APIToken = strings.TrimSpace(value)
		}
	}
	if dir := strings.TrimSpace(c.Server.StaticDir); dir != "" {
		if expanded, err := expandPath(dir); err == nil {
			c.Server.StaticDir = expanded
		}
	}
}

func (c *Config) normalizeTranscription() {
	t := &c.Transcription
	t.Model = strings.TrimSpace(t.Model)
	if t.Model == "" {
		t.Model = defaultModel
	}
	t.Language = strings.ToLower(strings.TrimSpace(t.Language))
	if t.Language == "" {
		t.Language = defaultLanguage
	}
	t.Prompt = strings.TrimSpace(t.Prompt)
	if t.Threads <= 0 {
		t.Threads = defaultThreads
	}
	if t.WhisperBinary = strings.TrimSpace(t.WhisperBinary); t.WhisperBinary == "" {
		t.WhisperBinary = defaultWhisperBinary
	}
	if t.FFmpegBinary = strings.TrimSpace(t.FFmpegBinary); t.FFmpegBinary == "" {
		t.FFmpegBinary = defaultFFmpegBinary
	}
}

func (c *Config) normalizeTags() error {
	c.Tags.Singer = strings.TrimSpace(c.Tags.Singer)
	c.Tags.Album = strings.TrimSpace(c.Tags.Album)
	if cover := strings.TrimSpace(c.Tags.CoverPath); cover != "" {
		expanded, err := expandPath(cover)
		if err != nil {
			return fmt.Errorf("tags.cover_path: %w", err)
		}
		c.Tags.CoverPath = expanded
	}
	c.Tags.LyricsLanguage = strings.ToLower(strings.TrimSpace(c.Tags.LyricsLanguage))
	if c.Tags.LyricsLanguage == "" {
		c.Tags.LyricsLanguage = lyricsLanguageFor(c.Transcription.Language)
	}
	return nil
}

// lyricsLanguageFor maps a BCP 47 tag such as "zh" to the ISO 639-2 code ID3
// lyric frames carry. Unknown tags map to "und".
func lyricsLanguageFor(tag string) string {
	parsed, err := language.Parse(tag)
	if err != nil {
		return "und"
	}
	base, _ := parsed.Base()
	if iso3 := base.ISO3(); len(iso3) == 3 {
		return iso3
	}
	return "und"
}

func (c *Config) normalizeEngine() {
	e := &c.Engine
	if e.HistorySize < minHistorySize {
		e.HistorySize = minHistorySize
	}
	if e.OutboxSize < minOutboxSize {
		e.OutboxSize = minOutboxSize
	}
	if e.PollIntervalMS <= 0 {
		e.PollIntervalMS = defaultPollIntervalMS
	}
	if e.Phase2Workers <= 0 {
		e.Phase2Workers = defaultPhase2Workers
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
