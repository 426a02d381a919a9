package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateTags(); err != nil {
		return err
	}
	if err := c.validateEngine(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	if c.Paths.SourceDir != "" && (c.Paths.SourceDir == c.Paths.OutputDir || c.Paths.SourceDir == c.Paths.LyricDir) {
		return errors.New("paths.source_dir must differ from paths.lyric_dir and paths.output_dir")
	}
	return nil
}

func (c *Config) validateTranscription() error {
	if !IsSupportedModel(c.Transcription.Model) {
		return fmt.Errorf("transcription.model %q is not supported (choose one of %s)", c.Transcription.Model, strings.Join(SupportedModels, ", "))
	}
	if c.Transcription.Threads > 256 {
		return errors.New("transcription.threads must be between 1 and 256")
	}
	return nil
}

func (c *Config) validateTags() error {
	if c.Tags.CoverPath != "" {
		info, err := os.Stat(c.Tags.CoverPath)
		if err != nil {
			return fmt.Errorf("tags.cover_path: %w", err)
		}
		if info.IsDir() {
			return fmt.Errorf("tags.cover_path %q is a directory", c.Tags.CoverPath)
		}
	}
	if len(c.Tags.LyricsLanguage) != 3 {
		return fmt.Errorf("tags.lyrics_language %q must be a three-letter ISO 639-2 code", c.Tags.LyricsLanguage)
	}
	return nil
}

func (c *Config) validateEngine() error {
	if c.Engine.PollIntervalMS > maxPollIntervalMS {
		return fmt.Errorf("engine.poll_interval_ms must be at most %d", maxPollIntervalMS)
	}
	if c.Engine.Phase2Workers > maxPhase2Workers {
		return fmt.Errorf("engine.phase2_workers must be at most %d", maxPhase2Workers)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q must be console or json", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not recognized", c.Logging.Level)
	}
	return nil
}
