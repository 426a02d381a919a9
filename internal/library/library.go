package library

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"lrcforge/internal/batch"
	"lrcforge/internal/config"
)

// ErrNotConfigured is returned when a required directory is unset.
var ErrNotConfigured = errors.New("directory not configured")

var audioExtensions = []string{".m4a", ".mp3", ".mp4", ".wav", ".flac", ".ogg", ".aac"}

// IsAudio reports whether name has a supported audio extension.
func IsAudio(name string) bool {
	return slices.Contains(audioExtensions, strings.ToLower(filepath.Ext(name)))
}

// FileStatus summarizes a source file's artifacts.
type FileStatus string

const (
	FileStatusPending   FileStatus = "pending"
	FileStatusCompleted FileStatus = "completed"
)

// File describes one audio file in a source directory.
type File struct {
	Name      string     `json:"name"`
	Size      int64      `json:"size"`
	HasLyric  bool       `json:"has_lyric"`
	HasOutput bool       `json:"has_output"`
	Status    FileStatus `json:"status"`
}

// ConfigSource yields the active configuration.
type ConfigSource interface {
	Current() config.Config
}

// Library resolves names against the live configuration on every call, so
// directory edits take effect for the next listing or batch.
type Library struct {
	source    ConfigSource
	artifacts batch.Artifacts
}

// New constructs a library reading directories from source.
func New(source ConfigSource) *Library {
	return &Library{source: source, artifacts: batch.FileArtifacts{}}
}

// LyricPath is where the LRC for a source file name is written.
func LyricPath(lyricDir, name string) string {
	return filepath.Join(lyricDir, stem(name)+".lrc")
}

// OutputPath is where the tagged MP3 for a source file name is written.
func OutputPath(outputDir, name string) string {
	return filepath.Join(outputDir, stem(name)+".mp3")
}

func stem(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Files lists audio files in the source directory, sorted by name. A missing
// or unset source directory yields an empty list.
func (l *Library) Files() ([]File, error) {
	cfg := l.source.Current()
	src := strings.TrimSpace(cfg.Paths.SourceDir)
	if src == "" {
		return []File{}, nil
	}
	return listAudio(src, func(name string) (bool, bool) {
		hasLyric := cfg.Paths.LyricDir != "" && l.artifacts.Exists(LyricPath(cfg.Paths.LyricDir, name))
		hasOutput := cfg.Paths.OutputDir != "" && l.artifacts.Exists(OutputPath(cfg.Paths.OutputDir, name))
		return hasLyric, hasOutput
	})
}

// MergeFiles lists audio files in the merge source directory.
func (l *Library) MergeFiles() ([]File, error) {
	cfg := l.source.Current()
	src := strings.TrimSpace(cfg.Paths.MergeSourceDir)
	if src == "" {
		return []File{}, nil
	}
	return listAudio(src, nil)
}

// MergeSources resolves names inside the merge source directory, keeping
// request order and skipping names that do not exist.
func (l *Library) MergeSources(names []string) ([]string, error) {
	cfg := l.source.Current()
	dir := strings.TrimSpace(cfg.Paths.MergeSourceDir)
	if dir == "" {
		return nil, fmt.Errorf("merge source %w", ErrNotConfigured)
	}
	var out []string
	for _, name := range names {
		path, ok := within(dir, name)
		if !ok || !l.artifacts.Exists(path) {
			continue
		}
		out = append(out, path)
	}
	return out, nil
}

func listAudio(dir string, artifacts func(name string) (bool, bool)) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []File{}, nil
		}
		return nil, fmt.Errorf("read directory %q: %w", dir, err)
	}
	files := make([]File, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || !IsAudio(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		file := File{Name: entry.Name(), Size: info.Size(), Status: FileStatusPending}
		if artifacts != nil {
			file.HasLyric, file.HasOutput = artifacts(entry.Name())
			if file.HasLyric && file.HasOutput {
				file.Status = FileStatusCompleted
			}
		}
		files = append(files, file)
	}
	return files, nil
}

// Resolve maps requested file names to batch items. Names whose source file
// is missing are skipped, as are names that share an already resolved name's
// stem, since they would write the same lyric and output files. An unset
// library directory is an error.
func (l *Library) Resolve(names []string) ([]batch.Item, error) {
	cfg := l.source.Current()
	for _, dir := range []struct{ label, value string }{
		{"source", cfg.Paths.SourceDir},
		{"lyric", cfg.Paths.LyricDir},
		{"output", cfg.Paths.OutputDir},
	} {
		if strings.TrimSpace(dir.value) == "" {
			return nil, fmt.Errorf("%s %w", dir.label, ErrNotConfigured)
		}
	}

	items := make([]batch.Item, 0, len(names))
	claimed := make(map[string]struct{}, len(names))
	for _, name := range names {
		source, ok := within(cfg.Paths.SourceDir, name)
		if !ok || !l.artifacts.Exists(source) {
			continue
		}
		lyric := LyricPath(cfg.Paths.LyricDir, name)
		if _, dup := claimed[lyric]; dup {
			continue
		}
		claimed[lyric] = struct{}{}
		items = append(items, batch.Item{
			Name:       name,
			SourcePath: source,
			LyricPath:  lyric,
			OutputPath: OutputPath(cfg.Paths.OutputDir, name),
		})
	}
	return items, nil
}

// within joins name onto dir, rejecting names that would escape it.
func within(dir, name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" || !filepath.IsLocal(name) {
		return "", false
	}
	return filepath.Join(dir, name), true
}
