package tagging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2/v2"

	"lrcforge/internal/batch"
	"lrcforge/internal/config"
	"lrcforge/internal/fileutil"
	"lrcforge/internal/logging"
	"lrcforge/internal/lrc"
	"lrcforge/internal/media/command"
)

// ConfigSource yields the active configuration.
type ConfigSource interface {
	Current() config.Config
}

// Service runs phase two for a single item.
type Service struct {
	source ConfigSource
	exec   command.Executor
	logger *slog.Logger
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

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// New constructs a tagging service.
func New(source ConfigSource, opts ...Option) *Service {
	s := &Service{source: source, exec: command.OS{}}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "tagging")
	return s
}

// Embed writes item.OutputPath. The file only appears once fully encoded and
// tagged.
func (s *Service) Embed(ctx context.Context, item batch.Item, opts batch.Options) error {
	cfg := s.source.Current()
	logger := logging.WithContext(ctx, s.logger)

	lines, err := lrc.ParseFile(item.LyricPath)
	if err != nil {
		return fmt.Errorf("tagging: read lyrics: %w", err)
	}

	tmp, err := fileutil.TempSibling(item.OutputPath)
	if err != nil {
		return fmt.Errorf("tagging: %w", err)
	}
	keep := false
	defer func() {
		if !keep {
			_ = os.Remove(tmp)
		}
	}()

	if strings.EqualFold(filepath.Ext(item.SourcePath), ".mp3") {
		if err := fileutil.CopyFile(item.SourcePath, tmp); err != nil {
			return fmt.Errorf("tagging: copy source: %w", err)
		}
	} else if err := s.exec.Run(ctx, command.Spec{
		Binary: cfg.Transcription.FFmpegBinary,
		Args:   EncodeArgs(item.SourcePath, tmp),
	}); err != nil {
		return fmt.Errorf("tagging: encode mp3: %w", err)
	}

	meta := Metadata{
		Title:    Title(item),
		Artist:   opts.Singer,
		Album:    opts.Album,
		Language: opts.LyricsLanguage,
		Lines:    lines,
	}
	if cover := strings.TrimSpace(opts.CoverPath); cover != "" {
		data, err := os.ReadFile(cover)
		switch {
		case err == nil:
			meta.Cover = data
			meta.CoverMIME = CoverMIME(cover)
		case errors.Is(err, os.ErrNotExist):
			logging.WarnWithContext(logger, "cover image missing; tagging without cover", "cover_missing",
				logging.String("cover_path", cover),
				logging.String(logging.FieldImpact, "output has no embedded artwork"),
				logging.String(logging.FieldErrorHint, "update tags.cover_path in settings"),
			)
		default:
			return fmt.Errorf("tagging: read cover: %w", err)
		}
	}

	if err := WriteTags(tmp, meta); err != nil {
		return fmt.Errorf("tagging: %w", err)
	}
	if err := os.Rename(tmp, item.OutputPath); err != nil {
		return fmt.Errorf("tagging: finalize output: %w", err)
	}
	keep = true

	logger.Info("output written",
		logging.String("output_path", item.OutputPath),
		logging.Int("lyric_lines", len(lines)),
		logging.Bool("cover", len(meta.Cover) > 0),
	)
	return nil
}

// EncodeArgs converts source to a VBR MP3 without carrying over stale tags
// or embedded video streams.
func EncodeArgs(source, dest string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-vn",
		"-map_metadata", "-1",
		"-codec:a", "libmp3lame",
		"-qscale:a", "2",
		dest,
	}
}

// Title is the source file name without its extension.
func Title(item batch.Item) string {
	base := filepath.Base(item.SourcePath)
	if item.SourcePath == "" {
		base = item.Name
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// CoverMIME picks the picture MIME type from the file extension.
func CoverMIME(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// Metadata is everything written into the output tag.
type Metadata struct {
	Title     string
	Artist    string
	Album     string
	Language  string
	Lines     []lrc.Line
	Cover     []byte
	CoverMIME string
}

// WriteTags replaces the lyric, artwork and text frames of the MP3 at path.
func WriteTags(path string, meta Metadata) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("open id3 tag: %w", err)
	}
	defer tag.Close()

	tag.SetVersion(4)
	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	for _, id := range []string{"SYLT", "USLT", "APIC"} {
		tag.DeleteFrames(id)
	}

	tag.SetTitle(meta.Title)
	if artist := strings.TrimSpace(meta.Artist); artist != "" {
		tag.SetArtist(artist)
	}
	if album := strings.TrimSpace(meta.Album); album != "" {
		tag.SetAlbum(album)
	}

	language := LanguageCode(meta.Language)
	if len(meta.Lines) > 0 {
		tag.AddFrame("SYLT", id3v2.UnknownFrame{Body: SYLTBody(language, meta.Lines)})
		tag.AddUnsynchronisedLyricsFrame(id3v2.UnsynchronisedLyricsFrame{
			Encoding:          id3v2.EncodingUTF8,
			Language:          language,
			ContentDescriptor: "",
			Lyrics:            lrc.PlainText(meta.Lines),
		})
	}

	if len(meta.Cover) > 0 {
		tag.AddAttachedPicture(id3v2.PictureFrame{
			Encoding:    id3v2.EncodingUTF8,
			MimeType:    meta.CoverMIME,
			PictureType: id3v2.PTFrontCover,
			Description: "Cover",
			Picture:     meta.Cover,
		})
	}

	if err := tag.Save(); err != nil {
		return fmt.Errorf("save id3 tag: %w", err)
	}
	return nil
}
