package tagging

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bogem/id3v2/v2"

	"lrcforge/internal/batch"
	"lrcforge/internal/config"
	"lrcforge/internal/lrc"
	"lrcforge/internal/media/command"
)

type staticConfig struct{ cfg config.Config }

func (s staticConfig) Current() config.Config { return s.cfg }

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func fixture(t *testing.T, sourceName string) batch.Item {
	t.Helper()
	root := t.TempDir()
	item := batch.Item{
		Name:       sourceName,
		SourcePath: filepath.Join(root, "src", sourceName),
		LyricPath:  filepath.Join(root, "lrc", "song.lrc"),
		OutputPath: filepath.Join(root, "out", "song.mp3"),
	}
	writeFile(t, item.SourcePath, []byte("audio-bytes"))
	writeFile(t, item.LyricPath, []byte("[00:01.00]你好\n[00:02.50]world"))
	return item
}

func TestEmbedCopiesMP3AndWritesTags(t *testing.T) {
	item := fixture(t, "song.mp3")
	cover := filepath.Join(filepath.Dir(item.SourcePath), "cover.png")
	writeFile(t, cover, []byte("png-bytes"))

	never := command.ExecutorFunc(func(context.Context, command.Spec) error {
		return errors.New("ffmpeg must not run for mp3 sources")
	})
	svc := New(staticConfig{config.Default()}, WithExecutor(never))
	opts := batch.Options{Singer: "Singer", Album: "Album", CoverPath: cover, LyricsLanguage: "zho"}
	if err := svc.Embed(context.Background(), item, opts); err != nil {
		t.Fatalf("Embed: %v", err)
	}

	tag, err := id3v2.Open(item.OutputPath, id3v2.Options{Parse: true})
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer tag.Close()
	if tag.Title() != "song" || tag.Artist() != "Singer" || tag.Album() != "Album" {
		t.Fatalf("unexpected text frames %q %q %q", tag.Title(), tag.Artist(), tag.Album())
	}
	uslt := tag.GetFrames(tag.CommonID("Unsynchronised lyrics/text transcription"))
	if len(uslt) != 1 {
		t.Fatalf("expected one USLT frame, got %d", len(uslt))
	}
	if frame, ok := uslt[0].(id3v2.UnsynchronisedLyricsFrame); !ok || frame.Lyrics != "你好\nworld" || frame.Language != "zho" {
		t.Fatalf("unexpected USLT %+v", uslt[0])
	}
	pics := tag.GetFrames("APIC")
	if len(pics) != 1 {
		t.Fatalf("expected one APIC frame, got %d", len(pics))
	}
	if pic, ok := pics[0].(id3v2.PictureFrame); !ok || pic.MimeType != "image/png" || pic.PictureType != id3v2.PTFrontCover || string(pic.Picture) != "png-bytes" {
		t.Fatalf("unexpected APIC %+v", pics[0])
	}
	if len(tag.GetFrames("SYLT")) != 1 {
		t.Fatal("expected SYLT frame")
	}
	entries, _ := os.ReadDir(filepath.Dir(item.OutputPath))
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestEmbedEncodesNonMP3(t *testing.T) {
	item := fixture(t, "song.m4a")
	var args []string
	exec := command.ExecutorFunc(func(_ context.Context, spec command.Spec) error {
		args = spec.Args
		return os.WriteFile(spec.Args[len(spec.Args)-1], []byte("encoded"), 0o644)
	})
	svc := New(staticConfig{config.Default()}, WithExecutor(exec))
	if err := svc.Embed(context.Background(), item, batch.Options{}); err != nil {
		t.Fatalf("Embed: %v", err)
	}
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "-codec:a libmp3lame -qscale:a 2") || !strings.Contains(joined, "-i "+item.SourcePath) {
		t.Fatalf("unexpected ffmpeg args %v", args)
	}
	if filepath.Ext(args[len(args)-1]) != ".mp3" {
		t.Fatalf("ffmpeg output needs an .mp3 extension: %s", args[len(args)-1])
	}
	if _, err := os.Stat(item.OutputPath); err != nil {
		t.Fatalf("output missing: %v", err)
	}
}

func TestEmbedFailureLeavesNoOutput(t *testing.T) {
	item := fixture(t, "song.flac")
	exec := command.ExecutorFunc(func(context.Context, command.Spec) error {
		return errors.New("decode error")
	})
	svc := New(staticConfig{config.Default()}, WithExecutor(exec))
	err := svc.Embed(context.Background(), item, batch.Options{})
	if err == nil || !strings.Contains(err.Error(), "decode error") {
		t.Fatalf("err = %v", err)
	}
	entries, _ := os.ReadDir(filepath.Dir(item.OutputPath))
	if len(entries) != 0 {
		t.Fatalf("output directory should be empty, got %v", entries)
	}
}

func TestEmbedRequiresLyrics(t *testing.T) {
	item := fixture(t, "song.mp3")
	if err := os.Remove(item.LyricPath); err != nil {
		t.Fatal(err)
	}
	svc := New(staticConfig{config.Default()})
	if err := svc.Embed(context.Background(), item, batch.Options{}); err == nil {
		t.Fatal("expected error without lyrics")
	}
}

func TestSYLTBody(t *testing.T) {
	lines := []lrc.Line{lrc.NewLine(1500*time.Millisecond, "ab"), lrc.NewLine(70*time.Second, "c")}
	body := SYLTBody("ZHO", lines)

	want := []byte{0x03, 'z', 'h', 'o', 0x02, 0x01, 0x00}
	want = append(want, 'a', 'b', 0)
	want = binary.BigEndian.AppendUint32(want, 1500)
	want = append(want, 'c', 0)
	want = binary.BigEndian.AppendUint32(want, 70000)
	if !bytes.Equal(body, want) {
		t.Fatalf("body = %v, want %v", body, want)
	}
}

func TestHelpers(t *testing.T) {
	if LanguageCode("") != "und" || LanguageCode("en") != "und" || LanguageCode(" JPN ") != "jpn" {
		t.Fatal("unexpected language codes")
	}
	if CoverMIME("/a/b.PNG") != "image/png" || CoverMIME("/a/b.jpeg") != "image/jpeg" {
		t.Fatal("unexpected cover mime")
	}
	if Title(batch.Item{SourcePath: "/x/My Song.flac"}) != "My Song" {
		t.Fatal("title should be the source stem")
	}
}
