package library

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"lrcforge/internal/config"
)

type staticConfig struct{ cfg config.Config }

func (s staticConfig) Current() config.Config { return s.cfg }

func writeFile(t *testing.T, path string, data string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func newLibrary(t *testing.T) (*Library, config.Config) {
	t.Helper()
	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths.SourceDir = filepath.Join(root, "src")
	cfg.Paths.LyricDir = filepath.Join(root, "lrc")
	cfg.Paths.OutputDir = filepath.Join(root, "out")
	cfg.Paths.MergeSourceDir = filepath.Join(root, "merge")
	return New(staticConfig{cfg}), cfg
}

func TestFiles(t *testing.T) {
	lib, cfg := newLibrary(t)
	writeFile(t, filepath.Join(cfg.Paths.SourceDir, "b.m4a"), "bbbb")
	writeFile(t, filepath.Join(cfg.Paths.SourceDir, "a.MP3"), "a")
	writeFile(t, filepath.Join(cfg.Paths.SourceDir, "notes.txt"), "x")
	writeFile(t, filepath.Join(cfg.Paths.LyricDir, "a.lrc"), "[00:00.00]x")
	writeFile(t, filepath.Join(cfg.Paths.OutputDir, "a.mp3"), "x")
	writeFile(t, filepath.Join(cfg.Paths.LyricDir, "b.lrc"), "[00:00.00]x")

	files, err := lib.Files()
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 audio files, got %+v", files)
	}
	if files[0].Name != "a.MP3" || files[0].Status != FileStatusCompleted {
		t.Fatalf("unexpected first file %+v", files[0])
	}
	if files[1].Name != "b.m4a" || !files[1].HasLyric || files[1].HasOutput || files[1].Status != FileStatusPending {
		t.Fatalf("unexpected second file %+v", files[1])
	}
	if files[1].Size != 4 {
		t.Fatalf("size = %d", files[1].Size)
	}
}

func TestFilesMissingSourceDir(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.SourceDir = filepath.Join(t.TempDir(), "absent")
	files, err := New(staticConfig{cfg}).Files()
	if err != nil || len(files) != 0 {
		t.Fatalf("expected empty listing, got %v %v", files, err)
	}
}

func TestResolve(t *testing.T) {
	lib, cfg := newLibrary(t)
	writeFile(t, filepath.Join(cfg.Paths.SourceDir, "song.flac"), "x")

	items, err := lib.Resolve([]string{"song.flac", "missing.mp3", "../escape.mp3"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected one item, got %+v", items)
	}
	item := items[0]
	if item.LyricPath != filepath.Join(cfg.Paths.LyricDir, "song.lrc") {
		t.Fatalf("lyric path = %s", item.LyricPath)
	}
	if item.OutputPath != filepath.Join(cfg.Paths.OutputDir, "song.mp3") {
		t.Fatalf("output path = %s", item.OutputPath)
	}
}

func TestResolveSkipsSharedStems(t *testing.T) {
	lib, cfg := newLibrary(t)
	writeFile(t, filepath.Join(cfg.Paths.SourceDir, "a.m4a"), "x")
	writeFile(t, filepath.Join(cfg.Paths.SourceDir, "a.flac"), "x")
	writeFile(t, filepath.Join(cfg.Paths.SourceDir, "b.mp3"), "x")

	items, err := lib.Resolve([]string{"a.m4a", "b.mp3", "a.m4a", "a.flac", "b.mp3"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected two items, got %+v", items)
	}
	if items[0].Name != "a.m4a" || items[1].Name != "b.mp3" {
		t.Fatalf("names = %s, %s; want first occurrence kept in order", items[0].Name, items[1].Name)
	}
	if items[0].OutputPath == items[1].OutputPath || items[0].LyricPath == items[1].LyricPath {
		t.Fatalf("items share artifact paths: %+v", items)
	}
}

func TestResolveRequiresDirectories(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.SourceDir = t.TempDir()
	_, err := New(staticConfig{cfg}).Resolve([]string{"a.mp3"})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}

func TestMergeSources(t *testing.T) {
	lib, cfg := newLibrary(t)
	writeFile(t, filepath.Join(cfg.Paths.MergeSourceDir, "2.wav"), "x")
	writeFile(t, filepath.Join(cfg.Paths.MergeSourceDir, "1.wav"), "x")

	paths, err := lib.MergeSources([]string{"2.wav", "nope.wav", "1.wav"})
	if err != nil {
		t.Fatalf("MergeSources: %v", err)
	}
	if len(paths) != 2 || filepath.Base(paths[0]) != "2.wav" {
		t.Fatalf("order must follow the request: %v", paths)
	}
	files, err := lib.MergeFiles()
	if err != nil || len(files) != 2 {
		t.Fatalf("MergeFiles = %v, %v", files, err)
	}
}

func TestSearchPaths(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"Music", "Mushrooms", "Videos"} {
		if err := os.Mkdir(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	writeFile(t, filepath.Join(root, "Mustard.txt"), "x")

	got := SearchPaths(filepath.Join(root, "Mu"), KindDirectory)
	if len(got) != 2 || filepath.Base(got[0]) != "Music" || filepath.Base(got[1]) != "Mushrooms" {
		t.Fatalf("directory search = %v", got)
	}
	got = SearchPaths(filepath.Join(root, "Mu"), KindFile)
	if len(got) != 1 || filepath.Base(got[0]) != "Mustard.txt" {
		t.Fatalf("file search = %v", got)
	}
	got = SearchPaths(root+"/", KindDirectory)
	if len(got) != 3 {
		t.Fatalf("listing an existing directory = %v", got)
	}
	if got := SearchPaths(filepath.Join(root, "nothing", "here"), KindDirectory); len(got) != 0 {
		t.Fatalf("expected no results, got %v", got)
	}
}

func TestSearchPathsCap(t *testing.T) {
	root := t.TempDir()
	for i := range MaxSearchResults + 5 {
		if err := os.Mkdir(filepath.Join(root, "d"+string(rune('a'+i))), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if got := SearchPaths(root, KindDirectory); len(got) != MaxSearchResults {
		t.Fatalf("expected %d results, got %d", MaxSearchResults, len(got))
	}
}

func TestSearchPathsEmptyPrefix(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	if err := os.Mkdir(filepath.Join(home, "Music"), 0o755); err != nil {
		t.Fatal(err)
	}
	got := SearchPaths("", KindDirectory)
	if len(got) != 2 || got[0] != home || got[1] != filepath.Join(home, "Music") {
		t.Fatalf("common dirs = %v", got)
	}
}

func TestParsePathKind(t *testing.T) {
	if ParsePathKind("FILE") != KindFile || ParsePathKind("") != KindDirectory {
		t.Fatal("unexpected kind parsing")
	}
}
