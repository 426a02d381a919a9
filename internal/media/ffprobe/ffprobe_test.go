package ffprobe

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"lrcforge/internal/media/command"
)

func TestInspectDecodesOutput(t *testing.T) {
	var gotArgs []string
	exec := command.ExecutorFunc(func(_ context.Context, spec command.Spec) error {
		gotArgs = spec.Args
		for _, line := range strings.Split(`{
  "streams": [{"index": 0, "codec_type": "audio", "codec_name": "aac", "channels": 2}],
  "format": {"duration": "183.500000", "bit_rate": "256000", "tags": {"TITLE": "Song"}}
}`, "\n") {
			spec.OnStdout(line)
		}
		return nil
	})
	result, err := Inspect(context.Background(), exec, "ffprobe", "/music/a.m4a")
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if gotArgs[len(gotArgs)-1] != "/music/a.m4a" || gotArgs[len(gotArgs)-2] != "--" {
		t.Fatalf("unexpected args %v", gotArgs)
	}
	if result.AudioStreamCount() != 1 {
		t.Fatalf("audio streams = %d", result.AudioStreamCount())
	}
	if result.Duration() != 183500*time.Millisecond {
		t.Fatalf("duration = %v", result.Duration())
	}
	if result.BitRate() != 256000 {
		t.Fatalf("bitrate = %d", result.BitRate())
	}
	if result.Tag("title") != "Song" {
		t.Fatalf("title tag = %q", result.Tag("title"))
	}
}

func TestInspectErrors(t *testing.T) {
	failing := command.ExecutorFunc(func(context.Context, command.Spec) error { return errors.New("exit status 1") })
	if _, err := Inspect(context.Background(), failing, "ffprobe", "/a"); err == nil {
		t.Fatal("expected executor error")
	}
	garbage := command.ExecutorFunc(func(_ context.Context, spec command.Spec) error {
		spec.OnStdout("not json")
		return nil
	})
	if _, err := Inspect(context.Background(), garbage, "ffprobe", "/a"); err == nil {
		t.Fatal("expected parse error")
	}
	if _, err := Inspect(context.Background(), garbage, "ffprobe", " "); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestResultHandlesInvalidNumbers(t *testing.T) {
	result := Result{Format: Format{Duration: "bad", BitRate: "-1"}}
	if result.Duration() != 0 || result.BitRate() != 0 {
		t.Fatalf("expected zero values, got %v %d", result.Duration(), result.BitRate())
	}
}

func TestBinaryFor(t *testing.T) {
	cases := map[string]string{
		"":                    "ffprobe",
		"ffmpeg":              "ffprobe",
		"/opt/ff/bin/ffmpeg":  "/opt/ff/bin/ffprobe",
		"/usr/bin/ffmpeg-6.1": "/usr/bin/ffprobe-6.1",
	}
	for in, want := range cases {
		if got := BinaryFor(in); got != want {
			t.Errorf("BinaryFor(%q) = %q, want %q", in, got, want)
		}
	}
}
