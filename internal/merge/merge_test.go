package merge

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"lrcforge/internal/config"
	"lrcforge/internal/eventbus"
	"lrcforge/internal/media/command"
)

type staticConfig struct{ cfg config.Config }

func (s staticConfig) Current() config.Config { return s.cfg }

func sources(t *testing.T, names ...string) []string {
	t.Helper()
	dir := t.TempDir()
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = filepath.Join(dir, n)
		if err := os.WriteFile(out[i], []byte(n), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return out
}

func newMerger(t *testing.T, exec command.Executor) *Merger {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	m := New(ctx, staticConfig{config.Default()}, WithExecutor(exec))
	t.Cleanup(func() {
		cancel()
		waitCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		_ = m.Wait(waitCtx)
	})
	return m
}

func waitDone(t *testing.T, m *Merger) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.Wait(ctx); err != nil {
		t.Fatalf("merge did not finish: %v", err)
	}
}

func TestMergeSuccess(t *testing.T) {
	var list string
	exec := command.ExecutorFunc(func(_ context.Context, spec command.Spec) error {
		data, err := os.ReadFile(spec.Args[5])
		if err != nil {
			return err
		}
		list = string(data)
		for i := 0; i < 12; i++ {
			spec.OnStderr("size=  100kB time=00:00:01.00")
		}
		return os.WriteFile(spec.Args[len(spec.Args)-1], []byte("RIFF"), 0o644)
	})
	m := newMerger(t, exec)
	srcs := sources(t, "a.wav", "it's.wav")
	output := filepath.Join(t.TempDir(), "out", "merged.mp3")

	status, err := m.Start(Request{Sources: srcs, Output: output, DeleteSources: true})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if status.Output != strings.TrimSuffix(output, ".mp3")+".wav" || status.State != StateRunning {
		t.Fatalf("unexpected status %+v", status)
	}
	waitDone(t, m)

	final := m.Status()
	if final.State != StateCompleted || final.Percent != 100 {
		t.Fatalf("unexpected final status %+v", final)
	}
	if _, err := os.Stat(final.Output); err != nil {
		t.Fatalf("output missing: %v", err)
	}
	for _, src := range srcs {
		if _, err := os.Stat(src); !os.IsNotExist(err) {
			t.Fatalf("source %s should be deleted", src)
		}
	}
	if !strings.Contains(list, `it'\''s.wav'`) {
		t.Fatalf("quotes not escaped in list %q", list)
	}

	var percents []int
	events := m.Events()
	for _, ev := range events {
		if p, ok := ev.Payload.(eventbus.MergeProgress); ok {
			percents = append(percents, p.Percent)
		}
	}
	want := []int{10, 20, 30, 40, 50, 100}
	if len(percents) != len(want) {
		t.Fatalf("progress = %v, want %v", percents, want)
	}
	for i := range want {
		if percents[i] != want[i] {
			t.Fatalf("progress = %v, want %v", percents, want)
		}
	}
	last := events[len(events)-1].Payload.(eventbus.MergeComplete)
	if !last.Success || last.Output != final.Output {
		t.Fatalf("unexpected completion %+v", last)
	}
}

func TestMergeValidation(t *testing.T) {
	m := newMerger(t, command.OS{})
	if _, err := m.Start(Request{Sources: []string{"/a.wav"}, Output: "/o.wav"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	if _, err := m.Start(Request{Sources: []string{"/a.wav", "/b.wav"}}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
	if _, err := m.Start(Request{Sources: []string{"/a.wav", "/b.wav"}, Output: "/a"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("output colliding with a source must be rejected, got %v", err)
	}
	if m.Status().State != StateIdle {
		t.Fatal("rejected requests must not change state")
	}
}

func TestMergeCancel(t *testing.T) {
	started := make(chan struct{})
	exec := command.ExecutorFunc(func(ctx context.Context, spec command.Spec) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	m := newMerger(t, exec)
	srcs := sources(t, "a.wav", "b.wav")
	if _, err := m.Start(Request{Sources: srcs, Output: filepath.Join(t.TempDir(), "m.wav"), DeleteSources: true}); err != nil {
		t.Fatal(err)
	}
	<-started
	if _, err := m.Start(Request{Sources: srcs, Output: filepath.Join(t.TempDir(), "n.wav")}); !errors.Is(err, ErrBusy) {
		t.Fatalf("err = %v, want ErrBusy", err)
	}
	if !m.Cancel() {
		t.Fatal("cancel should report a running job")
	}
	waitDone(t, m)

	if m.Status().State != StateCancelled {
		t.Fatalf("state = %s", m.Status().State)
	}
	for _, src := range srcs {
		if _, err := os.Stat(src); err != nil {
			t.Fatalf("cancelled merge must keep sources: %v", err)
		}
	}
	if m.Cancel() {
		t.Fatal("cancel with no running job must report false")
	}
}

func TestMergeFailure(t *testing.T) {
	exec := command.ExecutorFunc(func(context.Context, command.Spec) error {
		return errors.New("ffmpeg: exit status 1: Invalid data found")
	})
	m := newMerger(t, exec)
	if _, err := m.Start(Request{Sources: sources(t, "a.wav", "b.wav"), Output: filepath.Join(t.TempDir(), "m.wav")}); err != nil {
		t.Fatal(err)
	}
	waitDone(t, m)
	status := m.Status()
	if status.State != StateFailed || !strings.Contains(status.Error, "Invalid data found") {
		t.Fatalf("unexpected status %+v", status)
	}
	events := m.Events()
	if done, ok := events[len(events)-1].Payload.(eventbus.MergeComplete); !ok || done.Success {
		t.Fatalf("expected failed merge_complete, got %+v", events[len(events)-1])
	}
}

func TestHelpers(t *testing.T) {
	if OutputPath("/x/a.WAV") != "/x/a.WAV" || OutputPath("/x/a.mp3") != "/x/a.wav" || OutputPath("/x/a") != "/x/a.wav" {
		t.Fatal("unexpected output path forcing")
	}
	if ProgressForLines(5) != 40 || ProgressForLines(100) != 90 {
		t.Fatal("unexpected progress mapping")
	}
	if got := ConcatList([]string{"/m/it's.wav"}); got != "file '/m/it'\\''s.wav'\n" {
		t.Fatalf("ConcatList = %q", got)
	}
}
