package daemon

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"lrcforge/internal/api"
	"lrcforge/internal/config"
	"lrcforge/internal/eventbus"
	"lrcforge/internal/library"
	"lrcforge/internal/media/command"
	"lrcforge/internal/merge"
	"lrcforge/internal/testsupport"
)

func waitSubscribers(t *testing.T, bus *eventbus.Bus, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if bus.Subscribers() >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("stream never subscribed")
}

func TestTaskLifecycleOverHTTP(t *testing.T) {
	h := newHarness(t, harnessOptions{history: true})
	h.writeSource(t, h.cfg.Paths.SourceDir, "a.m4a", "b.mp3")
	gate := make(chan struct{})
	h.ops.gate = gate
	ctx := context.Background()

	resp, err := h.client.StartTask(ctx, []string{"a.m4a", "b.mp3", "missing.wav"})
	if err != nil {
		t.Fatalf("StartTask: %v", err)
	}
	if !resp.Success || resp.FilesCount != 2 || resp.BatchID == "" {
		t.Fatalf("unexpected start response %+v", resp)
	}
	if _, err := h.client.StartTask(ctx, []string{"a.m4a"}); !api.IsConflict(err) {
		t.Fatalf("second start err = %v, want 409", err)
	}

	var types []eventbus.Type
	streamDone := make(chan error, 1)
	go func() {
		streamDone <- h.client.Stream(ctx, api.TaskStreamPath, func(ev eventbus.Event) error {
			types = append(types, ev.Type)
			return nil
		})
	}()
	waitSubscribers(t, h.bus, 1)
	close(gate)

	select {
	case err := <-streamDone:
		if err != nil {
			t.Fatalf("Stream: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not end after batch_complete")
	}
	if len(types) == 0 || types[len(types)-1] != eventbus.TypeBatchComplete {
		t.Fatalf("stream events = %v", types)
	}
	h.waitIdle(t)

	status, err := h.client.TaskStatus(ctx)
	if err != nil {
		t.Fatalf("TaskStatus: %v", err)
	}
	if status.Running || status.SuccessCount != 2 || status.BatchID != resp.BatchID || status.FinishedAt == "" {
		t.Fatalf("unexpected status %+v", status)
	}

	files, err := h.client.Files(ctx)
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	for _, f := range files {
		if f.Status != library.FileStatusCompleted || !f.HasLyric || !f.HasOutput {
			t.Fatalf("file %s not completed: %+v", f.Name, f)
		}
	}

	hist, err := h.client.History(ctx, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist.Batches) != 1 || hist.Batches[0].ID != resp.BatchID {
		t.Fatalf("unexpected history %+v", hist)
	}

	cancelled, err := h.client.CancelTask(ctx)
	if err != nil || !cancelled {
		t.Fatalf("cancel on finished batch = %v, %v", cancelled, err)
	}
}

func TestTaskStartValidation(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ctx := context.Background()

	for name, files := range map[string][]string{
		"empty":   nil,
		"missing": {"nope.m4a"},
		"escape":  {"../secret.m4a"},
	} {
		_, err := h.client.StartTask(ctx, files)
		var statusErr *api.StatusError
		if !errors.As(err, &statusErr) || statusErr.Code != http.StatusBadRequest {
			t.Fatalf("%s: err = %v, want 400", name, err)
		}
	}
}

func TestTaskStartWithoutLibrary(t *testing.T) {
	h := newHarness(t, harnessOptions{config: []testsupport.ConfigOption{testsupport.WithoutLibrary()}})
	_, err := h.client.StartTask(context.Background(), []string{"a.m4a"})
	var statusErr *api.StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusBadRequest {
		t.Fatalf("err = %v, want 400", err)
	}
	if !strings.Contains(statusErr.Message, "not configured") {
		t.Fatalf("message = %q", statusErr.Message)
	}
}

func TestCancelWithoutBatch(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ok, err := h.client.CancelTask(context.Background())
	if err != nil || ok {
		t.Fatalf("cancel = %v, %v; want false", ok, err)
	}
}

func TestAuthRequiresToken(t *testing.T) {
	h := newHarness(t, harnessOptions{
		config: []testsupport.ConfigOption{testsupport.WithAPIToken("s3cret")},
		token:  "s3cret",
	})
	if _, err := h.client.TaskStatus(context.Background()); err != nil {
		t.Fatalf("authorized request failed: %v", err)
	}

	anonymous, err := api.NewClient(strings.TrimPrefix(h.client.BaseURL(), "http://"), "wrong")
	if err != nil {
		t.Fatal(err)
	}
	_, err = anonymous.TaskStatus(context.Background())
	var statusErr *api.StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusUnauthorized {
		t.Fatalf("err = %v, want 401", err)
	}
}

func TestConfigUpdatePersists(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ctx := context.Background()

	settings, err := h.client.Config(ctx)
	if err != nil {
		t.Fatalf("Config: %v", err)
	}
	if settings.SourceDir != h.cfg.Paths.SourceDir {
		t.Fatalf("source dir = %q", settings.SourceDir)
	}
	settings.Model = "small"
	settings.SingerName = "Someone"
	updated, err := h.client.UpdateConfig(ctx, settings)
	if err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	if updated.Model != "small" || h.live.Current().Tags.Singer != "Someone" {
		t.Fatalf("update not applied: %+v", updated)
	}
	reloaded, _, _, err := config.Load(h.live.Path())
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Transcription.Model != "small" {
		t.Fatalf("persisted model = %q", reloaded.Transcription.Model)
	}

	settings.Model = "gigantic"
	_, err = h.client.UpdateConfig(ctx, settings)
	var statusErr *api.StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusBadRequest {
		t.Fatalf("invalid model err = %v, want 400", err)
	}
	if h.live.Current().Transcription.Model != "small" {
		t.Fatal("rejected settings must not replace the live config")
	}
}

func TestModelsAndPathSearch(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	ctx := context.Background()

	models, err := h.client.Models(ctx)
	if err != nil {
		t.Fatalf("Models: %v", err)
	}
	if len(models) != len(config.SupportedModels) {
		t.Fatalf("models = %v", models)
	}

	base := testsupport.BaseDir(h.cfg)
	paths, err := h.client.SearchPaths(ctx, filepath.Join(base, "sou"), library.KindDirectory)
	if err != nil {
		t.Fatalf("SearchPaths: %v", err)
	}
	if len(paths) != 1 || paths[0] != h.cfg.Paths.SourceDir {
		t.Fatalf("paths = %v", paths)
	}
}

func TestMergeOverHTTP(t *testing.T) {
	var gotArgs []string
	exec := command.ExecutorFunc(func(_ context.Context, spec command.Spec) error {
		gotArgs = spec.Args
		return writeArtifact(spec.Args[len(spec.Args)-1])
	})
	h := newHarness(t, harnessOptions{mergeExec: exec})
	h.writeSource(t, h.cfg.Paths.MergeSourceDir, "one.wav", "two.mp3")
	ctx := context.Background()

	files, err := h.client.MergeFiles(ctx)
	if err != nil || len(files) != 2 {
		t.Fatalf("MergeFiles = %v, %v", files, err)
	}

	status, err := h.client.StartMerge(ctx, api.MergeStartRequest{Files: []string{"one.wav", "two.mp3"}, Output: "joined.mp3"})
	if err != nil {
		t.Fatalf("StartMerge: %v", err)
	}
	want := filepath.Join(h.cfg.Paths.MergeOutputDir, "joined.wav")
	if status.Output != want || status.Files != 2 {
		t.Fatalf("unexpected merge status %+v", status)
	}
	h.waitIdle(t)

	final, err := h.client.MergeStatus(ctx)
	if err != nil {
		t.Fatalf("MergeStatus: %v", err)
	}
	if final.State != string(merge.StateCompleted) || final.Percent != 100 {
		t.Fatalf("unexpected final merge status %+v", final)
	}
	if len(gotArgs) == 0 || gotArgs[len(gotArgs)-1] != want {
		t.Fatalf("ffmpeg args = %v", gotArgs)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("merged output missing: %v", err)
	}
}

func TestMergeValidation(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.writeSource(t, h.cfg.Paths.MergeSourceDir, "one.wav", "two.wav")
	ctx := context.Background()

	cases := map[string]api.MergeStartRequest{
		"single source": {Files: []string{"one.wav", "absent.wav"}},
		"nested output": {Files: []string{"one.wav", "two.wav"}, Output: "../up.wav"},
	}
	for name, req := range cases {
		_, err := h.client.StartMerge(ctx, req)
		var statusErr *api.StatusError
		if !errors.As(err, &statusErr) || statusErr.Code != http.StatusBadRequest {
			t.Fatalf("%s: err = %v, want 400", name, err)
		}
	}
	if ok, err := h.client.CancelMerge(ctx); err != nil || ok {
		t.Fatalf("cancel with no merge = %v, %v", ok, err)
	}
}

func TestHealthReportsDependencies(t *testing.T) {
	h := newHarness(t, harnessOptions{config: []testsupport.ConfigOption{testsupport.WithStubbedBinaries()}})
	testsupport.WriteFile(t, h.cfg.ModelPath(), 16)

	health, err := h.client.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if health.PID != os.Getpid() || health.TaskRunning || health.MergeRunning {
		t.Fatalf("unexpected health %+v", health)
	}
	if len(health.Dependencies) == 0 || !health.Healthy {
		t.Fatalf("dependencies = %+v", health.Dependencies)
	}
}

func TestStreamSendsKeepalive(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.daemon.api.keepalive = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, api.TaskStreamPath, nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.daemon.api.stream(rec, req, h.tasks)

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), ": keepalive\n\n") {
		t.Fatalf("body = %q", rec.Body.String())
	}
	if h.bus.Subscribers() != 0 {
		t.Fatal("stream must unsubscribe on exit")
	}
}

func TestStreamEndsOnTerminalEvent(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	req := httptest.NewRequest(http.MethodGet, api.TaskStreamPath, nil)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		h.daemon.api.stream(rec, req, h.tasks)
		close(done)
	}()
	waitSubscribers(t, h.bus, 1)
	h.bus.Publish(eventbus.Progress{Current: 1, Total: 1, Phase: "transcribing", Item: "a"})
	h.bus.Publish(eventbus.BatchCancelled{})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not stop on batch_cancelled")
	}
	var got []eventbus.Type
	if err := api.ReadEvents(strings.NewReader(rec.Body.String()), func(ev eventbus.Event) error {
		got = append(got, ev.Type)
		return nil
	}); err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(got) != 2 || got[1] != eventbus.TypeBatchCancelled {
		t.Fatalf("events = %v", got)
	}
}
