package daemonrun

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"lrcforge/internal/eventbus"
	"lrcforge/internal/logging"
	"lrcforge/internal/merge"
	"lrcforge/internal/testsupport"
)

func TestWritePIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lrcforge.pid")
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(data)) != strconv.Itoa(os.Getpid()) {
		t.Fatalf("pid file = %q", data)
	}
	if err := writePIDFile(""); err != nil {
		t.Fatalf("empty path should be ignored: %v", err)
	}
}

func TestBuildServicesWiresSeparateBuses(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	live := testsupport.NewLive(t, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tasks, merger, lib := buildServices(ctx, live, nil, logging.NewNop())
	if tasks == nil || merger == nil || lib == nil {
		t.Fatal("buildServices returned nil component")
	}
	sub := tasks.Subscribe()
	defer tasks.Unsubscribe(sub)
	mergeSub := merger.Subscribe()
	defer merger.Unsubscribe(mergeSub)

	if _, err := merger.Start(mergeRequest(t, cfg.Paths.MergeSourceDir, cfg.Paths.MergeOutputDir)); err == nil {
		waitCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		_ = merger.Wait(waitCtx)
	}
	select {
	case ev := <-sub.Events():
		t.Fatalf("merge event %s leaked onto the batch stream", ev.Type)
	default:
	}
}

func TestServicesCloseEndsSubscriptions(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	live := testsupport.NewLive(t, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tasks, merger, _ := buildServices(ctx, live, nil, logging.NewNop())
	sub := tasks.Subscribe()
	mergeSub := merger.Subscribe()

	waitCtx, stop := context.WithTimeout(context.Background(), time.Second)
	defer stop()
	if err := tasks.Wait(waitCtx); err != nil {
		t.Fatalf("tasks.Wait: %v", err)
	}
	if err := merger.Wait(waitCtx); err != nil {
		t.Fatalf("merger.Wait: %v", err)
	}
	tasks.Close()
	merger.Close()

	for name, ch := range map[string]<-chan eventbus.Event{"batch": sub.Events(), "merge": mergeSub.Events()} {
		select {
		case _, ok := <-ch:
			if ok {
				t.Fatalf("%s subscription received an event after close", name)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s subscription still open after close", name)
		}
	}
	late := tasks.Subscribe()
	if _, ok := <-late.Events(); ok {
		t.Fatal("subscription after close should start closed")
	}
}

func TestRunRequiresConfig(t *testing.T) {
	if err := Run(context.Background(), nil, Options{}); err == nil {
		t.Fatal("expected error without config")
	}
}

func mergeRequest(t *testing.T, srcDir, outDir string) merge.Request {
	t.Helper()
	var sources []string
	for _, name := range []string{"a.wav", "b.wav"} {
		path := filepath.Join(srcDir, name)
		testsupport.WriteFile(t, path, 32)
		sources = append(sources, path)
	}
	return merge.Request{Sources: sources, Output: filepath.Join(outDir, "out.wav")}
}
