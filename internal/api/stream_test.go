package api_test

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"lrcforge/internal/api"
	"lrcforge/internal/eventbus"
)

const sampleStream = "id:1\nevent:progress\ndata:{\"current\":1,\"total\":2,\"phase\":\"transcribing\",\"item\":\"a\"}\n\n" +
	": keepalive\n\n" +
	"id:2\nevent:line\ndata: {\"item\":\"a\",\"time\":\"[00:01.50]\",\"text\":\"hi\",\"offset_ms\":1500}\n\n" +
	"id:3\nevent:mystery\ndata:{}\n\n" +
	"id:4\nevent:batch_cancelled\ndata:{}\n\n"

func TestReadEvents(t *testing.T) {
	var got []eventbus.Event
	err := api.ReadEvents(strings.NewReader(sampleStream), func(ev eventbus.Event) error {
		got = append(got, ev)
		return nil
	})
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d events: %+v", len(got), got)
	}
	progress, ok := got[0].Payload.(eventbus.Progress)
	if !ok || got[0].Seq != 1 || progress.Item != "a" || progress.Total != 2 {
		t.Fatalf("unexpected progress %+v", got[0])
	}
	line, ok := got[1].Payload.(eventbus.Line)
	if !ok || line.Text != "hi" || line.OffsetMS != 1500 {
		t.Fatalf("unexpected line %+v", got[1])
	}
	if got[2].Type != eventbus.TypeBatchCancelled || got[2].Seq != 4 {
		t.Fatalf("unexpected terminal event %+v", got[2])
	}
}

func TestReadEventsRejectsMalformedData(t *testing.T) {
	err := api.ReadEvents(strings.NewReader("event:progress\ndata:{nope\n\n"), func(eventbus.Event) error { return nil })
	if err == nil {
		t.Fatal("expected decode error")
	}
}

func TestStreamStopsOnCallback(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/task/stream", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(sampleStream))
	})
	client := newTestClient(t, mux, "")

	var seen int
	err := client.Stream(context.Background(), api.TaskStreamPath, func(eventbus.Event) error {
		seen++
		return api.ErrStopStream
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if seen != 1 {
		t.Fatalf("callback ran %d times after stop", seen)
	}
}
