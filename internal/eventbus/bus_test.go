package eventbus_test

import (
	"encoding/json"
	"testing"
	"time"

	"lrcforge/internal/eventbus"
)

func TestPublishAssignsIncreasingSequence(t *testing.T) {
	bus := eventbus.New(eventbus.Options{})
	first := bus.Publish(eventbus.PhaseOneComplete{Item: "a"})
	second := bus.Publish(eventbus.PhaseOneComplete{Item: "b"})
	if first.Seq != 1 || second.Seq != 2 {
		t.Fatalf("unexpected sequence: %d, %d", first.Seq, second.Seq)
	}
	if first.Type != eventbus.TypePhaseOneComplete {
		t.Fatalf("unexpected type %q", first.Type)
	}
	if first.Timestamp.IsZero() {
		t.Fatal("expected timestamp")
	}
}

func TestMinimumSizesEnforced(t *testing.T) {
	bus := eventbus.New(eventbus.Options{HistorySize: 10, OutboxSize: 5})
	if bus.Capacity() != eventbus.MinHistorySize {
		t.Fatalf("capacity = %d, want %d", bus.Capacity(), eventbus.MinHistorySize)
	}
}

func TestHistoryBoundedAndEvictsOldest(t *testing.T) {
	bus := eventbus.New(eventbus.Options{HistorySize: eventbus.MinHistorySize})
	total := eventbus.MinHistorySize + 250
	for i := 0; i < total; i++ {
		bus.Publish(eventbus.Progress{Current: i})
	}
	if bus.Len() != eventbus.MinHistorySize {
		t.Fatalf("len = %d, want %d", bus.Len(), eventbus.MinHistorySize)
	}
	snap := bus.Snapshot()
	if got := snap[0].Payload.(eventbus.Progress).Current; got != 250 {
		t.Fatalf("oldest retained = %d, want 250", got)
	}
	if got := snap[len(snap)-1].Payload.(eventbus.Progress).Current; got != total-1 {
		t.Fatalf("newest retained = %d, want %d", got, total-1)
	}
	for i := 1; i < len(snap); i++ {
		if snap[i].Seq != snap[i-1].Seq+1 {
			t.Fatalf("snapshot out of order at %d", i)
		}
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	bus := eventbus.New(eventbus.Options{})
	bus.Publish(eventbus.BatchCancelled{})
	snap := bus.Snapshot()
	snap[0].Seq = 99
	if bus.Snapshot()[0].Seq != 1 {
		t.Fatal("snapshot mutation leaked into history")
	}
}

func TestRecentReturnsNewest(t *testing.T) {
	bus := eventbus.New(eventbus.Options{})
	for i := 0; i < 5; i++ {
		bus.Publish(eventbus.Progress{Current: i})
	}
	recent := bus.Recent(2)
	if len(recent) != 2 || recent[0].Seq != 4 || recent[1].Seq != 5 {
		t.Fatalf("unexpected recent events: %+v", recent)
	}
}

func TestSubscriberReceivesInOrderWithoutReplay(t *testing.T) {
	bus := eventbus.New(eventbus.Options{})
	bus.Publish(eventbus.Progress{Current: 0})
	sub := bus.Subscribe()
	for i := 1; i <= 3; i++ {
		bus.Publish(eventbus.Progress{Current: i})
	}
	for want := 1; want <= 3; want++ {
		select {
		case ev := <-sub.Events():
			if got := ev.Payload.(eventbus.Progress).Current; got != want {
				t.Fatalf("got %d, want %d", got, want)
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected extra event %+v", ev)
	default:
	}
}

func TestFullOutboxDropsSubscriberWithoutBlocking(t *testing.T) {
	bus := eventbus.New(eventbus.Options{})
	slow := bus.Subscribe()
	fast := bus.Subscribe()

	for i := 0; i < eventbus.MinOutboxSize; i++ {
		bus.Publish(eventbus.Progress{Current: i})
	}
	for i := 0; i < eventbus.MinOutboxSize; i++ {
		<-fast.Events()
	}

	done := make(chan struct{})
	go func() {
		bus.Publish(eventbus.Progress{Current: eventbus.MinOutboxSize})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	if bus.Subscribers() != 1 {
		t.Fatalf("subscribers = %d, want 1", bus.Subscribers())
	}
	count := 0
	for range slow.Events() {
		count++
	}
	if count != eventbus.MinOutboxSize {
		t.Fatalf("slow subscriber drained %d events, want %d", count, eventbus.MinOutboxSize)
	}

	select {
	case ev := <-fast.Events():
		if got := ev.Payload.(eventbus.Progress).Current; got != eventbus.MinOutboxSize {
			t.Fatalf("fast subscriber got %d", got)
		}
	default:
		t.Fatal("fast subscriber missed the final event")
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	bus := eventbus.New(eventbus.Options{})
	sub := bus.Subscribe()
	bus.Unsubscribe(sub)
	bus.Unsubscribe(sub)
	bus.Unsubscribe(nil)
	if _, ok := <-sub.Events(); ok {
		t.Fatal("expected closed channel")
	}
	bus.Publish(eventbus.BatchCancelled{})
}

func TestResetClearsHistoryButKeepsSequence(t *testing.T) {
	bus := eventbus.New(eventbus.Options{})
	bus.Publish(eventbus.BatchCancelled{})
	bus.Reset()
	if bus.Len() != 0 {
		t.Fatalf("len after reset = %d", bus.Len())
	}
	ev := bus.Publish(eventbus.BatchCancelled{})
	if ev.Seq != 2 {
		t.Fatalf("seq after reset = %d, want 2", ev.Seq)
	}
}

func TestCloseClosesSubscribers(t *testing.T) {
	bus := eventbus.New(eventbus.Options{})
	sub := bus.Subscribe()
	bus.Close()
	if _, ok := <-sub.Events(); ok {
		t.Fatal("expected closed channel after Close")
	}
	late := bus.Subscribe()
	if _, ok := <-late.Events(); ok {
		t.Fatal("expected subscription on closed bus to be closed")
	}
}

func TestEventJSONRoundTrip(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	bus := eventbus.New(eventbus.Options{Clock: func() time.Time { return fixed }})
	ev := bus.Publish(eventbus.ItemComplete{Item: "song", Success: false, Message: "decode error"})

	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal raw: %v", err)
	}
	if raw["type"] != "item_complete" {
		t.Fatalf("type = %v", raw["type"])
	}
	body, ok := raw["data"].(map[string]any)
	if !ok || body["item"] != "song" || body["message"] != "decode error" {
		t.Fatalf("unexpected data: %v", raw["data"])
	}

	var decoded eventbus.Event
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, ok := decoded.Payload.(eventbus.ItemComplete)
	if !ok || got.Item != "song" || got.Success {
		t.Fatalf("unexpected payload %#v", decoded.Payload)
	}
	if !decoded.Timestamp.Equal(fixed) {
		t.Fatalf("timestamp = %v", decoded.Timestamp)
	}
}

func TestDecodePayloadRejectsUnknownType(t *testing.T) {
	if _, err := eventbus.DecodePayload("bogus", []byte(`{}`)); err == nil {
		t.Fatal("expected error for unknown type")
	}
}

func TestTerminalTypes(t *testing.T) {
	if !eventbus.TypeBatchComplete.Terminal() || !eventbus.TypeBatchCancelled.Terminal() {
		t.Fatal("batch end events must be terminal")
	}
	if eventbus.TypeItemComplete.Terminal() {
		t.Fatal("item_complete is not terminal")
	}
}
