package phase_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"lrcforge/internal/phase"
)

func TestRunReplaysCallbacksInOrder(t *testing.T) {
	worker := phase.NewWorker("transcribe", 1)
	var got []int
	err := phase.Run(context.Background(), worker, phase.Request[int]{
		Op: func(_ context.Context, emit func(int)) error {
			for i := 0; i < 500; i++ {
				emit(i)
				if i%100 == 0 {
					time.Sleep(5 * time.Millisecond)
				}
			}
			return nil
		},
		OnEvent:      func(v int) { got = append(got, v) },
		PollInterval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(got) != 500 {
		t.Fatalf("delivered %d callbacks, want 500", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("callback %d out of order: got %d", i, v)
		}
	}
}

func TestRunDeliversOnCallerGoroutine(t *testing.T) {
	worker := phase.NewWorker("transcribe", 1)
	var mu sync.Mutex
	inside := false
	err := phase.Run(context.Background(), worker, phase.Request[string]{
		Op: func(_ context.Context, emit func(string)) error {
			emit("a")
			emit("b")
			return nil
		},
		OnEvent: func(string) {
			// OnEvent must never run concurrently with itself.
			mu.Lock()
			if inside {
				t.Error("concurrent OnEvent")
			}
			inside = true
			mu.Unlock()
			time.Sleep(time.Millisecond)
			mu.Lock()
			inside = false
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRunZeroCallbacks(t *testing.T) {
	worker := phase.NewWorker("embed", 2)
	calls := 0
	err := phase.Run(context.Background(), worker, phase.Request[int]{
		Op:      func(context.Context, func(int)) error { return nil },
		OnEvent: func(int) { calls++ },
	})
	if err != nil || calls != 0 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestRunPropagatesOperationError(t *testing.T) {
	worker := phase.NewWorker("embed", 1)
	want := errors.New("decode error")
	var got []int
	err := phase.Run(context.Background(), worker, phase.Request[int]{
		Op: func(_ context.Context, emit func(int)) error {
			emit(1)
			return want
		},
		OnEvent: func(v int) { got = append(got, v) },
	})
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
	if len(got) != 1 {
		t.Fatal("callbacks emitted before failure must still be delivered")
	}
}

func TestRunConvertsPanicToWorkerFailure(t *testing.T) {
	worker := phase.NewWorker("embed", 1)
	err := phase.Run(context.Background(), worker, phase.Request[int]{
		Op: func(context.Context, func(int)) error { panic("kaboom") },
	})
	if !errors.Is(err, phase.ErrWorkerFailure) {
		t.Fatalf("err = %v, want ErrWorkerFailure", err)
	}

	// The slot must be released after a panic.
	done := make(chan error, 1)
	go func() {
		done <- phase.Run(context.Background(), worker, phase.Request[int]{
			Op: func(context.Context, func(int)) error { return nil },
		})
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("follow-up run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker slot leaked after panic")
	}
}

func TestRunDoesNotInterruptOnCancellation(t *testing.T) {
	worker := phase.NewWorker("transcribe", 1)
	finished := false
	err := phase.Run(context.Background(), worker, phase.Request[int]{
		Op: func(_ context.Context, emit func(int)) error {
			time.Sleep(50 * time.Millisecond)
			emit(1)
			finished = true
			return nil
		},
		Cancelled:    func() bool { return true },
		PollInterval: 5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !finished {
		t.Fatal("operation should run to completion despite cancellation")
	}
}

func TestSingleSlotWorkerSerializes(t *testing.T) {
	worker := phase.NewWorker("transcribe", 1)
	var active, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = phase.Run(context.Background(), worker, phase.Request[int]{
				Op: func(context.Context, func(int)) error {
					n := atomic.AddInt32(&active, 1)
					for {
						p := atomic.LoadInt32(&peak)
						if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
							break
						}
					}
					time.Sleep(10 * time.Millisecond)
					atomic.AddInt32(&active, -1)
					return nil
				},
			})
		}()
	}
	wg.Wait()
	if peak != 1 {
		t.Fatalf("peak concurrency = %d, want 1", peak)
	}
}

func TestRunReturnsWhenContextDoneBeforeSlot(t *testing.T) {
	worker := phase.NewWorker("transcribe", 1)
	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = phase.Run(context.Background(), worker, phase.Request[int]{
			Op: func(context.Context, func(int)) error {
				close(started)
				<-release
				return nil
			},
		})
	}()
	<-started
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := phase.Run(ctx, worker, phase.Request[int]{
		Op: func(context.Context, func(int)) error { return nil },
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestNewWorkerClampsSlots(t *testing.T) {
	if got := phase.NewWorker("x", 0).Slots(); got != 1 {
		t.Fatalf("slots = %d, want 1", got)
	}
}
