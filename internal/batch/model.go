package batch

import (
	"sync"
	"time"

	"lrcforge/internal/config"
)

// ItemStatus tracks a single item through the pipeline. It only moves forward:
// pending, processing, then completed or failed.
type ItemStatus string

const (
	ItemPending    ItemStatus = "pending"
	ItemProcessing ItemStatus = "processing"
	ItemCompleted  ItemStatus = "completed"
	ItemFailed     ItemStatus = "failed"
)

func (s ItemStatus) rank() int {
	switch s {
	case ItemProcessing:
		return 1
	case ItemCompleted, ItemFailed:
		return 2
	default:
		return 0
	}
}

// Phase is the batch-level state.
type Phase string

const (
	PhasePending      Phase = "pending"
	PhaseTranscribing Phase = "transcribing"
	PhaseEmbedding    Phase = "embedding"
	PhaseCompleted    Phase = "completed"
	PhaseFailed       Phase = "failed"
	PhaseCancelled    Phase = "cancelled"
)

// Terminal reports whether the batch can no longer change.
func (p Phase) Terminal() bool {
	switch p {
	case PhaseCompleted, PhaseFailed, PhaseCancelled:
		return true
	default:
		return false
	}
}

// Item is one source file and the artifacts it produces.
type Item struct {
	Name       string     `json:"name"`
	SourcePath string     `json:"source_path"`
	LyricPath  string     `json:"lyric_path"`
	OutputPath string     `json:"output_path"`
	Status     ItemStatus `json:"status"`
	Error      string     `json:"error,omitempty"`
}

// Options are the per-batch settings captured when the batch is accepted, so
// config edits during a run do not change it midway.
type Options struct {
	Model          string
	Language       string
	Prompt         string
	Threads        int
	Singer         string
	Album          string
	CoverPath      string
	LyricsLanguage string
}

// OptionsFromConfig captures the batch-relevant settings.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Model:          cfg.Transcription.Model,
		Language:       cfg.Transcription.Language,
		Prompt:         cfg.Transcription.Prompt,
		Threads:        cfg.Transcription.Threads,
		Singer:         cfg.Tags.Singer,
		Album:          cfg.Tags.Album,
		CoverPath:      cfg.Tags.CoverPath,
		LyricsLanguage: cfg.Tags.LyricsLanguage,
	}
}

// Batch is an ordered set of items processed by exactly one runner goroutine.
// Readers use Snapshot; all mutation goes through the runner.
type Batch struct {
	ID        string
	StartedAt time.Time

	mu            sync.RWMutex
	items         []Item
	current       int
	phase         Phase
	cancelled     bool
	successCount  int
	failCount     int
	itemStartedAt time.Time
	finishedAt    time.Time
	done          chan struct{}
}

// New builds a pending batch. Item statuses are reset to pending.
func New(id string, items []Item, startedAt time.Time) *Batch {
	copied := make([]Item, len(items))
	for i, item := range items {
		item.Status = ItemPending
		item.Error = ""
		copied[i] = item
	}
	return &Batch{
		ID:        id,
		StartedAt: startedAt,
		items:     copied,
		current:   -1,
		phase:     PhasePending,
		done:      make(chan struct{}),
	}
}

// Done is closed when the runner has exited.
func (b *Batch) Done() <-chan struct{} {
	return b.done
}

// Len is the number of items.
func (b *Batch) Len() int {
	return len(b.items)
}

// RequestCancel sets the cancel flag. It returns false when the flag was
// already set or the batch is terminal, so callers can announce cancellation
// exactly once.
func (b *Batch) RequestCancel() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancelled || b.phase.Terminal() {
		return false
	}
	b.cancelled = true
	return true
}

// CancelRequested reports whether cancellation has been requested.
func (b *Batch) CancelRequested() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cancelled
}

// Snapshot is a point-in-time copy of a batch.
type Snapshot struct {
	ID            string
	Phase         Phase
	Current       int // 1-based; 0 before the first item starts
	Total         int
	ItemName      string
	ItemStartedAt time.Time
	StartedAt     time.Time
	FinishedAt    time.Time
	SuccessCount  int
	FailCount     int
	Cancelled     bool
	Items         []Item
}

// Snapshot copies the batch state.
func (b *Batch) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	snap := Snapshot{
		ID:            b.ID,
		Phase:         b.phase,
		Current:       b.current + 1,
		Total:         len(b.items),
		ItemStartedAt: b.itemStartedAt,
		StartedAt:     b.StartedAt,
		FinishedAt:    b.finishedAt,
		SuccessCount:  b.successCount,
		FailCount:     b.failCount,
		Cancelled:     b.cancelled,
		Items:         append([]Item(nil), b.items...),
	}
	if b.current >= 0 && b.current < len(b.items) {
		snap.ItemName = b.items[b.current].Name
	}
	return snap
}

func (b *Batch) itemStart() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.itemStartedAt
}

func (b *Batch) setPhase(p Phase) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.phase.Terminal() {
		return
	}
	b.phase = p
}

func (b *Batch) beginItem(i int, now time.Time) Item {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = i
	b.itemStartedAt = now
	if !b.phase.Terminal() {
		b.phase = PhaseTranscribing
	}
	b.advance(i, ItemProcessing, "")
	return b.items[i]
}

func (b *Batch) finishItem(i int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		if b.advance(i, ItemFailed, err.Error()) {
			b.failCount++
		}
		return
	}
	if b.advance(i, ItemCompleted, "") {
		b.successCount++
	}
}

// advance moves item i forward; callers hold b.mu.
func (b *Batch) advance(i int, status ItemStatus, message string) bool {
	item := &b.items[i]
	if status.rank() <= item.Status.rank() {
		return false
	}
	item.Status = status
	item.Error = message
	return true
}

// finish moves the batch to its terminal phase and reports which one.
func (b *Batch) finish(now time.Time, aborted bool) Phase {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.phase.Terminal() {
		switch {
		case b.cancelled:
			b.phase = PhaseCancelled
		case aborted:
			b.phase = PhaseFailed
		default:
			b.phase = PhaseCompleted
		}
	}
	b.finishedAt = now
	return b.phase
}
