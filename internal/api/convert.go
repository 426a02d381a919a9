package api

import (
	"time"

	"lrcforge/internal/batch"
	"lrcforge/internal/eventbus"
	"lrcforge/internal/merge"
	"lrcforge/internal/task"
)

// FromTaskStatus converts the manager's view into its wire form.
func FromTaskStatus(s task.Status) TaskStatus {
	out := TaskStatus{
		Running: s.Running,
		BatchID: s.BatchID,
		Progress: TaskProgress{
			Current:  s.Progress.Current,
			Total:    s.Progress.Total,
			Phase:    string(s.Progress.Phase),
			Item:     s.Progress.Item,
			Duration: s.Progress.Duration.Seconds(),
		},
		RecentEvents: s.RecentEvents,
		StartedAt:    formatTime(s.StartedAt),
		FinishedAt:   formatTime(s.FinishedAt),
		SuccessCount: s.SuccessCount,
		FailCount:    s.FailCount,
		Cancelled:    s.Cancelled,
		Items:        s.Items,
	}
	if out.RecentEvents == nil {
		out.RecentEvents = []eventbus.Event{}
	}
	if out.Items == nil {
		out.Items = []batch.Item{}
	}
	return out
}

// FromMergeStatus converts a merge snapshot into its wire form.
func FromMergeStatus(s merge.Status) MergeStatus {
	return MergeStatus{
		JobID:      s.JobID,
		State:      string(s.State),
		Percent:    s.Percent,
		Message:    s.Message,
		Output:     s.Output,
		Files:      s.Files,
		StartedAt:  formatTime(s.StartedAt),
		FinishedAt: formatTime(s.FinishedAt),
		Error:      s.Error,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// ParseTime reads a timestamp produced by the API, returning the zero time
// for empty or malformed values.
func ParseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(dateTimeFormat, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
