package daemon

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/sse"

	"lrcforge/internal/eventbus"
	"lrcforge/internal/logging"
)

// keepaliveInterval is how long a stream may stay silent before a comment
// frame is sent.
const keepaliveInterval = 30 * time.Second

// eventSource is implemented by the task manager and the merger.
type eventSource interface {
	Subscribe() *eventbus.Subscription
	Unsubscribe(*eventbus.Subscription)
}

// stream forwards live events until a terminal event, the client leaves, or
// the subscriber is dropped for falling behind.
func (s *apiServer) stream(w http.ResponseWriter, r *http.Request, source eventSource) {
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && err != http.ErrNotSupported {
		s.logger.Debug("clear stream write deadline", logging.Error(err))
	}

	sub := source.Subscribe()
	defer source.Unsubscribe(sub)

	header := w.Header()
	header.Set("Content-Type", sse.ContentType)
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_ = rc.Flush()

	interval := s.keepalive
	if interval <= 0 {
		interval = keepaliveInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger := logging.WithContext(r.Context(), s.logger)
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		case ev, ok := <-sub.Events():
			if !ok {
				logger.Debug("event stream closed", logging.Uint64("subscription", sub.ID()))
				return
			}
			if err := writeEvent(w, ev); err != nil {
				logger.Debug("event stream write failed", logging.Error(err))
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
			if ev.Type.Terminal() {
				return
			}
			ticker.Reset(interval)
		}
	}
}

func writeEvent(w io.Writer, ev eventbus.Event) error {
	return sse.Encode(w, sse.Event{
		Id:    strconv.FormatUint(ev.Seq, 10),
		Event: string(ev.Type),
		Data:  ev.Payload,
	})
}
