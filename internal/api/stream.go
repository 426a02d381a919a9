package api

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"lrcforge/internal/eventbus"
)

// ErrStopStream may be returned by a stream callback to end the stream
// without reporting an error.
var ErrStopStream = errors.New("stop stream")

// Stream paths served by the daemon.
const (
	TaskStreamPath  = "/api/task/stream"
	MergeStreamPath = "/api/merge/stream"
)

// Stream follows an SSE endpoint and invokes fn for each decoded event. It
// returns nil when the server ends the stream or fn returns ErrStopStream.
func (c *Client) Stream(ctx context.Context, path string, fn func(eventbus.Event) error) error {
	if c == nil {
		return ErrAPIUnavailable
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.stream.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	err = ReadEvents(resp.Body, fn)
	if errors.Is(err, ErrStopStream) {
		return nil
	}
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// ReadEvents parses Server-Sent Events frames from r. Comment lines such as
// keepalives are skipped; frames with an unknown event name are ignored.
func ReadEvents(r io.Reader, fn func(eventbus.Event) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		id    string
		name  string
		data  strings.Builder
		dirty bool
	)
	dispatch := func() error {
		defer func() {
			id, name = "", ""
			data.Reset()
			dirty = false
		}()
		if !dirty || name == "" {
			return nil
		}
		payload, err := eventbus.DecodePayload(eventbus.Type(name), []byte(data.String()))
		if err != nil {
			if errors.Is(err, eventbus.ErrUnknownType) {
				return nil
			}
			return fmt.Errorf("decode %s event: %w", name, err)
		}
		ev := eventbus.Event{Type: payload.EventType(), Payload: payload}
		if id != "" {
			if seq, err := strconv.ParseUint(id, 10, 64); err == nil {
				ev.Seq = seq
			}
		}
		return fn(ev)
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if err := dispatch(); err != nil {
				return err
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "id":
			id = value
		case "event":
			name = value
		case "data":
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(value)
		default:
			continue
		}
		dirty = true
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return dispatch()
}
