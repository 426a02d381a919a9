package eventbus

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Type names an event kind on the wire.
type Type string

const (
	TypeProgress         Type = "progress"
	TypeLine             Type = "line"
	TypePhaseOneComplete Type = "phase1_complete"
	TypeItemComplete     Type = "item_complete"
	TypeError            Type = "error"
	TypeBatchComplete    Type = "batch_complete"
	TypeBatchCancelled   Type = "batch_cancelled"
	TypeMergeProgress    Type = "merge_progress"
	TypeMergeComplete    Type = "merge_complete"
)

// Terminal reports whether no further events follow this type for the current run.
func (t Type) Terminal() bool {
	switch t {
	case TypeBatchComplete, TypeBatchCancelled, TypeMergeComplete:
		return true
	default:
		return false
	}
}

// Payload is the closed set of event bodies. Only types in this package implement it.
type Payload interface {
	EventType() Type
	sealed()
}

// Progress reports which item the batch is on and what it is doing.
type Progress struct {
	Current  int     `json:"current"`
	Total    int     `json:"total"`
	Phase    string  `json:"phase"`
	Item     string  `json:"item"`
	Duration float64 `json:"duration"`
}

// Line carries one transcribed lyric line while phase one runs.
type Line struct {
	Item     string `json:"item"`
	Time     string `json:"time"`
	OffsetMS int64  `json:"offset_ms"`
	Text     string `json:"text"`
}

// PhaseOneComplete marks the lyric artifact for an item as written.
type PhaseOneComplete struct {
	Item string `json:"item"`
}

// ItemComplete closes out a single item.
type ItemComplete struct {
	Item    string `json:"item"`
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Error describes a per-item failure. It is always followed by an ItemComplete.
type Error struct {
	Item    string `json:"item"`
	Message string `json:"message"`
}

// BatchComplete is published once when a batch finishes without cancellation.
type BatchComplete struct {
	SuccessCount int `json:"success_count"`
	FailCount    int `json:"fail_count"`
}

// BatchCancelled is published once when cancellation is requested.
type BatchCancelled struct{}

// MergeProgress reports audio merge progress as a percentage.
type MergeProgress struct {
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

// MergeComplete closes out a merge job.
type MergeComplete struct {
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
	Message string `json:"message"`
}

func (Progress) EventType() Type         { return TypeProgress }
func (Line) EventType() Type             { return TypeLine }
func (PhaseOneComplete) EventType() Type { return TypePhaseOneComplete }
func (ItemComplete) EventType() Type     { return TypeItemComplete }
func (Error) EventType() Type            { return TypeError }
func (BatchComplete) EventType() Type    { return TypeBatchComplete }
func (BatchCancelled) EventType() Type   { return TypeBatchCancelled }
func (MergeProgress) EventType() Type    { return TypeMergeProgress }
func (MergeComplete) EventType() Type    { return TypeMergeComplete }

func (Progress) sealed()         {}
func (Line) sealed()             {}
func (PhaseOneComplete) sealed() {}
func (ItemComplete) sealed()     {}
func (Error) sealed()            {}
func (BatchComplete) sealed()    {}
func (BatchCancelled) sealed()   {}
func (MergeProgress) sealed()    {}
func (MergeComplete) sealed()    {}

// Event is a sequenced, timestamped payload as stored in history and delivered to subscribers.
type Event struct {
	Seq       uint64
	Type      Type
	Payload   Payload
	Timestamp time.Time
}

type wireEvent struct {
	Seq       uint64          `json:"seq"`
	Type      Type            `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// MarshalJSON renders the event as {seq, type, data, timestamp}.
func (e Event) MarshalJSON() ([]byte, error) {
	data := []byte("{}")
	if e.Payload != nil {
		var err error
		data, err = json.Marshal(e.Payload)
		if err != nil {
			return nil, err
		}
	}
	return json.Marshal(wireEvent{Seq: e.Seq, Type: e.Type, Data: data, Timestamp: e.Timestamp})
}

// UnmarshalJSON restores the concrete payload from the type tag.
func (e *Event) UnmarshalJSON(data []byte) error {
	var wire wireEvent
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	payload, err := DecodePayload(wire.Type, wire.Data)
	if err != nil {
		return err
	}
	*e = Event{Seq: wire.Seq, Type: wire.Type, Payload: payload, Timestamp: wire.Timestamp}
	return nil
}

var decoders = map[Type]func([]byte) (Payload, error){
	TypeProgress:         decodeAs[Progress],
	TypeLine:             decodeAs[Line],
	TypePhaseOneComplete: decodeAs[PhaseOneComplete],
	TypeItemComplete:     decodeAs[ItemComplete],
	TypeError:            decodeAs[Error],
	TypeBatchComplete:    decodeAs[BatchComplete],
	TypeBatchCancelled:   decodeAs[BatchCancelled],
	TypeMergeProgress:    decodeAs[MergeProgress],
	TypeMergeComplete:    decodeAs[MergeComplete],
}

// ErrUnknownType reports an event name with no registered payload.
var ErrUnknownType = errors.New("eventbus: unknown event type")

// DecodePayload parses the JSON body of an event of the given type.
func DecodePayload(t Type, data []byte) (Payload, error) {
	decode, ok := decoders[t]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownType, t)
	}
	return decode(data)
}

func decodeAs[T Payload](data []byte) (Payload, error) {
	var v T
	if len(data) == 0 || string(data) == "null" {
		return v, nil
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("eventbus: decode %s: %w", v.EventType(), err)
	}
	return v, nil
}
