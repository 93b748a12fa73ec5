package event

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event is the envelope published to the delivery queue.
// Body is kept as the raw bytes received on the wire; re-encoding the
// payload would invalidate its signature.
type Event struct {
	ID         string          `json:"id"`
	EventType  string          `json:"event_type"`
	ReceivedAt time.Time       `json:"received_at"`
	Body       json.RawMessage `json:"body"`
	Signature  string          `json:"signature"`
}

// Encode serializes the event for the queue.
func Encode(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal event %s: %w", ev.ID, err)
	}
	return data, nil
}

// Decode parses a queue message back into an Event.
func Decode(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("unmarshal event envelope: %w", err)
	}
	return ev, nil
}
