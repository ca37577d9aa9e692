package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"mgnregs/internal/core"
)

const messageSchemaVersion = 1

// QueryEventMessage is the envelope published for every served query.
type QueryEventMessage struct {
	SchemaVersion int             `json:"schema_version"`
	PublishedAt   time.Time       `json:"published_at"`
	Event         core.QueryEvent `json:"event"`
}

// NewQueryEventMessage wraps ev in a versioned envelope.
func NewQueryEventMessage(ev core.QueryEvent) *QueryEventMessage {
	return &QueryEventMessage{
		SchemaVersion: messageSchemaVersion,
		PublishedAt:   time.Now().UTC(),
		Event:         ev,
	}
}

// ToJSON converts the message to JSON bytes
func (m *QueryEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// QueryEventMessageFromJSON decodes and sanity-checks a message body.
func QueryEventMessageFromJSON(data []byte) (*QueryEventMessage, error) {
	var msg QueryEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.SchemaVersion != messageSchemaVersion {
		return nil, fmt.Errorf("unsupported schema version %d", msg.SchemaVersion)
	}
	if msg.Event.ID == "" {
		return nil, errors.New("event id is required")
	}
	return &msg, nil
}
