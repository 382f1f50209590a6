package task

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MessageKind is the delivery shape of an inter-worker message.
type MessageKind string

const (
	KindRequest   MessageKind = "request"
	KindResponse  MessageKind = "response"
	KindBroadcast MessageKind = "broadcast"
)

var ErrInvalidMessage = errors.New("invalid inter-worker message")

// Message is an inter-worker message carried by the bus.
type Message struct {
	ID            uuid.UUID       `json:"id"`
	From          string          `json:"from"`
	To            string          `json:"to,omitempty"`
	Kind          MessageKind     `json:"kind"`
	CorrelationID string          `json:"correlationId,omitempty"`
	Priority      Priority        `json:"priority"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// NewMessage creates a message with identity and timestamp set.
func NewMessage(from, to string, kind MessageKind, payload json.RawMessage) *Message {
	return &Message{
		ID:        uuid.New(),
		From:      from,
		To:        to,
		Kind:      kind,
		Priority:  PriorityMedium,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
}

// Validate checks the message shape and fills missing identity fields.
func (m *Message) Validate() error {
	m.From = strings.TrimSpace(m.From)
	m.To = strings.TrimSpace(m.To)
	if m.From == "" {
		return fmt.Errorf("%w: from is required", ErrInvalidMessage)
	}
	switch m.Kind {
	case KindBroadcast:
	case KindRequest, KindResponse:
		if m.To == "" {
			return fmt.Errorf("%w: to is required for %s", ErrInvalidMessage, m.Kind)
		}
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidMessage, m.Kind)
	}
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	m.Priority = ParsePriority(string(m.Priority))
	return nil
}
