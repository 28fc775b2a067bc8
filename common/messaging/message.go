package messaging

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/LexiconIndonesia/covercraft-service/common/constants"
	"github.com/google/uuid"
)

var (
	// ErrNoResponse is returned to a requester when the receiving context has
	// no handler for the message type, or never answers.
	ErrNoResponse = errors.New("no response from receiving context")
	// ErrNoListener is returned when nothing is attached to the endpoint.
	ErrNoListener = errors.New("receiving end does not exist")
	// ErrEndpointTaken is returned when a second coordinator listens on an endpoint.
	ErrEndpointTaken = errors.New("endpoint already has a listener")
)

// Message is the unit exchanged between contexts.
type Message struct {
	ID      string                `json:"id"`
	Type    constants.MessageType `json:"type"`
	Payload json.RawMessage       `json:"payload,omitempty"`
	// TabID is set when the message originates from a page context.
	TabID *int `json:"tabId,omitempty"`
}

// NewMessage builds a message with a fresh id. A nil payload is omitted.
func NewMessage(typ constants.MessageType, payload any) (Message, error) {
	msg := Message{
		ID:   uuid.NewString(),
		Type: typ,
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Message{}, fmt.Errorf("encoding %s payload: %w", typ, err)
		}
		msg.Payload = raw
	}
	return msg, nil
}

// FromTab returns a copy of m stamped with the originating tab.
func (m Message) FromTab(tabID int) Message {
	m.TabID = &tabID
	return m
}

// Decode unmarshals the payload into v. An empty payload leaves v untouched.
func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decoding %s payload: %w", m.Type, err)
	}
	return nil
}

// Response is the single reply to a request-type message.
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
}

// OK wraps data in a successful response.
func OK(data any) Response {
	if data == nil {
		return Response{Success: true}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Fail(fmt.Sprintf("encoding response: %v", err))
	}
	return Response{Success: true, Data: raw}
}

// Fail builds a failed response carrying a user-facing message.
func Fail(msg string) Response {
	return Response{Success: false, Error: msg}
}

// WithMessage attaches an informational message.
func (r Response) WithMessage(msg string) Response {
	r.Message = msg
	return r
}

// Decode unmarshals the response data into v.
func (r Response) Decode(v any) error {
	if len(r.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("decoding response data: %w", err)
	}
	return nil
}

// Err converts a failed response into an error.
func (r Response) Err() error {
	if r.Success {
		return nil
	}
	if r.Error == "" {
		return errors.New("request failed")
	}
	return errors.New(r.Error)
}
