package chat

import (
	"bayou-chat/internal/models"

	"github.com/google/uuid"
)

// Event names pushed to live peer connections.
const (
	EventNewMessage     = "newMessage"
	EventMessageEdited  = "messageEdited"
	EventMessageDeleted = "messageDeleted"
	EventMessageRead    = "messageRead"
)

// Event is one typed notification about a committed mutation, addressed to
// a single user.
type Event struct {
	Name    string
	Target  uuid.UUID
	Payload any
}

// Envelope is the wire shape of a pushed event.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// DeletedPayload accompanies a messageDeleted event.
type DeletedPayload struct {
	MessageID uuid.UUID `json:"messageId"`
}

// ReadPayload accompanies a messageRead event.
type ReadPayload struct {
	MessageID uuid.UUID            `json:"messageId"`
	ReadBy    []models.ReadReceipt `json:"readBy"`
}

// Publisher hands committed mutation events to the fan-out path. Publishing
// must never block or fail the mutation that produced the event.
type Publisher interface {
	Publish(evt *Event)
}
