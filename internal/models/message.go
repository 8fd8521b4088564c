package models

import (
	"time"

	"github.com/google/uuid"
)

// DeletedText is the tombstone placeholder shown in place of deleted content.
const DeletedText = "This message has been deleted"

// EditRecord captures the text a message held immediately before one edit.
type EditRecord struct {
	PriorText string    `json:"priorText" bson:"priorText"`
	EditedAt  time.Time `json:"editedAt" bson:"editedAt"`
}

// ReadReceipt records the first time a user marked the message as read.
type ReadReceipt struct {
	UserID uuid.UUID `json:"userId" bson:"userId"`
	ReadAt time.Time `json:"readAt" bson:"readAt"`
}

// Message is a direct message between two users. Deletion is logical: the
// record is kept with IsDeleted set and the text replaced by DeletedText.
type Message struct {
	ID          uuid.UUID     `json:"id"`
	SenderID    uuid.UUID     `json:"senderId"`
	ReceiverID  uuid.UUID     `json:"receiverId"`
	Text        string        `json:"text,omitempty"`
	Image       string        `json:"image,omitempty"`
	IsEdited    bool          `json:"isEdited"`
	EditHistory []EditRecord  `json:"editHistory"`
	ReplyTo     *uuid.UUID    `json:"replyTo,omitempty"`
	ReadBy      []ReadReceipt `json:"readBy"`
	IsDeleted   bool          `json:"isDeleted"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// Clone returns a deep copy so stores can hand out values without aliasing
// their internal state.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	cp := *m
	if m.ReplyTo != nil {
		replyTo := *m.ReplyTo
		cp.ReplyTo = &replyTo
	}
	cp.EditHistory = append([]EditRecord(nil), m.EditHistory...)
	cp.ReadBy = append([]ReadReceipt(nil), m.ReadBy...)
	return &cp
}

// HasBeenReadBy reports whether userID already appears in the read receipts.
func (m *Message) HasBeenReadBy(userID uuid.UUID) bool {
	for _, r := range m.ReadBy {
		if r.UserID == userID {
			return true
		}
	}
	return false
}
