// Package client reconciles synchronous mutation results and asynchronously
// pushed events into one consistent message list for the selected
// conversation.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"bayou-chat/internal/chat"
	"bayou-chat/internal/models"

	"github.com/google/uuid"
)

// Fetcher loads the full conversation with a peer, typically through the
// service's read path.
type Fetcher func(ctx context.Context, peerID uuid.UUID) ([]*models.Message, error)

// ConversationCache holds the ordered-by-arrival message list for the
// currently selected conversation. Two channels feed it: results of the
// local user's own mutation calls, and events pushed for the peer's
// mutations. Those may arrive in either order, or one of them may never
// arrive; switching conversations refetches and discards the list, which
// compensates for anything missed.
type ConversationCache struct {
	mu       sync.Mutex
	selfID   uuid.UUID
	peerID   uuid.UUID
	selected bool
	messages []*models.Message
	index    map[uuid.UUID]int
}

func NewConversationCache(selfID uuid.UUID) *ConversationCache {
	return &ConversationCache{
		selfID: selfID,
		index:  make(map[uuid.UUID]int),
	}
}

// Select switches to the conversation with peerID. The previous list is
// discarded and replaced by a full refetch.
func (c *ConversationCache) Select(ctx context.Context, peerID uuid.UUID, fetch Fetcher) error {
	messages, err := fetch(ctx, peerID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.peerID = peerID
	c.selected = true
	c.messages = nil
	c.index = make(map[uuid.UUID]int)
	for _, msg := range messages {
		c.upsertLocked(msg)
	}
	return nil
}

// Clear deselects the conversation and drops the list.
func (c *ConversationCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = false
	c.peerID = uuid.Nil
	c.messages = nil
	c.index = make(map[uuid.UUID]int)
}

// Messages returns a snapshot of the current list.
func (c *ConversationCache) Messages() []*models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	snapshot := make([]*models.Message, len(c.messages))
	for i, msg := range c.messages {
		snapshot[i] = msg.Clone()
	}
	return snapshot
}

// ApplyResult merges the synchronous result of a mutation issued by the
// local user. The pushed event for the same mutation may already have been
// applied, so this upserts rather than appends.
func (c *ConversationCache) ApplyResult(msg *models.Message) {
	if msg == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.selected || !c.belongsToConversation(msg) {
		return
	}
	c.upsertLocked(msg)
}

// wireEnvelope mirrors chat.Envelope with the payload left raw for
// per-event decoding.
type wireEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// ApplyPushed merges one pushed event payload as received off the wire.
// Events about messages not present locally are ignored; the next full
// refetch closes that gap.
func (c *ConversationCache) ApplyPushed(payload []byte) error {
	var envelope wireEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return fmt.Errorf("malformed event payload: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.selected {
		return nil
	}

	switch envelope.Event {
	case chat.EventNewMessage, chat.EventMessageEdited:
		var msg models.Message
		if err := json.Unmarshal(envelope.Data, &msg); err != nil {
			return fmt.Errorf("malformed %s payload: %w", envelope.Event, err)
		}
		if !c.belongsToConversation(&msg) {
			return nil
		}
		if envelope.Event == chat.EventMessageEdited {
			// Edits replace only; an edit about an unknown id is dropped.
			if _, ok := c.index[msg.ID]; !ok {
				return nil
			}
		}
		c.upsertLocked(&msg)

	case chat.EventMessageDeleted:
		var deleted chat.DeletedPayload
		if err := json.Unmarshal(envelope.Data, &deleted); err != nil {
			return fmt.Errorf("malformed %s payload: %w", envelope.Event, err)
		}
		if i, ok := c.index[deleted.MessageID]; ok {
			msg := c.messages[i]
			msg.IsDeleted = true
			msg.Text = models.DeletedText
			msg.Image = ""
		}

	case chat.EventMessageRead:
		var read chat.ReadPayload
		if err := json.Unmarshal(envelope.Data, &read); err != nil {
			return fmt.Errorf("malformed %s payload: %w", envelope.Event, err)
		}
		if i, ok := c.index[read.MessageID]; ok {
			c.messages[i].ReadBy = read.ReadBy
		}

	default:
		return fmt.Errorf("unknown event %q", envelope.Event)
	}
	return nil
}

func (c *ConversationCache) belongsToConversation(msg *models.Message) bool {
	pair := func(a, b uuid.UUID) bool { return msg.SenderID == a && msg.ReceiverID == b }
	return pair(c.selfID, c.peerID) || pair(c.peerID, c.selfID)
}

func (c *ConversationCache) upsertLocked(msg *models.Message) {
	if i, ok := c.index[msg.ID]; ok {
		c.messages[i] = msg.Clone()
		return
	}
	c.index[msg.ID] = len(c.messages)
	c.messages = append(c.messages, msg.Clone())
}
