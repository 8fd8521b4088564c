// Package chat implements the message mutation rules and the real-time
// fan-out of committed mutations to the affected peer.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"bayou-chat/internal/media"
	"bayou-chat/internal/models"
	"bayou-chat/internal/store"
	"bayou-chat/internal/utils"

	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
)

// Service enforces authorization and state-transition rules for message
// mutations. Every operation is a single atomic transition against the
// message store; for one message id the commit order and the fan-out order
// are identical, because the service holds the id's lock across both.
type Service struct {
	store   store.MessageStore
	media   media.Uploader
	events  Publisher
	idLocks cmap.ConcurrentMap[string, *sync.Mutex]
	log     *slog.Logger
	metrics *utils.MetricsCollector

	// now is swappable so tests can pin timestamps.
	now func() time.Time
}

func NewService(
	messageStore store.MessageStore,
	uploader media.Uploader,
	events Publisher,
	log *slog.Logger,
	metrics *utils.MetricsCollector,
) *Service {
	return &Service{
		store:   messageStore,
		media:   uploader,
		events:  events,
		idLocks: cmap.New[*sync.Mutex](),
		log:     log,
		metrics: metrics,
		now:     time.Now,
	}
}

// lockMessage serializes mutation commit and event publish for one id.
func (s *Service) lockMessage(id uuid.UUID) func() {
	key := id.String()
	s.idLocks.SetIfAbsent(key, &sync.Mutex{})
	mu, _ := s.idLocks.Get(key)
	mu.Lock()
	return mu.Unlock
}

// mapStoreError translates store failures into the service taxonomy,
// passing through errors that already carry a code (role or state checks
// run inside the store's mutator).
func mapStoreError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return utils.NewNotFoundError("message")
	}
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return utils.NewStoreUnavailableError(err)
}

func (s *Service) fail(operation string, err error) error {
	s.metrics.RecordMutationError(operation)
	return err
}

func (s *Service) commit(operation string, evt *Event) {
	s.metrics.RecordMutation(operation)
	s.events.Publish(evt)
}

// uploadImage resolves an optional image payload to a stored URL.
func (s *Service) uploadImage(ctx context.Context, payload string) (string, error) {
	if payload == "" {
		return "", nil
	}
	url, err := s.media.Upload(ctx, payload)
	if err != nil {
		return "", utils.NewMediaUploadError(err)
	}
	return url, nil
}

// Send creates a new message from sender to receiver. At least one of text
// and image must be present.
func (s *Service) Send(ctx context.Context, senderID, receiverID uuid.UUID, text, image string) (*models.Message, error) {
	if text == "" && image == "" {
		return nil, s.fail("send", utils.NewInvalidInputError("message needs text or an image"))
	}

	imageURL, err := s.uploadImage(ctx, image)
	if err != nil {
		return nil, s.fail("send", err)
	}

	created, err := s.store.Create(ctx, &models.Message{
		ID:         uuid.New(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		Image:      imageURL,
	})
	if err != nil {
		return nil, s.fail("send", utils.NewStoreUnavailableError(err))
	}

	s.commit("send", &Event{Name: EventNewMessage, Target: created.ReceiverID, Payload: created})
	s.log.Debug("message sent", "messageId", created.ID, "senderId", senderID, "receiverId", receiverID)
	return created, nil
}

// Reply creates a new message answering originalID. The reply always routes
// back to whoever sent the original, which is not necessarily the current
// conversation peer.
func (s *Service) Reply(ctx context.Context, originalID, senderID uuid.UUID, text, image string) (*models.Message, error) {
	if text == "" && image == "" {
		return nil, s.fail("reply", utils.NewInvalidInputError("message needs text or an image"))
	}

	original, err := s.store.GetByID(ctx, originalID)
	if err != nil {
		return nil, s.fail("reply", mapStoreError(err))
	}

	imageURL, err := s.uploadImage(ctx, image)
	if err != nil {
		return nil, s.fail("reply", err)
	}

	replyTo := original.ID
	created, err := s.store.Create(ctx, &models.Message{
		ID:         uuid.New(),
		SenderID:   senderID,
		ReceiverID: original.SenderID,
		Text:       text,
		Image:      imageURL,
		ReplyTo:    &replyTo,
	})
	if err != nil {
		return nil, s.fail("reply", utils.NewStoreUnavailableError(err))
	}

	s.commit("reply", &Event{Name: EventNewMessage, Target: created.ReceiverID, Payload: created})
	return created, nil
}

// Edit replaces the message text and appends the replaced value to the edit
// history. Every accepted call appends, even when the new text equals the
// current text; callers are expected to suppress no-op edits themselves.
func (s *Service) Edit(ctx context.Context, messageID, actorID uuid.UUID, newText string) (*models.Message, error) {
	unlock := s.lockMessage(messageID)
	defer unlock()

	updated, err := s.store.Update(ctx, messageID, func(m *models.Message) error {
		if m.SenderID != actorID {
			return utils.NewUnauthorizedError("only the sender may edit a message")
		}
		if m.IsDeleted {
			return utils.NewInvalidStateError("cannot edit a deleted message")
		}
		m.EditHistory = append(m.EditHistory, models.EditRecord{
			PriorText: m.Text,
			EditedAt:  s.now().UTC(),
		})
		m.Text = newText
		m.IsEdited = true
		return nil
	})
	if err != nil {
		return nil, s.fail("edit", mapStoreError(err))
	}

	s.commit("edit", &Event{Name: EventMessageEdited, Target: updated.ReceiverID, Payload: updated})
	return updated, nil
}

// Delete tombstones the message. Deleting an already-deleted message
// re-applies the same values and succeeds.
func (s *Service) Delete(ctx context.Context, messageID, actorID uuid.UUID) (*models.Message, error) {
	unlock := s.lockMessage(messageID)
	defer unlock()

	updated, err := s.store.Update(ctx, messageID, func(m *models.Message) error {
		if m.SenderID != actorID {
			return utils.NewUnauthorizedError("only the sender may delete a message")
		}
		m.IsDeleted = true
		m.Text = models.DeletedText
		m.Image = ""
		return nil
	})
	if err != nil {
		return nil, s.fail("delete", mapStoreError(err))
	}

	s.commit("delete", &Event{Name: EventMessageDeleted, Target: updated.ReceiverID, Payload: DeletedPayload{MessageID: updated.ID}})
	return updated, nil
}

// MarkRead records the reader's receipt. The first readAt is retained: a
// repeated call returns the stored message unchanged and pushes nothing.
// Reading a deleted message is still meaningful and allowed.
func (s *Service) MarkRead(ctx context.Context, messageID, readerID uuid.UUID) (*models.Message, error) {
	unlock := s.lockMessage(messageID)
	defer unlock()

	changed := false
	updated, err := s.store.Update(ctx, messageID, func(m *models.Message) error {
		if m.ReceiverID != readerID {
			return utils.NewUnauthorizedError("only the receiver may mark a message as read")
		}
		if m.HasBeenReadBy(readerID) {
			return store.ErrNoChange
		}
		m.ReadBy = append(m.ReadBy, models.ReadReceipt{UserID: readerID, ReadAt: s.now().UTC()})
		changed = true
		return nil
	})
	if err != nil {
		return nil, s.fail("markRead", mapStoreError(err))
	}

	if changed {
		s.commit("markRead", &Event{
			Name:    EventMessageRead,
			Target:  updated.SenderID,
			Payload: ReadPayload{MessageID: updated.ID, ReadBy: updated.ReadBy},
		})
	}
	return updated, nil
}

// Conversation returns every message between the two users in creation
// order, tombstones included.
func (s *Service) Conversation(ctx context.Context, userA, userB uuid.UUID) ([]*models.Message, error) {
	messages, err := s.store.Conversation(ctx, userA, userB)
	if err != nil {
		return nil, mapStoreError(err)
	}
	return messages, nil
}
