package store

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"bayou-chat/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBadgerStore(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := NewBadgerStore(t.TempDir(), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBadgerStoreCreateAndGet(t *testing.T) {
	s := newBadgerStore(t)
	replyTo := uuid.New()
	msg := &models.Message{
		ID:         uuid.New(),
		SenderID:   uuid.New(),
		ReceiverID: uuid.New(),
		Text:       "hi",
		ReplyTo:    &replyTo,
	}

	created, err := s.Create(context.Background(), msg)
	require.NoError(t, err)

	got, err := s.GetByID(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Text, got.Text)
	require.NotNil(t, got.ReplyTo)
	assert.Equal(t, replyTo, *got.ReplyTo)

	_, err = s.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBadgerStoreUpdate(t *testing.T) {
	s := newBadgerStore(t)
	msg := &models.Message{ID: uuid.New(), SenderID: uuid.New(), ReceiverID: uuid.New(), Text: "v0"}
	_, err := s.Create(context.Background(), msg)
	require.NoError(t, err)

	updated, err := s.Update(context.Background(), msg.ID, func(m *models.Message) error {
		m.EditHistory = append(m.EditHistory, models.EditRecord{PriorText: m.Text, EditedAt: time.Now().UTC()})
		m.Text = "v1"
		m.IsEdited = true
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "v1", updated.Text)

	got, err := s.GetByID(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "v1", got.Text)
	require.Len(t, got.EditHistory, 1)
	assert.Equal(t, "v0", got.EditHistory[0].PriorText)
}

func TestBadgerStoreUpdateSerializesPerID(t *testing.T) {
	s := newBadgerStore(t)
	msg := &models.Message{ID: uuid.New(), SenderID: uuid.New(), ReceiverID: uuid.New(), Text: "v0"}
	_, err := s.Create(context.Background(), msg)
	require.NoError(t, err)

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(context.Background(), msg.ID, func(m *models.Message) error {
				m.EditHistory = append(m.EditHistory, models.EditRecord{PriorText: m.Text})
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	final, err := s.GetByID(context.Background(), msg.ID)
	require.NoError(t, err)
	assert.Len(t, final.EditHistory, workers)
}

func TestBadgerStoreUpdateNoChange(t *testing.T) {
	s := newBadgerStore(t)
	msg := &models.Message{ID: uuid.New(), SenderID: uuid.New(), ReceiverID: uuid.New(), Text: "hi"}
	_, err := s.Create(context.Background(), msg)
	require.NoError(t, err)

	returned, err := s.Update(context.Background(), msg.ID, func(m *models.Message) error {
		m.Text = "discarded"
		return ErrNoChange
	})
	require.NoError(t, err)
	assert.Equal(t, "hi", returned.Text)
}

func TestBadgerStoreConversationChronology(t *testing.T) {
	s := newBadgerStore(t)
	alice, bob, carol := uuid.New(), uuid.New(), uuid.New()

	texts := []string{"1", "2", "3"}
	for _, text := range texts {
		sender, receiver := alice, bob
		if text == "2" {
			sender, receiver = bob, alice
		}
		_, err := s.Create(context.Background(), &models.Message{
			ID: uuid.New(), SenderID: sender, ReceiverID: receiver, Text: text,
		})
		require.NoError(t, err)
		time.Sleep(time.Millisecond) // distinct creation timestamps
	}
	_, err := s.Create(context.Background(), &models.Message{
		ID: uuid.New(), SenderID: alice, ReceiverID: carol, Text: "other pair",
	})
	require.NoError(t, err)

	// Both participants address the same conversation prefix.
	for _, pair := range [][2]uuid.UUID{{alice, bob}, {bob, alice}} {
		conv, err := s.Conversation(context.Background(), pair[0], pair[1])
		require.NoError(t, err)
		require.Len(t, conv, 3)
		for i, text := range texts {
			assert.Equal(t, text, conv[i].Text)
		}
	}
}

func TestBadgerStoreUsers(t *testing.T) {
	s := newBadgerStore(t)
	alice := &models.User{ID: uuid.New(), Username: "alice", Email: "alice@example.com", HashedPassword: "x"}
	bob := &models.User{ID: uuid.New(), Username: "bob", Email: "bob@example.com", HashedPassword: "y"}

	_, err := s.CreateUser(context.Background(), alice)
	require.NoError(t, err)
	_, err = s.CreateUser(context.Background(), bob)
	require.NoError(t, err)

	_, err = s.CreateUser(context.Background(), &models.User{ID: uuid.New(), Email: "Alice@example.com"})
	assert.ErrorIs(t, err, ErrDuplicate)

	found, err := s.GetUserByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, found.ID)
	assert.Equal(t, "x", found.HashedPassword)

	others, err := s.ListOtherUsers(context.Background(), alice.ID)
	require.NoError(t, err)
	require.Len(t, others, 1)
	assert.Equal(t, bob.ID, others[0].ID)
}
