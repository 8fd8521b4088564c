package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"bayou-chat/internal/models"

	"github.com/google/uuid"
)

// MemoryStore keeps messages and users in process memory. It backs tests and
// single-node development runs; a single mutex is enough to serialize
// per-id updates here.
type MemoryStore struct {
	mu       sync.Mutex
	messages map[uuid.UUID]*models.Message
	order    []uuid.UUID
	users    map[uuid.UUID]*models.User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages: make(map[uuid.UUID]*models.Message),
		users:    make(map[uuid.UUID]*models.User),
	}
}

func (s *MemoryStore) Create(ctx context.Context, msg *models.Message) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := msg.Clone()
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	s.messages[stored.ID] = stored
	s.order = append(s.order, stored.ID)
	return stored.Clone(), nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}
	return msg.Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, id uuid.UUID, mutate func(*models.Message) error) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.messages[id]
	if !ok {
		return nil, ErrNotFound
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		if err == ErrNoChange {
			return current.Clone(), nil
		}
		return nil, err
	}
	next.UpdatedAt = time.Now().UTC()
	s.messages[id] = next
	return next.Clone(), nil
}

func (s *MemoryStore) Conversation(ctx context.Context, userA, userB uuid.UUID) ([]*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*models.Message
	for _, id := range s.order {
		msg := s.messages[id]
		between := (msg.SenderID == userA && msg.ReceiverID == userB) ||
			(msg.SenderID == userB && msg.ReceiverID == userA)
		if between {
			result = append(result, msg.Clone())
		}
	}
	return result, nil
}

func (s *MemoryStore) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return nil, ErrDuplicate
		}
	}
	stored := *user
	stored.CreatedAt = time.Now().UTC()
	s.users[stored.ID] = &stored
	copied := stored
	return &copied, nil
}

func (s *MemoryStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, user := range s.users {
		if strings.EqualFold(user.Email, email) {
			copied := *user
			return &copied, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListOtherUsers(ctx context.Context, exclude uuid.UUID) ([]*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*models.User
	for _, user := range s.users {
		if user.ID == exclude {
			continue
		}
		copied := *user
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Username < result[j].Username })
	return result, nil
}
