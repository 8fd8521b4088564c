package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"bayou-chat/internal/models"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// BadgerStore implements MessageStore and UserStore on an embedded BadgerDB.
//
// Messages live under "msg:{convKey}:{timestamp}:{id}" so a conversation is
// one chronological prefix scan: the 19-digit zero-padded nanosecond
// timestamp makes lexicographic order equal creation order, and the id
// breaks ties for messages created in the same nanosecond. A secondary
// "id:{id}" key points at the primary key so lookups by id stay cheap.
// A badger transaction is the atomic unit; conflicting updates retry until
// they apply against fresh state.
type BadgerStore struct {
	db  *badger.DB
	log *slog.Logger
}

func NewBadgerStore(path string, log *slog.Logger) (*BadgerStore, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLoggingLevel(badger.ERROR))
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %s: %w", path, err)
	}
	return &BadgerStore{db: db, log: log}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// convKey orders the pair so both participants address the same prefix.
func convKey(userA, userB uuid.UUID) string {
	a, b := userA.String(), userB.String()
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

func messageKey(msg *models.Message) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s",
		convKey(msg.SenderID, msg.ReceiverID),
		msg.CreatedAt.UnixNano(),
		msg.ID,
	))
}

func idKey(id uuid.UUID) []byte {
	return []byte("id:" + id.String())
}

func (s *BadgerStore) Create(ctx context.Context, msg *models.Message) (*models.Message, error) {
	stored := msg.Clone()
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	value, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}

	key := messageKey(stored)
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, value); err != nil {
			return err
		}
		return txn.Set(idKey(stored.ID), key)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}
	return stored, nil
}

func getMessage(txn *badger.Txn, id uuid.UUID) ([]byte, *models.Message, error) {
	item, err := txn.Get(idKey(id))
	if err == badger.ErrKeyNotFound {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	primaryKey, err := item.ValueCopy(nil)
	if err != nil {
		return nil, nil, err
	}

	item, err = txn.Get(primaryKey)
	if err != nil {
		return nil, nil, err
	}
	var msg models.Message
	err = item.Value(func(value []byte) error {
		return json.Unmarshal(value, &msg)
	})
	if err != nil {
		return nil, nil, err
	}
	return primaryKey, &msg, nil
}

func (s *BadgerStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	var msg *models.Message
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		_, msg, err = getMessage(txn, id)
		return err
	})
	if err == ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return msg, nil
}

func (s *BadgerStore) Update(ctx context.Context, id uuid.UUID, mutate func(*models.Message) error) (*models.Message, error) {
	for {
		updated, err := s.updateOnce(id, mutate)
		if err == badger.ErrConflict {
			// Badger transactions are optimistic; a concurrent writer on the
			// same key aborts ours. Re-run the mutator against fresh state.
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		return updated, err
	}
}

func (s *BadgerStore) updateOnce(id uuid.UUID, mutate func(*models.Message) error) (*models.Message, error) {
	var updated *models.Message
	err := s.db.Update(func(txn *badger.Txn) error {
		primaryKey, current, err := getMessage(txn, id)
		if err != nil {
			return err
		}

		next := current.Clone()
		if err := mutate(next); err != nil {
			if err == ErrNoChange {
				updated = current
				return nil
			}
			return err
		}
		next.UpdatedAt = time.Now().UTC()

		value, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("failed to encode message: %w", err)
		}
		if err := txn.Set(primaryKey, value); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *BadgerStore) Conversation(ctx context.Context, userA, userB uuid.UUID) ([]*models.Message, error) {
	prefix := []byte("msg:" + convKey(userA, userB) + ":")

	var result []*models.Message
	err := s.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var msg models.Message
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &msg)
			})
			if err != nil {
				return err
			}
			result = append(result, &msg)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return result, nil
}

func userKey(id uuid.UUID) []byte {
	return []byte("user:" + id.String())
}

func userEmailKey(email string) []byte {
	return []byte("useremail:" + strings.ToLower(email))
}

func (s *BadgerStore) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	stored := *user
	stored.CreatedAt = time.Now().UTC()

	value, err := json.Marshal(userRecord(stored))
	if err != nil {
		return nil, fmt.Errorf("failed to encode user: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(userEmailKey(stored.Email)); err == nil {
			return ErrDuplicate
		} else if err != badger.ErrKeyNotFound {
			return err
		}
		if err := txn.Set(userKey(stored.ID), value); err != nil {
			return err
		}
		return txn.Set(userEmailKey(stored.Email), []byte(stored.ID.String()))
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// userRecord keeps the hashed password on disk while models.User hides it
// from JSON responses.
type userRecord struct {
	ID             uuid.UUID `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	HashedPassword string    `json:"hashedPassword"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (r userRecord) user() *models.User {
	return &models.User{
		ID:             r.ID,
		Username:       r.Username,
		Email:          r.Email,
		HashedPassword: r.HashedPassword,
		CreatedAt:      r.CreatedAt,
	}
}

func (s *BadgerStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var record userRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(id))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &record)
		})
	})
	if err != nil {
		return nil, err
	}
	return record.user(), nil
}

func (s *BadgerStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var id uuid.UUID
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userEmailKey(email))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			parsed, err := uuid.Parse(string(value))
			if err != nil {
				return err
			}
			id = parsed
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return s.GetUserByID(ctx, id)
}

func (s *BadgerStore) ListOtherUsers(ctx context.Context, exclude uuid.UUID) ([]*models.User, error) {
	prefix := []byte("user:")

	var result []*models.User
	err := s.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var record userRecord
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &record)
			})
			if err != nil {
				return err
			}
			if record.ID == exclude {
				continue
			}
			result = append(result, record.user())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Username < result[j].Username })
	return result, nil
}
