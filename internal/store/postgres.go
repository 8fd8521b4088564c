package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"bayou-chat/internal/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresStore implements MessageStore and UserStore on PostgreSQL.
//
// Update runs the mutator inside a transaction holding a row lock
// (SELECT ... FOR UPDATE), so concurrent updates for the same message id
// serialize at the database rather than in process.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(connectionString string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &PostgresStore{db: db}
	if err := s.initTables(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) initTables(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			username VARCHAR(50) NOT NULL,
			email VARCHAR(100) NOT NULL,
			password_hash VARCHAR(100) NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		CREATE UNIQUE INDEX IF NOT EXISTS users_email_lower_idx ON users (LOWER(email))
	`)
	if err != nil {
		return fmt.Errorf("failed to create users email index: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS messages (
			id UUID PRIMARY KEY,
			sender_id UUID NOT NULL REFERENCES users(id),
			receiver_id UUID NOT NULL REFERENCES users(id),
			text TEXT NOT NULL DEFAULT '',
			image VARCHAR(512) NOT NULL DEFAULT '',
			is_edited BOOLEAN NOT NULL DEFAULT FALSE,
			edit_history JSONB NOT NULL DEFAULT '[]',
			reply_to UUID,
			read_by JSONB NOT NULL DEFAULT '[]',
			is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL,
			updated_at TIMESTAMP WITH TIME ZONE NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create messages table: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS messages_pair_idx ON messages (sender_id, receiver_id, created_at)
	`)
	if err != nil {
		return fmt.Errorf("failed to create messages pair index: %w", err)
	}
	return nil
}

// messageRow is the table shape for messages. Edit history and read
// receipts live in JSONB columns.
type messageRow struct {
	ID          uuid.UUID       `db:"id"`
	SenderID    uuid.UUID       `db:"sender_id"`
	ReceiverID  uuid.UUID       `db:"receiver_id"`
	Text        string          `db:"text"`
	Image       string          `db:"image"`
	IsEdited    bool            `db:"is_edited"`
	EditHistory json.RawMessage `db:"edit_history"`
	ReplyTo     uuid.NullUUID   `db:"reply_to"`
	ReadBy      json.RawMessage `db:"read_by"`
	IsDeleted   bool            `db:"is_deleted"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

func toMessageRow(msg *models.Message) (messageRow, error) {
	editHistory, err := json.Marshal(msg.EditHistory)
	if err != nil {
		return messageRow{}, fmt.Errorf("failed to encode edit history: %w", err)
	}
	readBy, err := json.Marshal(msg.ReadBy)
	if err != nil {
		return messageRow{}, fmt.Errorf("failed to encode read receipts: %w", err)
	}

	row := messageRow{
		ID:          msg.ID,
		SenderID:    msg.SenderID,
		ReceiverID:  msg.ReceiverID,
		Text:        msg.Text,
		Image:       msg.Image,
		IsEdited:    msg.IsEdited,
		EditHistory: editHistory,
		ReadBy:      readBy,
		IsDeleted:   msg.IsDeleted,
		CreatedAt:   msg.CreatedAt,
		UpdatedAt:   msg.UpdatedAt,
	}
	if msg.ReplyTo != nil {
		row.ReplyTo = uuid.NullUUID{UUID: *msg.ReplyTo, Valid: true}
	}
	return row, nil
}

func fromMessageRow(row messageRow) (*models.Message, error) {
	msg := &models.Message{
		ID:         row.ID,
		SenderID:   row.SenderID,
		ReceiverID: row.ReceiverID,
		Text:       row.Text,
		Image:      row.Image,
		IsEdited:   row.IsEdited,
		IsDeleted:  row.IsDeleted,
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}
	if err := json.Unmarshal(row.EditHistory, &msg.EditHistory); err != nil {
		return nil, fmt.Errorf("failed to decode edit history: %w", err)
	}
	if err := json.Unmarshal(row.ReadBy, &msg.ReadBy); err != nil {
		return nil, fmt.Errorf("failed to decode read receipts: %w", err)
	}
	if row.ReplyTo.Valid {
		replyTo := row.ReplyTo.UUID
		msg.ReplyTo = &replyTo
	}
	return msg, nil
}

const messageColumns = `id, sender_id, receiver_id, text, image, is_edited, edit_history, reply_to, read_by, is_deleted, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, msg *models.Message) (*models.Message, error) {
	stored := msg.Clone()
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	row, err := toMessageRow(stored)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO messages (` + messageColumns + `)
		VALUES (:id, :sender_id, :receiver_id, :text, :image, :is_edited, :edit_history, :reply_to, :read_by, :is_deleted, :created_at, :updated_at)
	`
	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}
	return stored, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	var row messageRow
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1`
	err := s.db.GetContext(ctx, &row, query, id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query message: %w", err)
	}
	return fromMessageRow(row)
}

func (s *PostgresStore) Update(ctx context.Context, id uuid.UUID, mutate func(*models.Message) error) (*models.Message, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var row messageRow
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id = $1 FOR UPDATE`
	err = tx.GetContext(ctx, &row, query, id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query message for update: %w", err)
	}

	current, err := fromMessageRow(row)
	if err != nil {
		return nil, err
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		if err == ErrNoChange {
			return current, nil
		}
		return nil, err
	}
	next.UpdatedAt = time.Now().UTC()

	updated, err := toMessageRow(next)
	if err != nil {
		return nil, err
	}

	updateQuery := `
		UPDATE messages SET
			text = :text,
			image = :image,
			is_edited = :is_edited,
			edit_history = :edit_history,
			read_by = :read_by,
			is_deleted = :is_deleted,
			updated_at = :updated_at
		WHERE id = :id
	`
	if _, err := tx.NamedExecContext(ctx, updateQuery, updated); err != nil {
		return nil, fmt.Errorf("failed to update message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit message update: %w", err)
	}
	return next, nil
}

func (s *PostgresStore) Conversation(ctx context.Context, userA, userB uuid.UUID) ([]*models.Message, error) {
	query := `
		SELECT ` + messageColumns + ` FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY created_at ASC
	`
	rows := []messageRow{}
	if err := s.db.SelectContext(ctx, &rows, query, userA, userB); err != nil {
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}

	result := make([]*models.Message, 0, len(rows))
	for _, row := range rows {
		msg, err := fromMessageRow(row)
		if err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, nil
}

type userRow struct {
	ID             uuid.UUID `db:"id"`
	Username       string    `db:"username"`
	Email          string    `db:"email"`
	HashedPassword string    `db:"password_hash"`
	CreatedAt      time.Time `db:"created_at"`
}

func (s *PostgresStore) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	stored := *user
	stored.CreatedAt = time.Now().UTC()

	query := `
		INSERT INTO users (id, username, email, password_hash, created_at)
		VALUES (:id, :username, :email, :password_hash, :created_at)
	`
	_, err := s.db.NamedExecContext(ctx, query, userRow{
		ID:             stored.ID,
		Username:       stored.Username,
		Email:          stored.Email,
		HashedPassword: stored.HashedPassword,
		CreatedAt:      stored.CreatedAt,
	})
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to save user: %w", err)
	}
	return &stored, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var row userRow
	query := `SELECT id, username, email, password_hash, created_at FROM users WHERE id = $1`
	err := s.db.GetContext(ctx, &row, query, id)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return userFromRow(row), nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var row userRow
	query := `SELECT id, username, email, password_hash, created_at FROM users WHERE LOWER(email) = LOWER($1)`
	err := s.db.GetContext(ctx, &row, query, email)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user by email: %w", err)
	}
	return userFromRow(row), nil
}

func (s *PostgresStore) ListOtherUsers(ctx context.Context, exclude uuid.UUID) ([]*models.User, error) {
	query := `SELECT id, username, email, password_hash, created_at FROM users WHERE id <> $1 ORDER BY created_at ASC`
	rows := []userRow{}
	if err := s.db.SelectContext(ctx, &rows, query, exclude); err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}

	users := make([]*models.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, userFromRow(row))
	}
	return users, nil
}

func userFromRow(row userRow) *models.User {
	return &models.User{
		ID:             row.ID,
		Username:       row.Username,
		Email:          row.Email,
		HashedPassword: row.HashedPassword,
		CreatedAt:      row.CreatedAt,
	}
}
