package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bayou-chat/internal/models"

	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements MessageStore and UserStore on MongoDB.
//
// MongoDB cannot apply an arbitrary Go mutator atomically, so Update
// serializes read-modify-replace per message id through a keyed mutex.
// This is sufficient for a single-process deployment, which is the scope
// of the connection directory as well.
type MongoStore struct {
	client   *mongo.Client
	messages *mongo.Collection
	users    *mongo.Collection

	idLocks cmap.ConcurrentMap[string, *sync.Mutex]
}

func NewMongoStore(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI)

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Database("admin").RunCommand(connectCtx, bson.D{{Key: "ping", Value: 1}}).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	db := client.Database(dbName)
	return &MongoStore{
		client:   client,
		messages: db.Collection("messages"),
		users:    db.Collection("users"),
		idLocks:  cmap.New[*sync.Mutex](),
	}, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// messageDocument is the MongoDB document shape for messages. IDs are stored
// as their canonical string form, like the rest of the collections here.
type messageDocument struct {
	ID          string               `bson:"_id"`
	SenderID    string               `bson:"senderId"`
	ReceiverID  string               `bson:"receiverId"`
	Text        string               `bson:"text,omitempty"`
	Image       string               `bson:"image,omitempty"`
	IsEdited    bool                 `bson:"isEdited"`
	EditHistory []models.EditRecord  `bson:"editHistory"`
	ReplyTo     *string              `bson:"replyTo,omitempty"`
	ReadBy      []models.ReadReceipt `bson:"readBy"`
	IsDeleted   bool                 `bson:"isDeleted"`
	CreatedAt   time.Time            `bson:"createdAt"`
	UpdatedAt   time.Time            `bson:"updatedAt"`
}

func toMessageDocument(msg *models.Message) messageDocument {
	doc := messageDocument{
		ID:          msg.ID.String(),
		SenderID:    msg.SenderID.String(),
		ReceiverID:  msg.ReceiverID.String(),
		Text:        msg.Text,
		Image:       msg.Image,
		IsEdited:    msg.IsEdited,
		EditHistory: msg.EditHistory,
		ReadBy:      msg.ReadBy,
		IsDeleted:   msg.IsDeleted,
		CreatedAt:   msg.CreatedAt,
		UpdatedAt:   msg.UpdatedAt,
	}
	if msg.ReplyTo != nil {
		replyTo := msg.ReplyTo.String()
		doc.ReplyTo = &replyTo
	}
	return doc
}

func fromMessageDocument(doc messageDocument) (*models.Message, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid message id %q: %w", doc.ID, err)
	}
	senderID, err := uuid.Parse(doc.SenderID)
	if err != nil {
		return nil, fmt.Errorf("invalid sender id %q: %w", doc.SenderID, err)
	}
	receiverID, err := uuid.Parse(doc.ReceiverID)
	if err != nil {
		return nil, fmt.Errorf("invalid receiver id %q: %w", doc.ReceiverID, err)
	}

	msg := &models.Message{
		ID:          id,
		SenderID:    senderID,
		ReceiverID:  receiverID,
		Text:        doc.Text,
		Image:       doc.Image,
		IsEdited:    doc.IsEdited,
		EditHistory: doc.EditHistory,
		ReadBy:      doc.ReadBy,
		IsDeleted:   doc.IsDeleted,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
	if doc.ReplyTo != nil {
		replyTo, err := uuid.Parse(*doc.ReplyTo)
		if err != nil {
			return nil, fmt.Errorf("invalid replyTo id %q: %w", *doc.ReplyTo, err)
		}
		msg.ReplyTo = &replyTo
	}
	return msg, nil
}

func (s *MongoStore) lockFor(id uuid.UUID) *sync.Mutex {
	key := id.String()
	s.idLocks.SetIfAbsent(key, &sync.Mutex{})
	mu, _ := s.idLocks.Get(key)
	return mu
}

func (s *MongoStore) Create(ctx context.Context, msg *models.Message) (*models.Message, error) {
	stored := msg.Clone()
	now := time.Now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	if _, err := s.messages.InsertOne(ctx, toMessageDocument(stored)); err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}
	return stored, nil
}

func (s *MongoStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Message, error) {
	var doc messageDocument
	err := s.messages.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return fromMessageDocument(doc)
}

func (s *MongoStore) Update(ctx context.Context, id uuid.UUID, mutate func(*models.Message) error) (*models.Message, error) {
	mu := s.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	current, err := s.GetByID(ctx, id)
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

	_, err = s.messages.ReplaceOne(ctx, bson.M{"_id": id.String()}, toMessageDocument(next))
	if err != nil {
		return nil, fmt.Errorf("failed to update message: %w", err)
	}
	return next, nil
}

func (s *MongoStore) Conversation(ctx context.Context, userA, userB uuid.UUID) ([]*models.Message, error) {
	a, b := userA.String(), userB.String()
	filter := bson.M{
		"$or": []bson.M{
			{"senderId": a, "receiverId": b},
			{"senderId": b, "receiverId": a},
		},
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cursor, err := s.messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	defer cursor.Close(ctx)

	var result []*models.Message
	for cursor.Next(ctx) {
		var doc messageDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode message: %w", err)
		}
		msg, err := fromMessageDocument(doc)
		if err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, cursor.Err()
}

// userDocument is the MongoDB document shape for users.
type userDocument struct {
	ID             string    `bson:"_id"`
	Username       string    `bson:"username"`
	Email          string    `bson:"email"`
	HashedPassword string    `bson:"hashedPassword"`
	CreatedAt      time.Time `bson:"createdAt"`
}

func fromUserDocument(doc userDocument) (*models.User, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id %q: %w", doc.ID, err)
	}
	return &models.User{
		ID:             id,
		Username:       doc.Username,
		Email:          doc.Email,
		HashedPassword: doc.HashedPassword,
		CreatedAt:      doc.CreatedAt,
	}, nil
}

func (s *MongoStore) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	count, err := s.users.CountDocuments(ctx, bson.M{"email": user.Email})
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if count > 0 {
		return nil, ErrDuplicate
	}

	stored := *user
	stored.CreatedAt = time.Now().UTC()
	doc := userDocument{
		ID:             stored.ID.String(),
		Username:       stored.Username,
		Email:          stored.Email,
		HashedPassword: stored.HashedPassword,
		CreatedAt:      stored.CreatedAt,
	}
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to save user: %w", err)
	}
	return &stored, nil
}

func (s *MongoStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var doc userDocument
	err := s.users.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return fromUserDocument(doc)
}

func (s *MongoStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var doc userDocument
	err := s.users.FindOne(ctx, bson.M{"email": email}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return fromUserDocument(doc)
}

func (s *MongoStore) ListOtherUsers(ctx context.Context, exclude uuid.UUID) ([]*models.User, error) {
	cursor, err := s.users.Find(ctx, bson.M{"_id": bson.M{"$ne": exclude.String()}})
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []userDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}

	users := make([]*models.User, 0, len(docs))
	for _, doc := range docs {
		user, err := fromUserDocument(doc)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, nil
}
