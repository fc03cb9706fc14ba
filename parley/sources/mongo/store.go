package mongo

import (
	"context"
	"errors"
	"time"

	"parley/parley/types"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type chatDoc struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"userId"`
	Title     string    `bson:"title"`
	CreatedAt time.Time `bson:"createdAt"`
}

func (d chatDoc) toType() types.Chat {
	return types.Chat{ID: d.ID, UserID: d.UserID, Title: d.Title, CreatedAt: d.CreatedAt}
}

type messageDoc struct {
	ID        string     `bson:"_id"`
	ChatID    string     `bson:"chatId"`
	Role      types.Role `bson:"role"`
	Content   string     `bson:"content"`
	CreatedAt time.Time  `bson:"createdAt"`
}

func (d messageDoc) toType() types.Message {
	return types.Message{ID: d.ID, ChatID: d.ChatID, Role: d.Role, Content: d.Content, CreatedAt: d.CreatedAt}
}

type deviceDoc struct {
	ID        string    `bson:"_id"`
	FirstSeen time.Time `bson:"firstSeen"`
	LastSeen  time.Time `bson:"lastSeen"`
}

// Store keeps chats and messages as documents in two collections keyed by
// UUID strings.
type Store struct {
	chats    *mongo.Collection
	messages *mongo.Collection
	devices  *mongo.Collection
}

func NewStore(db *Database) *Store {
	return &Store{
		chats:    db.DB.Collection(chatsCollection),
		messages: db.DB.Collection(messagesCollection),
		devices:  db.DB.Collection(devicesCollection),
	}
}

func (s *Store) CreateChat(ctx context.Context, userID, title string) (*types.Chat, error) {
	doc := chatDoc{
		ID:        types.NewID(),
		UserID:    userID,
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.chats.InsertOne(ctx, doc); err != nil {
		return nil, err
	}
	out := doc.toType()
	return &out, nil
}

func (s *Store) ListChats(ctx context.Context, userID string) ([]types.Chat, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := s.chats.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, err
	}
	var docs []chatDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	chats := make([]types.Chat, 0, len(docs))
	for _, d := range docs {
		chats = append(chats, d.toType())
	}
	return chats, nil
}

func (s *Store) GetChat(ctx context.Context, userID, chatID string) (*types.Chat, error) {
	var doc chatDoc
	err := s.chats.FindOne(ctx, bson.M{"_id": chatID, "userId": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := doc.toType()
	return &out, nil
}

// DeleteChat removes the owned chat, then its messages. The two writes are not
// atomic; a crash in between leaves orphaned messages of a deleted chat.
func (s *Store) DeleteChat(ctx context.Context, userID, chatID string) (bool, error) {
	res, err := s.chats.DeleteOne(ctx, bson.M{"_id": chatID, "userId": userID})
	if err != nil {
		return false, err
	}
	if res.DeletedCount == 0 {
		return false, nil
	}
	if _, err := s.messages.DeleteMany(ctx, bson.M{"chatId": chatID}); err != nil {
		return true, err
	}
	return true, nil
}

func (s *Store) RenameChat(ctx context.Context, userID, chatID, from, to string) (bool, error) {
	res, err := s.chats.UpdateOne(ctx,
		bson.M{"_id": chatID, "userId": userID, "title": from},
		bson.M{"$set": bson.M{"title": to}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

func (s *Store) SaveMessage(ctx context.Context, chatID string, role types.Role, content string) (*types.Message, error) {
	if !role.Valid() {
		return nil, types.ErrInvalidRole
	}
	doc := messageDoc{
		ID:        types.NewID(),
		ChatID:    chatID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := s.messages.InsertOne(ctx, doc); err != nil {
		return nil, err
	}
	out := doc.toType()
	return &out, nil
}

func (s *Store) ListMessages(ctx context.Context, chatID string) ([]types.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.messages.Find(ctx, bson.M{"chatId": chatID}, opts)
	if err != nil {
		return nil, err
	}
	var docs []messageDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	msgs := make([]types.Message, 0, len(docs))
	for _, d := range docs {
		msgs = append(msgs, d.toType())
	}
	return msgs, nil
}

func (s *Store) DeleteMessage(ctx context.Context, chatID, messageID string) (bool, error) {
	res, err := s.messages.DeleteOne(ctx, bson.M{"_id": messageID, "chatId": chatID})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (s *Store) TouchDevice(ctx context.Context, id string) (*types.Device, error) {
	now := time.Now().UTC()
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var doc deviceDoc
	err := s.devices.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{
			"$set":         bson.M{"lastSeen": now},
			"$setOnInsert": bson.M{"firstSeen": now},
		},
		opts,
	).Decode(&doc)
	if err != nil {
		return nil, err
	}
	return &types.Device{ID: doc.ID, FirstSeen: doc.FirstSeen, LastSeen: doc.LastSeen}, nil
}
