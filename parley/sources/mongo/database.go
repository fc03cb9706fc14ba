package mongo

import (
	"context"
	"fmt"
	"time"

	"parley/parley/config"
	"parley/parley/utils/logging"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

const (
	chatsCollection    = "chats"
	messagesCollection = "messages"
	devicesCollection  = "devices"
)

type Database struct {
	client *mongo.Client
	DB     *mongo.Database
}

func NewDatabase(ctx context.Context, cfg config.Config) (*Database, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}
	db := &Database{client: client, DB: client.Database(cfg.MongoDB)}
	if err := db.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	logging.AppLogger.Info("MongoDB connected", zap.String("db", cfg.MongoDB))
	return db, nil
}

func (db *Database) ensureIndexes(ctx context.Context) error {
	_, err := db.DB.Collection(chatsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("creating chats index: %w", err)
	}
	_, err = db.DB.Collection(messagesCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "chatId", Value: 1}, {Key: "createdAt", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("creating messages index: %w", err)
	}
	return nil
}

func (db *Database) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = db.client.Disconnect(ctx)
}

func (db *Database) Ping(ctx context.Context) error {
	return db.client.Ping(ctx, nil)
}
