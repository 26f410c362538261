package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/akriventsev/bookshelf/framework/core"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoDBConfig конфигурация MongoDB хранилища
type MongoDBConfig struct {
	URI         string
	Database    string
	MaxPoolSize uint64
	MinPoolSize uint64
	Timeout     time.Duration
}

// DefaultMongoDBConfig возвращает конфигурацию MongoDB по умолчанию
func DefaultMongoDBConfig() MongoDBConfig {
	return MongoDBConfig{
		URI:         "mongodb://localhost:27017",
		Database:    "bookshelf",
		MaxPoolSize: 100,
		MinPoolSize: 10,
		Timeout:     10 * time.Second,
	}
}

// Validate проверяет корректность конфигурации
func (c MongoDBConfig) Validate() error {
	if c.URI == "" {
		return fmt.Errorf("uri cannot be empty")
	}
	if c.Database == "" {
		return fmt.Errorf("database cannot be empty")
	}
	return nil
}

type mongoEntry struct {
	Key       string    `bson:"_id"`
	Value     []byte    `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// MongoDBStore хранилище в MongoDB: коллекция на namespace, документ на ключ
type MongoDBStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoDBStore подключается к MongoDB
func NewMongoDBStore(ctx context.Context, config MongoDBConfig, namespace string) (*MongoDBStore, error) {
	if err := config.Validate(); err != nil {
		return nil, core.Wrap(err, core.ErrInvalidConfig, "invalid mongodb config")
	}

	opts := options.Client().
		ApplyURI(config.URI).
		SetMaxPoolSize(config.MaxPoolSize).
		SetMinPoolSize(config.MinPoolSize).
		SetTimeout(config.Timeout)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, core.Wrap(err, core.ErrTransport, "failed to connect to mongodb")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, core.Wrap(err, core.ErrTransport, "failed to ping mongodb")
	}

	return &MongoDBStore{
		client:     client,
		collection: client.Database(config.Database).Collection(namespace),
	}, nil
}

// Get возвращает значение ключа
func (s *MongoDBStore) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	if err := validateKey(key); err != nil {
		return nil, false, err
	}

	var entry mongoEntry
	err := s.collection.FindOne(ctx, bson.M{"_id": string(key)}).Decode(&entry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, false, nil
		}
		return nil, false, core.Wrap(err, core.ErrTransport, "failed to get value from mongodb")
	}
	return entry.Value, true, nil
}

// Put перезаписывает значение ключа (upsert)
func (s *MongoDBStore) Put(ctx context.Context, key, value []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	entry := mongoEntry{Key: string(key), Value: value, UpdatedAt: time.Now().UTC()}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.collection.ReplaceOne(ctx, bson.M{"_id": entry.Key}, entry, opts); err != nil {
		return core.Wrap(err, core.ErrTransport, "failed to put value into mongodb")
	}
	return nil
}

// Delete удаляет ключ
func (s *MongoDBStore) Delete(ctx context.Context, key []byte) error {
	if err := validateKey(key); err != nil {
		return err
	}

	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": string(key)}); err != nil {
		return core.Wrap(err, core.ErrTransport, "failed to delete value from mongodb")
	}
	return nil
}

// Close отключается от сервера
func (s *MongoDBStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultOpTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}
