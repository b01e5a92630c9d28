package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoDocument struct {
	Root      string    `bson:"_id"`
	Data      string    `bson:"data"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// MongoBackend persists record tree roots in a MongoDB collection.
type MongoBackend struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// ConnectMongo dials uri and returns a backend storing roots in
// <database>.documents.
func ConnectMongo(ctx context.Context, uri, database string) (*MongoBackend, error) {
	if uri == "" {
		return nil, errors.New("mongo uri not set")
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	log.Println("MongoDB connected successfully")
	return &MongoBackend{
		client: client,
		coll:   client.Database(database).Collection("documents"),
	}, nil
}

func (b *MongoBackend) Load(ctx context.Context) (map[string]any, error) {
	cur, err := b.coll.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer cur.Close(ctx)

	out := map[string]any{}
	for cur.Next(ctx) {
		var doc mongoDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}
		var value any
		if err := json.Unmarshal([]byte(doc.Data), &value); err != nil {
			return nil, fmt.Errorf("failed to unmarshal document %s: %w", doc.Root, err)
		}
		out[doc.Root] = value
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}
	return out, nil
}

func (b *MongoBackend) Save(ctx context.Context, root string, value any) error {
	if value == nil {
		if _, err := b.coll.DeleteOne(ctx, bson.M{"_id": root}); err != nil {
			return fmt.Errorf("failed to delete document: %w", err)
		}
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	doc := mongoDocument{Root: root, Data: string(data), UpdatedAt: time.Now()}
	_, err = b.coll.ReplaceOne(ctx, bson.M{"_id": root}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}
	return nil
}

func (b *MongoBackend) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return b.client.Disconnect(ctx)
}
