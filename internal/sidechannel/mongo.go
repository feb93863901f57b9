package sidechannel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	defaultDatabase   = "agent_manager"
	defaultCollection = "snapshots"
	defaultTimeout    = 5 * time.Second
)

// snapshotDocument stores one catalog's last-known-good payload, upserted by
// key (e.g. "mgr:skills:all", "mgr:agents:all").
type snapshotDocument struct {
	Key       string    `bson:"_id"`
	Payload   []byte    `bson:"payload"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// singleResult narrows *mongo.SingleResult to what Fetch needs, so tests can
// fake it without a live server.
type singleResult interface {
	Decode(val any) error
}

// collection narrows *mongo.Collection to the two operations MongoChannel
// uses, hiding the driver's options-builder types behind plain arguments.
type collection interface {
	FindOne(ctx context.Context, filter bson.M) singleResult
	ReplaceOne(ctx context.Context, filter bson.M, replacement any, upsert bool) (*mongodriver.UpdateResult, error)
}

type mongoCollection struct {
	coll *mongodriver.Collection
}

func (c mongoCollection) FindOne(ctx context.Context, filter bson.M) singleResult {
	return c.coll.FindOne(ctx, filter)
}

func (c mongoCollection) ReplaceOne(ctx context.Context, filter bson.M, replacement any, upsert bool) (*mongodriver.UpdateResult, error) {
	return c.coll.ReplaceOne(ctx, filter, replacement, options.Replace().SetUpsert(upsert))
}

// MongoChannel is a Mongo-backed SideChannel. Each key is a single upserted
// document rather than an append log: only the latest snapshot per catalog
// is ever needed for recovery.
type MongoChannel struct {
	coll    collection
	timeout time.Duration
}

// MongoOptions configures a MongoChannel.
type MongoOptions struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// NewMongoChannel wraps an existing *mongo.Client. The caller owns the
// client's lifecycle (construction, auth, Disconnect).
func NewMongoChannel(opts MongoOptions) (*MongoChannel, error) {
	if opts.Client == nil {
		return nil, errors.New("sidechannel: mongo client is required")
	}
	database := opts.Database
	if database == "" {
		database = defaultDatabase
	}
	collection := opts.Collection
	if collection == "" {
		collection = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	coll := opts.Client.Database(database).Collection(collection)
	return &MongoChannel{coll: mongoCollection{coll: coll}, timeout: timeout}, nil
}

func (c *MongoChannel) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

func (c *MongoChannel) Fetch(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var doc snapshotDocument
	err := c.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("sidechannel: mongo find %s: %w", key, err)
	}
	return doc.Payload, nil
}

func (c *MongoChannel) Store(ctx context.Context, key string, data []byte) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	doc := snapshotDocument{Key: key, Payload: data, UpdatedAt: time.Now().UTC()}
	_, err := c.coll.ReplaceOne(ctx, bson.M{"_id": key}, doc, true)
	if err != nil {
		return fmt.Errorf("sidechannel: mongo upsert %s: %w", key, err)
	}
	return nil
}
