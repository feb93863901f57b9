package sidechannel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
)

type fakeSingleResult struct {
	doc snapshotDocument
	err error
}

func (r fakeSingleResult) Decode(val any) error {
	if r.err != nil {
		return r.err
	}
	out, ok := val.(*snapshotDocument)
	if !ok {
		return errors.New("unexpected decode target")
	}
	*out = r.doc
	return nil
}

type fakeCollection struct {
	docs map[string]snapshotDocument
}

func (c *fakeCollection) FindOne(_ context.Context, filter bson.M) singleResult {
	key, _ := filter["_id"].(string)
	doc, ok := c.docs[key]
	if !ok {
		return fakeSingleResult{err: mongodriver.ErrNoDocuments}
	}
	return fakeSingleResult{doc: doc}
}

func (c *fakeCollection) ReplaceOne(_ context.Context, filter bson.M, replacement any, upsert bool) (*mongodriver.UpdateResult, error) {
	key, _ := filter["_id"].(string)
	doc, ok := replacement.(snapshotDocument)
	if !ok {
		return nil, errors.New("unexpected replacement type")
	}
	if c.docs == nil {
		c.docs = make(map[string]snapshotDocument)
	}
	c.docs[key] = doc
	return &mongodriver.UpdateResult{UpsertedCount: 1}, nil
}

func TestMongoChannelStoreThenFetch(t *testing.T) {
	coll := &fakeCollection{}
	ch := &MongoChannel{coll: coll, timeout: defaultTimeout}

	require.NoError(t, ch.Store(context.Background(), "mgr:skills:all", []byte(`[{"id":"s1"}]`)))

	data, err := ch.Fetch(context.Background(), "mgr:skills:all")
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"s1"}]`, string(data))
}

func TestMongoChannelFetchMissingKeyReturnsErrNotFound(t *testing.T) {
	coll := &fakeCollection{}
	ch := &MongoChannel{coll: coll, timeout: defaultTimeout}

	_, err := ch.Fetch(context.Background(), "mgr:agents:all")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMongoChannelStoreOverwritesExistingSnapshot(t *testing.T) {
	coll := &fakeCollection{}
	ch := &MongoChannel{coll: coll, timeout: defaultTimeout}

	require.NoError(t, ch.Store(context.Background(), "mgr:skills:all", []byte(`[{"id":"s1"}]`)))
	require.NoError(t, ch.Store(context.Background(), "mgr:skills:all", []byte(`[{"id":"s1"},{"id":"s2"}]`)))

	data, err := ch.Fetch(context.Background(), "mgr:skills:all")
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"s1"},{"id":"s2"}]`, string(data))
}
