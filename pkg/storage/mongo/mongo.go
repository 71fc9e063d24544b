// Package mongo adapts the storage contract to a MongoDB deployment using
// the official driver. Reference-id fields travel through the core as hex
// strings and are converted to ObjectIDs at this boundary, so the filter
// compiler and registrar stay backend-agnostic.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/oncoregistry/ingest/pkg/storage"
)

// refFields are the document fields that hold native ObjectID references.
var refFields = map[string]bool{
	"_id":   true,
	"trial": true,
	"assay": true,
}

// Store is a MongoDB-backed storage.Store.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Config holds connection settings for the Mongo backend.
type Config struct {
	URL      string
	Database string
	Timeout  time.Duration
}

// New connects to MongoDB and pings it before returning.
func New(ctx context.Context, cfg Config) (*Store, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &Store{client: client, db: client.Database(cfg.Database)}, nil
}

// Collection returns the named collection.
func (s *Store) Collection(name string) storage.Collection {
	return &collection{coll: s.db.Collection(name)}
}

// ParseRef validates a hex ObjectID string.
func (s *Store) ParseRef(ref string) (string, error) {
	oid, err := primitive.ObjectIDFromHex(ref)
	if err != nil {
		return "", fmt.Errorf("malformed reference id %q: %w", ref, err)
	}
	return oid.Hex(), nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

type collection struct {
	coll *mongo.Collection
}

func (c *collection) FindOne(ctx context.Context, filter storage.Filter) (storage.Doc, error) {
	var raw bson.M
	err := c.coll.FindOne(ctx, toBSON(filter)).Decode(&raw)
	if err == mongo.ErrNoDocuments {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find one: %w", err)
	}
	return fromBSON(raw), nil
}

func (c *collection) Find(ctx context.Context, filter storage.Filter, projection []string) ([]storage.Doc, error) {
	opts := options.Find()
	if len(projection) > 0 {
		proj := bson.M{}
		for _, f := range projection {
			proj[f] = 1
		}
		opts.SetProjection(proj)
	}
	cursor, err := c.coll.Find(ctx, toBSON(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("find: %w", err)
	}
	defer cursor.Close(ctx)

	var out []storage.Doc
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
		out = append(out, fromBSON(raw))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate cursor: %w", err)
	}
	return out, nil
}

func (c *collection) Insert(ctx context.Context, docs ...storage.Doc) ([]string, error) {
	payload := make([]interface{}, 0, len(docs))
	for _, doc := range docs {
		payload = append(payload, toBSON(doc))
	}
	res, err := c.coll.InsertMany(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("insert: %w", err)
	}
	ids := make([]string, 0, len(res.InsertedIDs))
	for _, id := range res.InsertedIDs {
		if oid, ok := id.(primitive.ObjectID); ok {
			ids = append(ids, oid.Hex())
		} else {
			ids = append(ids, fmt.Sprint(id))
		}
	}
	return ids, nil
}

func (c *collection) Update(ctx context.Context, filter storage.Filter, update storage.Update) error {
	if _, err := c.coll.UpdateMany(ctx, toBSON(filter), toBSON(update)); err != nil {
		return fmt.Errorf("update: %w", err)
	}
	return nil
}

func (c *collection) Remove(ctx context.Context, filter storage.Filter) error {
	if _, err := c.coll.DeleteMany(ctx, toBSON(filter)); err != nil {
		return fmt.Errorf("remove: %w", err)
	}
	return nil
}

// toBSON converts a filter or document, promoting hex strings in reference
// fields to ObjectIDs. Strings that fail to parse are passed through
// unchanged; ParseRef has already rejected malformed ids on the write path.
func toBSON(m map[string]interface{}) bson.M {
	out := bson.M{}
	for k, v := range m {
		out[k] = toBSONValue(k, v)
	}
	return out
}

func toBSONValue(key string, v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return toBSON(val)
	case []map[string]interface{}:
		items := make(bson.A, 0, len(val))
		for _, item := range val {
			items = append(items, toBSON(item))
		}
		return items
	case []interface{}:
		items := make(bson.A, 0, len(val))
		for _, item := range val {
			if sub, ok := item.(map[string]interface{}); ok {
				items = append(items, toBSON(sub))
			} else {
				items = append(items, item)
			}
		}
		return items
	case string:
		if refFields[key] {
			if oid, err := primitive.ObjectIDFromHex(val); err == nil {
				return oid
			}
		}
		return val
	default:
		return v
	}
}

// fromBSON converts a stored document back, rendering ObjectIDs as hex so
// responses and the core see plain strings.
func fromBSON(m bson.M) storage.Doc {
	out := storage.Doc{}
	for k, v := range m {
		out[k] = fromBSONValue(v)
	}
	return out
}

func fromBSONValue(v interface{}) interface{} {
	switch val := v.(type) {
	case primitive.ObjectID:
		return val.Hex()
	case bson.M:
		return fromBSON(val)
	case bson.A:
		items := make([]interface{}, 0, len(val))
		for _, item := range val {
			items = append(items, fromBSONValue(item))
		}
		return items
	case primitive.DateTime:
		return val.Time().UTC().Format(time.RFC3339)
	default:
		return v
	}
}
