// Package mongo provides a MongoDB implementation of storage.Store using
// the official v2 driver. Each logical collection maps to a MongoDB
// collection of the same name.
package mongo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/rhuss/ribamar/pkg/storage"
)

// seqKey orders documents by insertion. It is stripped from results.
const seqKey = "_seq"

// Config holds MongoDB connection settings.
type Config struct {
	URL      string
	Database string
	// Timeout bounds the initial connection check (default: 10 seconds).
	Timeout time.Duration
}

// Store is a MongoDB-backed document store.
type Store struct {
	client *mongod.Client
	db     *mongod.Database
	logger *slog.Logger
	seq    atomic.Int64
}

// Ensure Store implements storage.Store at compile time.
var _ storage.Store = (*Store)(nil)

// New connects to MongoDB and ensures the indexes used by lookups exist.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	client, err := mongod.Connect(options.Client().ApplyURI(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}

	s := &Store{
		client: client,
		db:     client.Database(cfg.Database),
		logger: logger,
	}
	s.seq.Store(time.Now().UnixNano())

	if err := s.migrate(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// migrate creates the indexes for the account and reset collections.
func (s *Store) migrate(ctx context.Context) error {
	indexes := map[string][]mongod.IndexModel{
		"accounts": {
			{Keys: bson.D{{Key: "credentials.id", Value: 1}}},
			{Keys: bson.D{{Key: seqKey, Value: 1}}},
		},
		"resets": {
			{Keys: bson.D{{Key: "expiry", Value: 1}}},
			{Keys: bson.D{{Key: seqKey, Value: 1}}},
		},
	}
	for col, models := range indexes {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("mongo: migrate %s indexes: %w", col, err)
		}
		s.logger.Debug("mongo indexes ensured", slog.String("collection", col))
	}
	return nil
}

// Get returns the first document, in insertion order, whose key equals value.
func (s *Store) Get(ctx context.Context, collection, key string, value any) (storage.Document, error) {
	filter, err := buildFilter([]storage.Condition{storage.Eq(key, value)})
	if err != nil {
		return nil, err
	}

	opts := options.FindOne().SetSort(bson.D{{Key: seqKey, Value: 1}})
	raw, err := s.db.Collection(collection).FindOne(ctx, filter, opts).Raw()
	if err != nil {
		if isNoDocuments(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("mongo: get: %w", err)
	}
	return decode(raw)
}

// Find returns every document matching all conditions, in insertion order.
func (s *Store) Find(ctx context.Context, collection string, conds ...storage.Condition) ([]storage.Document, error) {
	filter, err := buildFilter(conds)
	if err != nil {
		return nil, err
	}

	opts := options.Find().SetSort(bson.D{{Key: seqKey, Value: 1}})
	cursor, err := s.db.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: find: %w", err)
	}
	defer cursor.Close(ctx)

	out := []storage.Document{}
	for cursor.Next(ctx) {
		doc, err := decode(cursor.Current)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("mongo: find cursor: %w", err)
	}
	return out, nil
}

// Insert stores doc, generating an id when missing.
func (s *Store) Insert(ctx context.Context, collection string, doc storage.Document) (string, error) {
	cp, err := storage.Normalize(doc)
	if err != nil {
		return "", err
	}
	id := cp.ID()
	if id == "" {
		id = uuid.NewString()
		cp[storage.IDKey] = id
	}
	cp[seqKey] = s.seq.Add(1)

	if _, err := s.db.Collection(collection).InsertOne(ctx, bson.M(cp)); err != nil {
		if isDuplicateKey(err) {
			return "", storage.ErrConflict
		}
		return "", fmt.Errorf("mongo: insert: %w", err)
	}
	return id, nil
}

// Update sets the top-level fields of set on the first matching document.
func (s *Store) Update(ctx context.Context, collection, key string, value any, set storage.Document) error {
	filter, err := buildFilter([]storage.Condition{storage.Eq(key, value)})
	if err != nil {
		return err
	}
	patch, err := storage.Normalize(set)
	if err != nil {
		return err
	}
	delete(patch, storage.IDKey)
	delete(patch, seqKey)
	if len(patch) == 0 {
		// $set rejects an empty document; only check existence.
		ok, err := s.Exists(ctx, collection, key, value)
		if err != nil {
			return err
		}
		if !ok {
			return storage.ErrNotFound
		}
		return nil
	}

	opts := options.FindOneAndUpdate().SetSort(bson.D{{Key: seqKey, Value: 1}})
	err = s.db.Collection(collection).
		FindOneAndUpdate(ctx, filter, bson.M{"$set": bson.M(patch)}, opts).
		Err()
	if err != nil {
		if isNoDocuments(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("mongo: update: %w", err)
	}
	return nil
}

// Delete removes every matching document.
func (s *Store) Delete(ctx context.Context, collection, key string, value any) (int, error) {
	filter, err := buildFilter([]storage.Condition{storage.Eq(key, value)})
	if err != nil {
		return 0, err
	}

	res, err := s.db.Collection(collection).DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("mongo: delete: %w", err)
	}
	return int(res.DeletedCount), nil
}

// Exists reports whether any document matches.
func (s *Store) Exists(ctx context.Context, collection, key string, value any) (bool, error) {
	filter, err := buildFilter([]storage.Condition{storage.Eq(key, value)})
	if err != nil {
		return false, err
	}

	n, err := s.db.Collection(collection).CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("mongo: exists: %w", err)
	}
	return n > 0, nil
}

// HealthCheck pings the primary.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// buildFilter translates conditions into a MongoDB query document. Keys
// are validated first, which keeps operator keys such as "$where" out.
func buildFilter(conds []storage.Condition) (bson.D, error) {
	if err := storage.ValidateConditions(conds); err != nil {
		return nil, err
	}

	filter := bson.D{}
	for _, c := range conds {
		v, err := storage.NormalizeValue(c.Value)
		if err != nil {
			return nil, err
		}
		switch c.Op {
		case storage.OpEq:
			filter = append(filter, bson.E{Key: c.Key, Value: v})
		case storage.OpLt:
			filter = append(filter, bson.E{Key: c.Key, Value: bson.M{"$lt": v}})
		case storage.OpGt:
			filter = append(filter, bson.E{Key: c.Key, Value: bson.M{"$gt": v}})
		}
	}
	return filter, nil
}

// decode converts a raw BSON document into plain JSON form via relaxed
// extended JSON.
func decode(raw bson.Raw) (storage.Document, error) {
	data, err := bson.MarshalExtJSON(raw, false, false)
	if err != nil {
		return nil, fmt.Errorf("mongo: decode: %w", err)
	}
	var doc storage.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("mongo: decode: %w", err)
	}
	delete(doc, seqKey)
	return doc, nil
}

// isNoDocuments returns true when err indicates no MongoDB documents found.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

// isDuplicateKey checks if a MongoDB error is a duplicate key violation.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if mongod.IsDuplicateKeyError(err) {
		return true
	}
	return strings.Contains(err.Error(), "E11000")
}
