// Package mongostore keeps each document collection in a MongoDB collection.
package mongostore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"teamdesk/internal/docstore"
	"teamdesk/internal/domain"
)

type Config struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

type Store struct {
	client *mongo.Client
	db     *mongo.Database
	now    func() time.Time
}

// Dial connects to MongoDB and pings the primary.
func Dial(ctx context.Context, cfg Config) (*Store, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &Store{client: client, db: client.Database(cfg.Database), now: time.Now}, nil
}

func (s *Store) Create(ctx context.Context, collection string, doc docstore.Doc) (string, error) {
	id := docstore.IDOf(doc)
	body, err := docstore.Normalize(doc)
	if err != nil {
		return "", err
	}
	delete(body, "id")
	m := bson.M{}
	for k, v := range body {
		m[k] = v
	}
	m["_id"] = id
	m["_created"] = domain.FormatTime(s.now())
	if _, err := s.db.Collection(collection).InsertOne(ctx, m); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrExists)
		}
		return "", fmt.Errorf("insert %s/%s: %w", collection, id, err)
	}
	return id, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Doc, error) {
	var m bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find %s/%s: %w", collection, id, err)
	}
	return fromBSON(m)
}

func (s *Store) Update(ctx context.Context, collection, id string, partial docstore.Doc) error {
	patch, err := docstore.Normalize(partial)
	if err != nil {
		return err
	}
	delete(patch, "id")
	set := bson.M{}
	for k, v := range patch {
		set[k] = v
	}
	if len(set) == 0 {
		_, err := s.Get(ctx, collection, id)
		return err
	}
	res, err := s.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, collection string, q docstore.Query) ([]docstore.Doc, error) {
	if err := docstore.ValidateQuery(q); err != nil {
		return nil, err
	}
	filter := bson.M{}
	for _, f := range q.Where {
		v := docstore.NormalizeValue(f.Value)
		if f.Op == docstore.OpGTE {
			filter[f.Field] = bson.M{"$gte": v}
			continue
		}
		filter[f.Field] = v
	}
	sort := bson.D{}
	if q.OrderBy != nil {
		dir := 1
		if q.OrderBy.Desc {
			dir = -1
		}
		sort = append(sort, bson.E{Key: q.OrderBy.Field, Value: dir})
	}
	// _created keeps equal keys in insertion order.
	sort = append(sort, bson.E{Key: "_created", Value: 1})
	opts := options.Find().SetSort(sort)
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	cur, err := s.db.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	var raw []bson.M
	if err := cur.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	out := make([]docstore.Doc, 0, len(raw))
	for _, m := range raw {
		doc, err := fromBSON(m)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, nil
}

// Drop removes every collection of the database. Used by tests.
func (s *Store) Drop(ctx context.Context) error {
	return s.db.Drop(ctx)
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func fromBSON(m bson.M) (docstore.Doc, error) {
	id, _ := m["_id"].(string)
	delete(m, "_id")
	delete(m, "_created")
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("decode mongo document: %w", err)
	}
	var doc docstore.Doc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode mongo document: %w", err)
	}
	doc["id"] = id
	return doc, nil
}
