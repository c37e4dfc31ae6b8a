// Package memstore is an in-memory document store built on go-memdb.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/hashicorp/go-memdb"

	"teamdesk/internal/docstore"
)

const tblDocuments = "documents"

var schema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		tblDocuments: {
			Name: tblDocuments,
			Indexes: map[string]*memdb.IndexSchema{
				"id": {
					Name:   "id",
					Unique: true,
					Indexer: &memdb.CompoundIndex{
						Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "Collection"},
							&memdb.StringFieldIndex{Field: "ID"},
						},
					},
				},
				"collection": {
					Name:    "collection",
					Indexer: &memdb.StringFieldIndex{Field: "Collection"},
				},
			},
		},
	},
}

type record struct {
	Collection string
	ID         string
	Seq        uint64
	Body       docstore.Doc
}

type Store struct {
	db  *memdb.MemDB
	seq atomic.Uint64
}

func New() (*Store, error) {
	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("new memdb: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Create(_ context.Context, collection string, doc docstore.Doc) (string, error) {
	id := docstore.IDOf(doc)
	body, err := docstore.Normalize(doc)
	if err != nil {
		return "", err
	}
	body["id"] = id

	txn := s.db.Txn(true)
	defer txn.Abort()
	existing, err := txn.First(tblDocuments, "id", collection, id)
	if err != nil {
		return "", fmt.Errorf("create %s/%s: %w", collection, id, err)
	}
	if existing != nil {
		return "", fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrExists)
	}
	rec := &record{Collection: collection, ID: id, Seq: s.seq.Add(1), Body: body}
	if err := txn.Insert(tblDocuments, rec); err != nil {
		return "", fmt.Errorf("create %s/%s: %w", collection, id, err)
	}
	txn.Commit()
	return id, nil
}

func (s *Store) Get(_ context.Context, collection, id string) (docstore.Doc, error) {
	txn := s.db.Txn(false)
	defer txn.Abort()
	raw, err := txn.First(tblDocuments, "id", collection, id)
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	return docstore.Normalize(raw.(*record).Body)
}

func (s *Store) Update(_ context.Context, collection, id string, partial docstore.Doc) error {
	patch, err := docstore.Normalize(partial)
	if err != nil {
		return err
	}
	txn := s.db.Txn(true)
	defer txn.Abort()
	raw, err := txn.First(tblDocuments, "id", collection, id)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	if raw == nil {
		return fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	old := raw.(*record)
	// Stored records are immutable; replace with a merged copy.
	rec := &record{Collection: old.Collection, ID: old.ID, Seq: old.Seq, Body: docstore.Merge(old.Body, patch)}
	if err := txn.Insert(tblDocuments, rec); err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	txn.Commit()
	return nil
}

func (s *Store) Delete(_ context.Context, collection, id string) error {
	txn := s.db.Txn(true)
	defer txn.Abort()
	raw, err := txn.First(tblDocuments, "id", collection, id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	if raw == nil {
		return fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	if err := txn.Delete(tblDocuments, raw); err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	txn.Commit()
	return nil
}

func (s *Store) Query(_ context.Context, collection string, q docstore.Query) ([]docstore.Doc, error) {
	if err := docstore.ValidateQuery(q); err != nil {
		return nil, err
	}
	txn := s.db.Txn(false)
	defer txn.Abort()
	iter, err := txn.Get(tblDocuments, "collection", collection)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	var recs []*record
	for raw := iter.Next(); raw != nil; raw = iter.Next() {
		recs = append(recs, raw.(*record))
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Seq < recs[j].Seq })

	docs := make([]docstore.Doc, 0, len(recs))
	for _, r := range recs {
		docs = append(docs, r.Body)
	}
	docs = docstore.Apply(docs, q)
	out := make([]docstore.Doc, 0, len(docs))
	for _, d := range docs {
		cp, err := docstore.Normalize(d)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

func (s *Store) Close() error { return nil }
