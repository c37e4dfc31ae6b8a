package docstore

import "context"

// Observer is told about every store operation and its outcome.
type Observer func(collection, op string, err error)

type observed struct {
	Store
	fn Observer
}

// Observe wraps s so that fn sees each Create, Get, Update, Delete and Query call.
func Observe(s Store, fn Observer) Store {
	if fn == nil {
		return s
	}
	return observed{Store: s, fn: fn}
}

func (o observed) Create(ctx context.Context, collection string, doc Doc) (string, error) {
	id, err := o.Store.Create(ctx, collection, doc)
	o.fn(collection, "create", err)
	return id, err
}

func (o observed) Get(ctx context.Context, collection, id string) (Doc, error) {
	doc, err := o.Store.Get(ctx, collection, id)
	o.fn(collection, "get", err)
	return doc, err
}

func (o observed) Update(ctx context.Context, collection, id string, partial Doc) error {
	err := o.Store.Update(ctx, collection, id, partial)
	o.fn(collection, "update", err)
	return err
}

func (o observed) Delete(ctx context.Context, collection, id string) error {
	err := o.Store.Delete(ctx, collection, id)
	o.fn(collection, "delete", err)
	return err
}

func (o observed) Query(ctx context.Context, collection string, q Query) ([]Doc, error) {
	docs, err := o.Store.Query(ctx, collection, q)
	o.fn(collection, "query", err)
	return docs, err
}
