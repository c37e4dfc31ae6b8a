// Package repo maps teamdesk entities onto document store collections.
package repo

import (
	"context"
	"errors"
	"fmt"

	"teamdesk/internal/apperr"
	"teamdesk/internal/docstore"
)

type Repo struct {
	Store docstore.Store
}

// ErrNotFound matches every not-found error returned by Repo.
var ErrNotFound = apperr.ErrNotFound

// storeErr classifies a document store failure. Missing documents become
// NotFound errors carrying msg; anything else is a persistence failure.
func storeErr(op, msg string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, docstore.ErrNotFound) {
		return &apperr.Error{Kind: apperr.KindNotFound, Op: op, Message: msg, Err: err}
	}
	return apperr.Persistence(op, err)
}

func (r Repo) get(ctx context.Context, collection, id, what string, out any) error {
	doc, err := r.Store.Get(ctx, collection, id)
	if err != nil {
		return storeErr("get "+what, what+" not found", err)
	}
	if err := docstore.Decode(doc, out); err != nil {
		return apperr.Persistence("get "+what, err)
	}
	return nil
}

func (r Repo) insert(ctx context.Context, collection, what string, v any) error {
	doc, err := docstore.Encode(v)
	if err != nil {
		return apperr.Persistence("insert "+what, err)
	}
	if _, err := r.Store.Create(ctx, collection, doc); err != nil {
		return apperr.Persistence("insert "+what, err)
	}
	return nil
}

func (r Repo) update(ctx context.Context, collection, id, what string, patch docstore.Doc) error {
	if len(patch) == 0 {
		return nil
	}
	return storeErr("update "+what, what+" not found", r.Store.Update(ctx, collection, id, patch))
}

func (r Repo) delete(ctx context.Context, collection, id, what string) error {
	return storeErr("delete "+what, what+" not found", r.Store.Delete(ctx, collection, id))
}

// list runs q and decodes every result into a new T.
func list[T any](ctx context.Context, r Repo, collection, what string, q docstore.Query) ([]T, error) {
	docs, err := r.Store.Query(ctx, collection, q)
	if err != nil {
		return nil, apperr.Persistence("list "+what, err)
	}
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		var v T
		if err := docstore.Decode(d, &v); err != nil {
			return nil, apperr.Persistence("list "+what, fmt.Errorf("document %v: %w", d["id"], err))
		}
		out = append(out, v)
	}
	return out, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
