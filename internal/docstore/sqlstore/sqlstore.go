// Package sqlstore keeps documents as JSON rows in the workspace SQLite database.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"teamdesk/internal/docstore"
	"teamdesk/internal/domain"
)

type Store struct {
	DB  *sql.DB
	Now func() time.Time
}

// New returns a Store over an already migrated database.
func New(db *sql.DB) *Store {
	return &Store{DB: db}
}

func (s *Store) now() string {
	if s.Now == nil {
		return domain.FormatTime(time.Now())
	}
	return domain.FormatTime(s.Now())
}

func (s *Store) Create(ctx context.Context, collection string, doc docstore.Doc) (string, error) {
	id := docstore.IDOf(doc)
	body, err := docstore.Normalize(doc)
	if err != nil {
		return "", err
	}
	body["id"] = id
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}
	ts := s.now()
	res, err := s.DB.ExecContext(ctx, `INSERT INTO documents(collection,id,body,created_at,updated_at) VALUES (?,?,?,?,?) ON CONFLICT(collection,id) DO NOTHING`,
		collection, id, string(data), ts, ts)
	if err != nil {
		return "", err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return "", fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrExists)
	}
	return id, nil
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Doc, error) {
	return getDoc(ctx, s.DB, collection, id)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getDoc(ctx context.Context, q queryer, collection, id string) (docstore.Doc, error) {
	var body string
	err := q.QueryRowContext(ctx, `SELECT body FROM documents WHERE collection=? AND id=?`, collection, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return decodeBody(body)
}

func decodeBody(body string) (docstore.Doc, error) {
	var doc docstore.Doc
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("decode document body: %w", err)
	}
	return doc, nil
}

func (s *Store) Update(ctx context.Context, collection, id string, partial docstore.Doc) error {
	patch, err := docstore.Normalize(partial)
	if err != nil {
		return err
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	current, err := getDoc(ctx, tx, collection, id)
	if err != nil {
		return err
	}
	data, err := json.Marshal(docstore.Merge(current, patch))
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE documents SET body=?, updated_at=? WHERE collection=? AND id=?`,
		string(data), s.now(), collection, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM documents WHERE collection=? AND id=?`, collection, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s/%s: %w", collection, id, docstore.ErrNotFound)
	}
	return nil
}

func (s *Store) Query(ctx context.Context, collection string, q docstore.Query) ([]docstore.Doc, error) {
	if err := docstore.ValidateQuery(q); err != nil {
		return nil, err
	}
	var (
		clauses = []string{"collection=?"}
		args    = []any{collection}
	)
	for _, f := range q.Where {
		v := docstore.NormalizeValue(f.Value)
		path := "json_extract(body,'$." + f.Field + "')"
		if f.Op == docstore.OpGTE {
			if b, ok := v.(bool); ok {
				v = boolInt(b)
			}
			clauses = append(clauses, path+">=?")
			args = append(args, v)
			continue
		}
		switch val := v.(type) {
		case nil:
			clauses = append(clauses, path+" IS NULL")
		case bool:
			clauses = append(clauses, path+"=?")
			args = append(args, boolInt(val))
		default:
			clauses = append(clauses, path+"=?")
			args = append(args, val)
		}
	}
	sqlText := `SELECT body FROM documents WHERE ` + strings.Join(clauses, " AND ")
	if q.OrderBy != nil {
		dir := "ASC"
		if q.OrderBy.Desc {
			dir = "DESC"
		}
		sqlText += ` ORDER BY json_extract(body,'$.` + q.OrderBy.Field + `') ` + dir + `, rowid ASC`
	} else {
		sqlText += ` ORDER BY rowid ASC`
	}
	if q.Limit > 0 {
		sqlText += ` LIMIT ?`
		args = append(args, q.Limit)
	}
	rows, err := s.DB.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []docstore.Doc
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		doc, err := decodeBody(body)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

// Close is a no-op; the database handle belongs to the caller.
func (s *Store) Close() error { return nil }

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
