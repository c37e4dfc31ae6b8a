// Package docstore defines the document store used for member profiles,
// tasks, subdomains, preferences and activity records, plus the helpers
// shared by its backends.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

const (
	Users       = "users"
	Activities  = "activities"
	Tasks       = "tasks"
	SubDomains  = "subdomains"
	Preferences = "preferences"
)

var (
	// ErrNotFound is returned by Get, Update and Delete for a missing document.
	ErrNotFound = errors.New("document not found")
	// ErrExists is returned by Create when the requested id is taken.
	ErrExists = errors.New("document already exists")
)

// Doc is a schemaless document. The "id" key always holds the document id.
type Doc map[string]any

// Op is a filter comparison. The zero value means equality.
type Op string

const (
	OpEq  Op = ""
	OpGTE Op = ">="
)

type Filter struct {
	Field string
	Op    Op
	Value any
}

type Order struct {
	Field string
	Desc  bool
}

// Query selects documents matching every Where filter.
// A zero Limit means no limit.
type Query struct {
	Where   []Filter
	OrderBy *Order
	Limit   int
}

func (q Query) WhereEquals(field string, value any) Query {
	q.Where = append(append([]Filter(nil), q.Where...), Filter{Field: field, Value: value})
	return q
}

// WhereAtLeast keeps documents whose field is >= value.
func (q Query) WhereAtLeast(field string, value any) Query {
	q.Where = append(append([]Filter(nil), q.Where...), Filter{Field: field, Op: OpGTE, Value: value})
	return q
}

func (q Query) Ordered(field string, desc bool) Query {
	q.OrderBy = &Order{Field: field, Desc: desc}
	return q
}

func (q Query) Limited(n int) Query {
	q.Limit = n
	return q
}

type Store interface {
	// Create inserts doc and returns its id. A non-empty doc["id"] is used
	// as the id; otherwise one is generated.
	Create(ctx context.Context, collection string, doc Doc) (string, error)
	Get(ctx context.Context, collection, id string) (Doc, error)
	// Update merges partial into the existing document.
	Update(ctx context.Context, collection, id string, partial Doc) error
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, collection string, q Query) ([]Doc, error)
	Close() error
}

var fieldRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidField reports whether name can be used as a query field.
func ValidField(name string) bool {
	return fieldRe.MatchString(name)
}

func ValidateQuery(q Query) error {
	for _, f := range q.Where {
		if !ValidField(f.Field) {
			return fmt.Errorf("invalid query field %q", f.Field)
		}
		if f.Op != OpEq && f.Op != OpGTE {
			return fmt.Errorf("invalid query operator %q", f.Op)
		}
	}
	if q.OrderBy != nil && !ValidField(q.OrderBy.Field) {
		return fmt.Errorf("invalid order field %q", q.OrderBy.Field)
	}
	if q.Limit < 0 {
		return fmt.Errorf("invalid limit %d", q.Limit)
	}
	return nil
}

// Encode converts a typed value into a Doc through its JSON representation.
func Encode(v any) (Doc, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var doc Doc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return doc, nil
}

// Decode fills v from doc through its JSON representation.
func Decode(doc Doc, v any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// Normalize returns a deep copy of doc holding only JSON value types.
func Normalize(doc Doc) (Doc, error) {
	if doc == nil {
		return Doc{}, nil
	}
	return Encode(doc)
}

// NormalizeValue converts a scalar into the representation Normalize produces.
func NormalizeValue(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

// Merge returns a copy of base with partial applied on top. The id key is never overwritten.
func Merge(base, partial Doc) Doc {
	out := make(Doc, len(base)+len(partial))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range partial {
		if k == "id" {
			continue
		}
		out[k] = v
	}
	return out
}

// Match reports whether doc satisfies every filter.
func Match(doc Doc, where []Filter) bool {
	for _, f := range where {
		got, ok := doc[f.Field]
		if !ok {
			return false
		}
		c := Compare(got, NormalizeValue(f.Value))
		if f.Op == OpGTE {
			if c < 0 {
				return false
			}
		} else if c != 0 {
			return false
		}
	}
	return true
}

// Compare orders normalized JSON values: nil < bool < number < string.
// Values of other types compare by their JSON text.
func Compare(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}
	switch av := a.(type) {
	case nil:
		return 0
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case float64:
		bv := b.(float64)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case string:
		return strings.Compare(av, b.(string))
	default:
		ja, _ := json.Marshal(a)
		jb, _ := json.Marshal(b)
		return strings.Compare(string(ja), string(jb))
	}
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}

// Apply filters, sorts and limits docs in place and returns the result.
// The sort is stable so equal keys keep their incoming order.
func Apply(docs []Doc, q Query) []Doc {
	out := docs[:0]
	for _, d := range docs {
		if Match(d, q.Where) {
			out = append(out, d)
		}
	}
	if q.OrderBy != nil {
		field, desc := q.OrderBy.Field, q.OrderBy.Desc
		sort.SliceStable(out, func(i, j int) bool {
			c := Compare(out[i][field], out[j][field])
			if desc {
				return c > 0
			}
			return c < 0
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}
