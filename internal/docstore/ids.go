package docstore

import "github.com/google/uuid"

// NewID returns a fresh document id.
func NewID() string {
	return uuid.NewString()
}

// IDOf returns the id carried by doc, or a new one when it has none.
func IDOf(doc Doc) string {
	if id, ok := doc["id"].(string); ok && id != "" {
		return id
	}
	return NewID()
}
