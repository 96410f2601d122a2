// Package remote defines the contract the sync engine needs from the
// authoritative document store, plus the listing query policy built on it.
package remote

import (
	"context"
	"errors"
)

// Contract errors. Adapters wrap their native errors so errors.Is works.
var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("remote: document not found")
	// ErrIndexMissing is returned when a compound query needs an index the
	// store does not have.
	ErrIndexMissing = errors.New("remote: query requires a missing index")
	// ErrUnavailable marks transient network or server failures.
	ErrUnavailable = errors.New("remote: store unavailable")
)

// IsTransient reports whether err is a connectivity or timeout failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}

// Document is a stored document and its id.
type Document struct {
	ID   string
	Data map[string]interface{}
}

// Filter is an equality predicate on a top-level field.
type Filter struct {
	Field string
	Value interface{}
}

// Query selects documents of a collection. Results come back in store order;
// callers sort.
type Query struct {
	Collection string
	Where      []Filter
	Limit      int
}

// Eq is shorthand for an equality filter.
func Eq(field string, value interface{}) Filter {
	return Filter{Field: field, Value: value}
}

// Store is a collection-oriented document store.
type Store interface {
	// Get returns a document or ErrNotFound.
	Get(ctx context.Context, collection, id string) (*Document, error)
	// Query returns every document matching all filters. A query the store
	// cannot serve without an index fails with ErrIndexMissing.
	Query(ctx context.Context, q Query) ([]Document, error)
	// Add creates a document with a store-generated id and returns it.
	Add(ctx context.Context, collection string, data map[string]interface{}) (string, error)
	// Update merges fields into an existing document, or fails with ErrNotFound.
	Update(ctx context.Context, collection, id string, data map[string]interface{}) error
	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, collection, id string) error
}

// Field values with server-side meaning. Adapters translate them.
type (
	serverTimestamp struct{}

	// ArrayUnion adds elements missing from an array field.
	ArrayUnion struct{ Elems []interface{} }

	// ArrayRemove removes all instances of elements from an array field.
	ArrayRemove struct{ Elems []interface{} }
)

// ServerTimestamp is replaced by the time the store applies the write.
var ServerTimestamp = serverTimestamp{}

// IsServerTimestamp reports whether v is the ServerTimestamp sentinel.
func IsServerTimestamp(v interface{}) bool {
	_, ok := v.(serverTimestamp)
	return ok
}

// Union returns an ArrayUnion transform.
func Union(elems ...interface{}) ArrayUnion {
	return ArrayUnion{Elems: elems}
}

// Remove returns an ArrayRemove transform.
func Remove(elems ...interface{}) ArrayRemove {
	return ArrayRemove{Elems: elems}
}
