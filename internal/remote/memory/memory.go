// Package memory is an in-process remote.Store used by tests and offline
// development. It records every call and can inject failures.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/m4mayz/MauNgekos-sub000/internal/remote"
)

// Call is one recorded store invocation.
type Call struct {
	Method     string // "get", "query", "add", "update", "delete"
	Collection string
	ID         string
	Where      []remote.Filter
}

// Store keeps documents in memory.
type Store struct {
	mu           sync.Mutex
	docs         map[string]map[string]map[string]interface{}
	calls        []Call
	failures     []error
	failFn       func(Call) error
	indexMissing bool
	now          func() time.Time

	// OnCall runs before each call is served, outside the lock. Tests use it
	// to block or count.
	OnCall func(ctx context.Context, c Call)
}

var _ remote.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		docs: map[string]map[string]map[string]interface{}{},
		now:  time.Now,
	}
}

// SetClock replaces the server clock used for ServerTimestamp.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// FailNext makes the next len(errs) calls fail with the given errors in order.
func (s *Store) FailNext(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, errs...)
}

// FailWhen installs a predicate deciding the error for each call; nil
// removes it.
func (s *Store) FailWhen(fn func(Call) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failFn = fn
}

// SetIndexMissing makes queries with more than one filter fail with
// remote.ErrIndexMissing.
func (s *Store) SetIndexMissing(missing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexMissing = missing
}

// Put stores a document directly, bypassing the call log.
func (s *Store) Put(collection, id string, data map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collection(collection)[id] = s.resolve(nil, data)
}

// Doc returns a copy of a stored document, or nil.
func (s *Store) Doc(collection, id string) map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[collection][id]
	if !ok {
		return nil
	}
	return copyMap(d)
}

// Calls returns the recorded calls in order.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallsOf returns the recorded calls with the given method.
func (s *Store) CallsOf(method string) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// ResetCalls clears the call log.
func (s *Store) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// begin records c and returns the injected failure, if any.
func (s *Store) begin(ctx context.Context, c Call) error {
	if s.OnCall != nil {
		s.OnCall(ctx, c)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", remote.ErrUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, c)

	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		if err != nil {
			return err
		}
	}
	if s.failFn != nil {
		return s.failFn(c)
	}
	return nil
}

// Get implements remote.Store.
func (s *Store) Get(ctx context.Context, collection, id string) (*remote.Document, error) {
	if err := s.begin(ctx, Call{Method: "get", Collection: collection, ID: id}); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, remote.ErrNotFound)
	}
	return &remote.Document{ID: id, Data: copyMap(d)}, nil
}

// Query implements remote.Store. Results are ordered by id.
func (s *Store) Query(ctx context.Context, q remote.Query) ([]remote.Document, error) {
	if err := s.begin(ctx, Call{Method: "query", Collection: q.Collection, Where: q.Where}); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexMissing && len(q.Where) > 1 {
		return nil, fmt.Errorf("query %s: %w", q.Collection, remote.ErrIndexMissing)
	}

	ids := make([]string, 0, len(s.docs[q.Collection]))
	for id := range s.docs[q.Collection] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []remote.Document
	for _, id := range ids {
		d := s.docs[q.Collection][id]
		if !matches(d, q.Where) {
			continue
		}
		out = append(out, remote.Document{ID: id, Data: copyMap(d)})
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

// Add implements remote.Store.
func (s *Store) Add(ctx context.Context, collection string, data map[string]interface{}) (string, error) {
	if err := s.begin(ctx, Call{Method: "add", Collection: collection}); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.collection(collection)[id] = s.resolve(nil, data)
	s.calls[len(s.calls)-1].ID = id
	return id, nil
}

// Update implements remote.Store.
func (s *Store) Update(ctx context.Context, collection, id string, data map[string]interface{}) error {
	if err := s.begin(ctx, Call{Method: "update", Collection: collection, ID: id}); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.docs[collection][id]
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, remote.ErrNotFound)
	}
	s.docs[collection][id] = s.resolve(d, data)
	return nil
}

// Delete implements remote.Store.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := s.begin(ctx, Call{Method: "delete", Collection: collection, ID: id}); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs[collection], id)
	return nil
}

func (s *Store) collection(name string) map[string]map[string]interface{} {
	c, ok := s.docs[name]
	if !ok {
		c = map[string]map[string]interface{}{}
		s.docs[name] = c
	}
	return c
}

// resolve merges data into base, applying transforms (caller holds lock).
func (s *Store) resolve(base, data map[string]interface{}) map[string]interface{} {
	out := copyMap(base)
	if out == nil {
		out = map[string]interface{}{}
	}
	for k, v := range data {
		switch t := v.(type) {
		case remote.ArrayUnion:
			existing, _ := out[k].([]interface{})
			for _, e := range t.Elems {
				if !containsValue(existing, e) {
					existing = append(existing, normalize(e))
				}
			}
			out[k] = existing
		case remote.ArrayRemove:
			existing, _ := out[k].([]interface{})
			kept := []interface{}{}
			for _, e := range existing {
				if !containsValue(t.Elems, e) {
					kept = append(kept, e)
				}
			}
			out[k] = kept
		default:
			if remote.IsServerTimestamp(v) {
				out[k] = s.now().UTC()
				continue
			}
			out[k] = normalize(v)
		}
	}
	return out
}

func matches(d map[string]interface{}, where []remote.Filter) bool {
	for _, f := range where {
		if d[f.Field] != normalize(f.Value) {
			return false
		}
	}
	return true
}

func containsValue(list []interface{}, v interface{}) bool {
	v = normalize(v)
	for _, e := range list {
		if e == v {
			return true
		}
	}
	return false
}

// normalize converts values to the types a document store hands back.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case float32:
		return float64(t)
	case []string:
		out := make([]interface{}, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case map[string]interface{}:
		return copyMap(t)
	}
	return v
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = normalize(v)
	}
	return out
}
