// Package firestore adapts Cloud Firestore to remote.Store.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/m4mayz/MauNgekos-sub000/internal/remote"
)

// Config selects the Firestore project. The client connects to the emulator
// when FIRESTORE_EMULATOR_HOST is set.
type Config struct {
	ProjectID       string
	CredentialsFile string
}

// Store is a remote.Store backed by Firestore.
type Store struct {
	client *firestore.Client
}

var _ remote.Store = (*Store)(nil)

// New connects to Firestore.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firestore: project id is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return &Store{client: client}, nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *firestore.Client) *Store {
	return &Store{client: client}
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Get implements remote.Store.
func (s *Store) Get(ctx context.Context, collection, id string) (*remote.Document, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return &remote.Document{ID: snap.Ref.ID, Data: snap.Data()}, nil
}

// Query implements remote.Store.
func (s *Store) Query(ctx context.Context, q remote.Query) ([]remote.Document, error) {
	query := s.client.Collection(q.Collection).Query
	for _, f := range q.Where {
		query = query.Where(f.Field, "==", f.Value)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var out []remote.Document
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, mapError(err)
		}
		out = append(out, remote.Document{ID: snap.Ref.ID, Data: snap.Data()})
	}
	return out, nil
}

// Add implements remote.Store.
func (s *Store) Add(ctx context.Context, collection string, data map[string]interface{}) (string, error) {
	fields := make(map[string]interface{}, len(data))
	for k, v := range data {
		fields[k] = toNative(v)
	}

	ref, _, err := s.client.Collection(collection).Add(ctx, fields)
	if err != nil {
		return "", mapError(err)
	}
	return ref.ID, nil
}

// Update implements remote.Store.
func (s *Store) Update(ctx context.Context, collection, id string, data map[string]interface{}) error {
	updates := make([]firestore.Update, 0, len(data))
	for k, v := range data {
		updates = append(updates, firestore.Update{FieldPath: firestore.FieldPath{k}, Value: toNative(v)})
	}

	if _, err := s.client.Collection(collection).Doc(id).Update(ctx, updates); err != nil {
		return mapError(err)
	}
	return nil
}

// Delete implements remote.Store.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.client.Collection(collection).Doc(id).Delete(ctx); err != nil {
		return mapError(err)
	}
	return nil
}

// toNative translates remote transforms into Firestore sentinels.
func toNative(v interface{}) interface{} {
	switch t := v.(type) {
	case remote.ArrayUnion:
		return firestore.ArrayUnion(t.Elems...)
	case remote.ArrayRemove:
		return firestore.ArrayRemove(t.Elems...)
	}
	if remote.IsServerTimestamp(v) {
		return firestore.ServerTimestamp
	}
	return v
}

// mapError wraps gRPC status errors with the matching remote sentinel.
func mapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", remote.ErrUnavailable, err)
	}

	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%w: %v", remote.ErrNotFound, err)
	case codes.FailedPrecondition:
		if strings.Contains(strings.ToLower(status.Convert(err).Message()), "index") {
			return fmt.Errorf("%w: %v", remote.ErrIndexMissing, err)
		}
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted, codes.Canceled:
		return fmt.Errorf("%w: %v", remote.ErrUnavailable, err)
	}
	return err
}
