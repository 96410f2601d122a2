package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Operation identifies the remote call a queued mutation replays to.
type Operation string

const (
	OpCreate       Operation = "create"
	OpUpdate       Operation = "update"
	OpDelete       Operation = "delete"
	OpSave         Operation = "save"
	OpUnsave       Operation = "unsave"
	OpUpdateStatus Operation = "updateStatus"
)

// AllOperations returns every queueable operation.
func AllOperations() []Operation {
	return []Operation{OpCreate, OpUpdate, OpDelete, OpSave, OpUnsave, OpUpdateStatus}
}

// Valid reports whether op is a known operation.
func (op Operation) Valid() bool {
	for _, known := range AllOperations() {
		if op == known {
			return true
		}
	}
	return false
}

// Remote collection names.
const (
	CollectionListings = "listings"
	CollectionUsers    = "users"
)

// MaxMutationRetries is the number of failed replays after which a queued
// mutation is dropped.
const MaxMutationRetries = 3

// Mutation is a write performed while offline, waiting to be replayed
// against the remote store. ID defines replay order.
type Mutation struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Operation  Operation `gorm:"size:20;not null" json:"operation"`
	Collection string    `gorm:"size:64;not null" json:"collection"`
	DocumentID string    `gorm:"size:128;index" json:"documentId"`
	Data       string    `gorm:"type:text" json:"data,omitempty"`
	CreatedAt  int64     `gorm:"autoCreateTime:false" json:"createdAt"`
	RetryCount int       `gorm:"not null;default:0" json:"retryCount"`
	LastError  string    `gorm:"type:text" json:"lastError,omitempty"`
}

// TableName specifies the table name for GORM.
func (Mutation) TableName() string {
	return "mutation_queue"
}

// Exhausted reports whether the mutation has failed maxRetries times.
func (m *Mutation) Exhausted(maxRetries int) bool {
	return m.RetryCount >= maxRetries
}

// Payload decodes the stored JSON payload. Integral numbers decode as int64
// and the rest as float64 so replayed documents keep their numeric types.
func (m *Mutation) Payload() (map[string]interface{}, error) {
	if m.Data == "" {
		return map[string]interface{}{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(m.Data)))
	dec.UseNumber()

	var out map[string]interface{}
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode mutation %d payload: %w", m.ID, err)
	}
	for k, v := range out {
		out[k] = normalizeNumber(v)
	}
	return out, nil
}

// EncodePayload serializes a payload for storage in Mutation.Data.
func EncodePayload(payload map[string]interface{}) (string, error) {
	if len(payload) == 0 {
		return "", nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode mutation payload: %w", err)
	}
	return string(b), nil
}

func normalizeNumber(v interface{}) interface{} {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case []interface{}:
		for i := range t {
			t[i] = normalizeNumber(t[i])
		}
		return t
	case map[string]interface{}:
		for k := range t {
			t[k] = normalizeNumber(t[k])
		}
		return t
	}
	return v
}
