// Package snapshot defines the durable form of a cache: its entries plus
// the explicit recency order, encoded as JSON.
//
// The recency order is stored separately because nothing else in the
// document (map iteration, entry order) is guaranteed to preserve it.
//
// Document layout:
//
//	{
//	  "entries":  [ { "key": "a", "value": <any>, "expiresAt": 1700000000000 }, ... ],
//	  "lruOrder": [ "a", ... ]   // most recently used first
//	}
//
// expiresAt is a Unix epoch timestamp in milliseconds, or null for entries
// that never expire.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrFormat is returned (wrapped) by Decode when a payload cannot be parsed
// or lacks required fields.
var ErrFormat = errors.New("snapshot: malformed document")

// Record is one persisted cache entry.
type Record struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	ExpiresAt *int64          `json:"expiresAt"` // ms since epoch; nil = never
}

// Document is a complete, self-consistent copy of cache state.
type Document struct {
	Entries  []Record `json:"entries"`
	LRUOrder []string `json:"lruOrder"` // head (MRU) first
}

// wire mirrors Document with pointer/required markers so that missing
// fields can be told apart from empty ones.
type wireRecord struct {
	Key       *string         `json:"key" validate:"required"`
	Value     json.RawMessage `json:"value"`
	ExpiresAt *int64          `json:"expiresAt"`
}

type wireDocument struct {
	Entries  []wireRecord `json:"entries" validate:"required,dive"`
	LRUOrder []string     `json:"lruOrder" validate:"required"`
}

var v = validator.New()

// Encode serializes d. Nil slices are written as empty arrays so the output
// always satisfies Decode's required-field checks.
func Encode(d Document) ([]byte, error) {
	if d.Entries == nil {
		d.Entries = []Record{}
	}
	if d.LRUOrder == nil {
		d.LRUOrder = []string{}
	}
	return json.Marshal(d)
}

// Decode parses and validates a document.
// Any failure is reported as an error wrapping ErrFormat.
func Decode(data []byte) (Document, error) {
	var w wireDocument
	if err := json.Unmarshal(data, &w); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if err := v.Struct(&w); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	d := Document{
		Entries:  make([]Record, 0, len(w.Entries)),
		LRUOrder: w.LRUOrder,
	}
	for _, r := range w.Entries {
		d.Entries = append(d.Entries, Record{
			Key:       *r.Key,
			Value:     r.Value,
			ExpiresAt: r.ExpiresAt,
		})
	}
	return d, nil
}
