// Package storage defines the document-store contract the service consumes.
// The core only ever issues Mongo-style filters and $set updates; indexing,
// transactions and connection pooling belong to the backing store.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Filter is a Mongo-style query expression. Supported operators are direct
// field equality, "$or" over a list of sub-filters, and "$in" over a list of
// values. Anything else is passed through to the backend untouched.
type Filter = map[string]interface{}

// Update is a Mongo-style update document; the core only issues "$set".
type Update = map[string]interface{}

// Doc is a raw document as stored.
type Doc = map[string]interface{}

// ErrNotFound is returned by FindOne when no document matches.
var ErrNotFound = errors.New("storage: document not found")

// Collection is one named document collection.
type Collection interface {
	FindOne(ctx context.Context, filter Filter) (Doc, error)
	Find(ctx context.Context, filter Filter, projection []string) ([]Doc, error)
	Insert(ctx context.Context, docs ...Doc) ([]string, error)
	Update(ctx context.Context, filter Filter, update Update) error
	Remove(ctx context.Context, filter Filter) error
}

// Store exposes named collections plus reference-id parsing for the
// backend's native id type. ParseRef must reject malformed references so
// they never reach the store as queries.
type Store interface {
	Collection(name string) Collection
	ParseRef(s string) (string, error)
	Close(ctx context.Context) error
}

// Collection names used by the service.
const (
	CollAccounts  = "accounts"
	CollTrials    = "trials"
	CollData      = "data"
	CollIngestion = "ingestion"
	CollAnalysis  = "analysis"
)

// ToDoc converts a typed record to its stored document form via its JSON
// representation, so struct tags stay the single source of field names.
func ToDoc(v interface{}) (Doc, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var doc Doc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

// Decode converts a stored document into a typed record.
func Decode(doc Doc, out interface{}) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}
