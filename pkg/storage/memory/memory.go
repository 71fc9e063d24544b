// Package memory provides an in-process storage backend. It is the default
// for local development and the fixture for package tests; the filter
// evaluator mirrors the subset of Mongo query semantics the service emits.
package memory

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/oncoregistry/ingest/pkg/storage"
)

// Store is an in-memory document store.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{collections: make(map[string]*collection)}
}

// Collection returns the named collection, creating it on first use.
func (s *Store) Collection(name string) storage.Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		c = &collection{}
		s.collections[name] = c
	}
	return c
}

// ParseRef validates a reference id. The memory backend stores references as
// plain strings, so any non-empty id without whitespace is acceptable.
func (s *Store) ParseRef(ref string) (string, error) {
	if ref == "" || strings.ContainsAny(ref, " \t\n") {
		return "", fmt.Errorf("malformed reference id %q", ref)
	}
	return ref, nil
}

// Close is a no-op for the memory backend.
func (s *Store) Close(ctx context.Context) error { return nil }

type collection struct {
	mu   sync.RWMutex
	docs []storage.Doc
}

func (c *collection) FindOne(ctx context.Context, filter storage.Filter) (storage.Doc, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, doc := range c.docs {
		if matches(doc, filter) {
			return cloneDoc(doc), nil
		}
	}
	return nil, storage.ErrNotFound
}

func (c *collection) Find(ctx context.Context, filter storage.Filter, projection []string) ([]storage.Doc, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []storage.Doc
	for _, doc := range c.docs {
		if matches(doc, filter) {
			out = append(out, project(cloneDoc(doc), projection))
		}
	}
	return out, nil
}

func (c *collection) Insert(ctx context.Context, docs ...storage.Doc) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		stored := cloneDoc(doc)
		id, _ := stored["_id"].(string)
		if id == "" {
			id = uuid.NewString()
			stored["_id"] = id
		}
		c.docs = append(c.docs, stored)
		ids = append(ids, id)
	}
	return ids, nil
}

func (c *collection) Update(ctx context.Context, filter storage.Filter, update storage.Update) error {
	set, ok := update["$set"].(map[string]interface{})
	if !ok {
		return fmt.Errorf("unsupported update document: %v", update)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, doc := range c.docs {
		if matches(doc, filter) {
			for k, v := range set {
				doc[k] = v
			}
		}
	}
	return nil
}

func (c *collection) Remove(ctx context.Context, filter storage.Filter) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.docs[:0]
	for _, doc := range c.docs {
		if !matches(doc, filter) {
			kept = append(kept, doc)
		}
	}
	c.docs = kept
	return nil
}

// matches evaluates the supported filter subset against a document. An
// unknown field in the filter (including the fail-closed "find" sentinel)
// matches nothing, which is exactly the sentinel's purpose.
func matches(doc storage.Doc, filter storage.Filter) bool {
	for key, want := range filter {
		if key == "$or" {
			if !matchesAny(doc, want) {
				return false
			}
			continue
		}
		got, ok := doc[key]
		if !ok {
			return false
		}
		if in, ok := operand(want, "$in"); ok {
			if !containsValue(in, got) {
				return false
			}
			continue
		}
		if listContains(got, want) {
			continue
		}
		if !equalValues(got, want) {
			return false
		}
	}
	return true
}

func matchesAny(doc storage.Doc, clauses interface{}) bool {
	v := reflect.ValueOf(clauses)
	if v.Kind() != reflect.Slice {
		return false
	}
	for i := 0; i < v.Len(); i++ {
		sub, ok := toFilter(v.Index(i).Interface())
		if ok && matches(doc, sub) {
			return true
		}
	}
	return false
}

func toFilter(v interface{}) (storage.Filter, bool) {
	switch f := v.(type) {
	case storage.Filter:
		return f, true
	default:
		return nil, false
	}
}

func operand(want interface{}, op string) (interface{}, bool) {
	m, ok := want.(map[string]interface{})
	if !ok {
		return nil, false
	}
	v, ok := m[op]
	return v, ok
}

func containsValue(list interface{}, got interface{}) bool {
	v := reflect.ValueOf(list)
	if v.Kind() != reflect.Slice {
		return false
	}
	for i := 0; i < v.Len(); i++ {
		if equalValues(got, v.Index(i).Interface()) {
			return true
		}
	}
	return false
}

// listContains implements Mongo's implicit "array contains" equality: a
// scalar filter value matches an array field when any element equals it.
// Used by the trials collaborator filter.
func listContains(got interface{}, want interface{}) bool {
	v := reflect.ValueOf(got)
	if v.Kind() != reflect.Slice {
		return false
	}
	if _, isFilter := want.(map[string]interface{}); isFilter {
		return false
	}
	for i := 0; i < v.Len(); i++ {
		if equalValues(v.Index(i).Interface(), want) {
			return true
		}
	}
	return false
}

// equalValues compares loosely across JSON round trips (int vs float64).
func equalValues(a, b interface{}) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func project(doc storage.Doc, fields []string) storage.Doc {
	if len(fields) == 0 {
		return doc
	}
	out := storage.Doc{}
	if id, ok := doc["_id"]; ok {
		out["_id"] = id
	}
	for _, f := range fields {
		if v, ok := doc[f]; ok {
			out[f] = v
		}
	}
	return out
}

func cloneDoc(doc storage.Doc) storage.Doc {
	out := make(storage.Doc, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}
