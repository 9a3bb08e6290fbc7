// Package memory is a process-local DocumentStore. It backs the "memory"
// store driver and doubles as the store in unit tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"timesheet/internal/domain"
)

// Store implements ports.DocumentStore in memory.
type Store struct {
	mu   sync.Mutex
	docs map[string][]domain.Document

	// Fail, when set, is consulted before every call; a non-nil result is
	// returned as the call's error.
	Fail func(op string) error
}

// New returns an empty store.
func New() *Store {
	return &Store{docs: map[string][]domain.Document{}}
}

func (s *Store) fail(op string) error {
	if s.Fail == nil {
		return nil
	}
	return s.Fail(op)
}

// List returns copies of the collection's documents, newest first.
func (s *Store) List(ctx context.Context, collection string) ([]domain.Document, error) {
	if err := s.fail("list"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Document, 0, len(s.docs[collection]))
	for _, d := range s.docs[collection] {
		d.Data = slices.Clone(d.Data)
		out = append(out, d)
	}
	slices.SortStableFunc(out, func(a, b domain.Document) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

// Create appends doc; an existing id is an error.
func (s *Store) Create(ctx context.Context, collection string, doc domain.Document) error {
	if err := s.fail("create"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.docs[collection] {
		if d.ID == doc.ID {
			return fmt.Errorf("memory: document %s already exists", doc.ID)
		}
	}
	doc.Data = slices.Clone(doc.Data)
	s.docs[collection] = append(s.docs[collection], doc)
	return nil
}

// Update merge-patches fields into the stored document.
func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]any, updatedAt time.Time) error {
	if err := s.fail("update"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, d := range s.docs[collection] {
		if d.ID != id {
			continue
		}
		merged, err := MergePatch(d.Data, fields)
		if err != nil {
			return err
		}
		s.docs[collection][i].Data = merged
		s.docs[collection][i].UpdatedAt = updatedAt
		return nil
	}
	return domain.ErrNotFound
}

// Delete removes id; deleting a missing document is not an error.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := s.fail("delete"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[collection] = slices.DeleteFunc(s.docs[collection], func(d domain.Document) bool {
		return d.ID == id
	})
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

// Put stores a raw document, bypassing validation. Tests use it to seed
// malformed records.
func (s *Store) Put(collection string, doc domain.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[collection] = append(s.docs[collection], doc)
}

// MergePatch applies fields to the JSON object in data following RFC 7386:
// objects merge recursively, null deletes a key, anything else replaces.
func MergePatch(data json.RawMessage, fields map[string]any) (json.RawMessage, error) {
	target := map[string]any{}
	if len(data) > 0 {
		// A stored value that is not an object is replaced wholesale.
		_ = json.Unmarshal(data, &target)
		if target == nil {
			target = map[string]any{}
		}
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("memory: encoding fields: %w", err)
	}
	var patch map[string]any
	if err := json.Unmarshal(raw, &patch); err != nil {
		return nil, fmt.Errorf("memory: decoding fields: %w", err)
	}
	mergeInto(target, patch)
	return json.Marshal(target)
}

func mergeInto(target, patch map[string]any) {
	for k, v := range patch {
		if v == nil {
			delete(target, k)
			continue
		}
		if pv, ok := v.(map[string]any); ok {
			tv, ok := target[k].(map[string]any)
			if !ok {
				tv = map[string]any{}
			}
			mergeInto(tv, pv)
			target[k] = tv
			continue
		}
		target[k] = v
	}
}
