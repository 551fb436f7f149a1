package store

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is the in-memory DocumentStore used by tests and local
// development. Safe for concurrent use; the single mutex also serializes
// UpdateDocumentTxn read-modify-writes.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]map[string]any
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]map[string]any)}
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) CreateDocument(ctx context.Context, path string, data map[string]any) (string, error) {
	_, id, err := SplitPath(path)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.docs[path]; exists {
		return "", fmt.Errorf("%w: %s", ErrDuplicatePath, path)
	}
	s.docs[path] = cloneDoc(data)
	return id, nil
}

func (s *MemoryStore) GetDocument(ctx context.Context, path string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return cloneDoc(doc), nil
}

func (s *MemoryStore) SetDocument(ctx context.Context, path string, data map[string]any) error {
	if _, _, err := SplitPath(path); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs[path] = cloneDoc(data)
	return nil
}

func (s *MemoryStore) UpdateDocument(ctx context.Context, path string, partial map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[path]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	for k, v := range partial {
		doc[k] = normalize(v)
	}
	return nil
}

func (s *MemoryStore) DeleteDocument(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.docs[path]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	delete(s.docs, path)
	return nil
}

func (s *MemoryStore) QueryDocuments(ctx context.Context, collectionPath string, conditions []Condition) ([]map[string]any, error) {
	for _, c := range conditions {
		if !IsValidOperator(c.Operator) {
			return nil, fmt.Errorf("unsupported query operator %q", c.Operator)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []map[string]any
	for path, doc := range s.docs {
		collection, _, err := SplitPath(path)
		if err != nil || collection != collectionPath {
			continue
		}
		matched := true
		for _, c := range conditions {
			if !matches(doc, c) {
				matched = false
				break
			}
		}
		if matched {
			out = append(out, cloneDoc(doc))
		}
	}
	return out, nil
}

func (s *MemoryStore) UpdateDocumentTxn(ctx context.Context, path string, fn UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.docs[path]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	updated, err := fn(cloneDoc(doc))
	if err != nil {
		return err
	}
	s.docs[path] = cloneDoc(updated)
	return nil
}

// cloneDoc deep-copies through the JSON normalizer so callers can never
// alias the store's internal state.
func cloneDoc(doc map[string]any) map[string]any {
	out, ok := normalize(doc).(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return out
}

// Compile-time check that MemoryStore implements DocumentStore.
var _ DocumentStore = (*MemoryStore)(nil)
