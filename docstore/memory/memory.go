// Package memory es un Store en proceso. Los documentos se guardan serializados
// en JSON, así ningún caller comparte mapas con el store.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dropDatabas3/hellodoc/docstore"
)

func init() {
	docstore.Register("memory", func(_ context.Context, _ docstore.Config) (docstore.Store, error) {
		return New(), nil
	})
}

// Store en memoria.
type Store struct {
	mu     sync.RWMutex
	cols   map[string]map[string][]byte
	closed bool
}

// New crea un store vacío.
func New() *Store {
	return &Store{cols: map[string]map[string][]byte{}}
}

func (s *Store) Name() string { return "memory" }

func (s *Store) Get(_ context.Context, collection, id string) (docstore.Document, error) {
	if err := docstore.ValidateKey(collection, id); err != nil {
		return docstore.Document{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return docstore.Document{}, docstore.ErrClosed
	}
	raw, ok := s.cols[collection][id]
	if !ok {
		return docstore.Document{}, docstore.ErrNotFound
	}
	return decode(id, raw)
}

func (s *Store) Set(_ context.Context, collection, id string, data map[string]any) error {
	if err := docstore.ValidateKey(collection, id); err != nil {
		return err
	}
	raw, err := json.Marshal(nonNil(data))
	if err != nil {
		return fmt.Errorf("memory: encode: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return docstore.ErrClosed
	}
	col, ok := s.cols[collection]
	if !ok {
		col = map[string][]byte{}
		s.cols[collection] = col
	}
	col[id] = raw
	return nil
}

func (s *Store) Update(_ context.Context, collection, id string, patch map[string]any) error {
	if err := docstore.ValidateKey(collection, id); err != nil {
		return err
	}
	norm, err := docstore.NormalizeMap(patch)
	if err != nil {
		return fmt.Errorf("memory: encode patch: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return docstore.ErrClosed
	}
	raw, ok := s.cols[collection][id]
	if !ok {
		return docstore.ErrNotFound
	}
	cur, err := decode(id, raw)
	if err != nil {
		return err
	}
	merged, err := docstore.ApplyPatch(cur.Data, norm)
	if err != nil {
		return err
	}
	out, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("memory: encode: %w", err)
	}
	s.cols[collection][id] = out
	return nil
}

func (s *Store) Delete(_ context.Context, collection, id string) error {
	if err := docstore.ValidateKey(collection, id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return docstore.ErrClosed
	}
	delete(s.cols[collection], id)
	return nil
}

func (s *Store) Query(ctx context.Context, collection string, q docstore.Query) ([]docstore.Document, error) {
	if err := docstore.ValidateName("collection", collection); err != nil {
		return nil, err
	}
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, docstore.ErrClosed
	}
	docs := make([]docstore.Document, 0, len(s.cols[collection]))
	for id, raw := range s.cols[collection] {
		d, err := decode(id, raw)
		if err != nil {
			s.mu.RUnlock()
			return nil, err
		}
		docs = append(docs, d)
	}
	s.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return docstore.Apply(docs, q), nil
}

func (s *Store) Ping(context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return docstore.ErrClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.cols = map[string]map[string][]byte{}
	s.mu.Unlock()
	return nil
}

func decode(id string, raw []byte) (docstore.Document, error) {
	data := map[string]any{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return docstore.Document{}, fmt.Errorf("memory: decode %s: %w", id, err)
	}
	return docstore.Document{ID: id, Data: data}, nil
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
