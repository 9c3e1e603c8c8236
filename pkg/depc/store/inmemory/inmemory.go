// Package inmemory provides a map-backed depc store for tests and ephemeral
// runs.
package inmemory

import (
	"context"
	"sync"

	"github.com/WildMeOrg/wbia-plugin-id-example/pkg/depc/store"
)

type row struct {
	id      int64
	roots   store.Key
	values  []any
	cfgKey  string
	partKey string
}

type table struct {
	schema store.TableSchema
	nextID int64
	// parts maps config key -> parent key string -> row.
	parts map[string]map[string]*row
	byID  map[int64]*row
}

// Store implements store.Store using in-memory maps.
type Store struct {
	mu     sync.RWMutex
	tables map[string]*table
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{tables: make(map[string]*table)}
}

// EnsureTable creates the node's table on first use.
func (s *Store) EnsureTable(_ context.Context, node, _ string, schema store.TableSchema) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tables[node]; !ok {
		s.tables[node] = &table{
			schema: schema,
			parts:  make(map[string]map[string]*row),
			byID:   make(map[int64]*row),
		}
	}
	return nil
}

// GetRows returns cached rows for the given parent keys.
func (s *Store) GetRows(_ context.Context, node, cfgKey string, keys []store.Key) (map[string]store.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]store.Row)
	t, ok := s.tables[node]
	if !ok {
		return out, nil
	}
	part := t.parts[cfgKey]
	for _, k := range keys {
		if r, ok := part[k.String()]; ok {
			out[k.String()] = store.Row{RowID: r.id, Values: r.values}
		}
	}
	return out, nil
}

// PutRows upserts entries. Values are replaced wholesale so a concurrent
// reader never observes a partially written row.
func (s *Store) PutRows(_ context.Context, node, cfgKey string, entries []store.Entry) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[node]
	if !ok {
		t = &table{
			parts: make(map[string]map[string]*row),
			byID:  make(map[int64]*row),
		}
		s.tables[node] = t
	}
	part, ok := t.parts[cfgKey]
	if !ok {
		part = make(map[string]*row)
		t.parts[cfgKey] = part
	}

	ids := make([]int64, len(entries))
	for i, e := range entries {
		ks := e.Parents.String()
		if existing, ok := part[ks]; ok {
			existing.values = append([]any(nil), e.Values...)
			ids[i] = existing.id
			continue
		}
		t.nextID++
		r := &row{
			id:      t.nextID,
			roots:   append(store.Key(nil), e.Roots...),
			values:  append([]any(nil), e.Values...),
			cfgKey:  cfgKey,
			partKey: ks,
		}
		part[ks] = r
		t.byID[r.id] = r
		ids[i] = r.id
	}
	return ids, nil
}

// GetNative returns cached rows by native row id, across all configs.
func (s *Store) GetNative(_ context.Context, node string, rowids []int64) (map[int64]store.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int64]store.Row)
	t, ok := s.tables[node]
	if !ok {
		return out, nil
	}
	for _, id := range rowids {
		if r, ok := t.byID[id]; ok {
			out[id] = store.Row{RowID: r.id, Values: r.values}
		}
	}
	return out, nil
}

// Delete removes rows whose root entity ids match, within one config key.
func (s *Store) Delete(_ context.Context, node, cfgKey string, rootIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[node]
	if !ok {
		return nil
	}
	s.deletePart(t, t.parts[cfgKey], rootIDs)
	return nil
}

// DeleteAllConfigs removes matching rows across every config key.
func (s *Store) DeleteAllConfigs(_ context.Context, node string, rootIDs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[node]
	if !ok {
		return nil
	}
	for _, part := range t.parts {
		s.deletePart(t, part, rootIDs)
	}
	return nil
}

func (s *Store) deletePart(t *table, part map[string]*row, rootIDs []int64) {
	if part == nil {
		return
	}
	match := make(map[int64]bool, len(rootIDs))
	for _, id := range rootIDs {
		match[id] = true
	}
	for ks, r := range part {
		for _, root := range r.roots {
			if match[root] {
				delete(part, ks)
				delete(t.byID, r.id)
				break
			}
		}
	}
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}
