package store

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/juju/errors"

	"github.com/pbaille/notes/internal/domain"
)

// MemoryStore keeps notes in a map. It backs tests and throwaway servers.
type MemoryStore struct {
	mu    sync.RWMutex
	notes map[string]memoryEntry
	seq   uint64
}

// memoryEntry is a stored note with the sequence number of its last write,
// which orders notes sharing an UpdatedAt.
type memoryEntry struct {
	note domain.Note
	seq  uint64
}

// NewMemory creates an empty MemoryStore
func NewMemory() *MemoryStore {
	return &MemoryStore{notes: make(map[string]memoryEntry)}
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}

// Insert stores a copy of n
func (s *MemoryStore) Insert(ctx context.Context, n domain.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.notes[n.ID]; ok {
		return errors.AlreadyExistsf("note %q", n.ID)
	}
	s.seq++
	s.notes[n.ID] = memoryEntry{note: clone(n), seq: s.seq}
	return nil
}

// FindAll returns every note, most recently updated first
func (s *MemoryStore) FindAll(ctx context.Context) ([]domain.Note, error) {
	return s.filter(func(domain.Note) bool { return true }), nil
}

// FindByID returns the note with the given id
func (s *MemoryStore) FindByID(ctx context.Context, id string) (*domain.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.notes[id]
	if !ok {
		return nil, notFound(id)
	}
	n := clone(e.note)
	return &n, nil
}

// FindAndUpdate applies p to the note with the given id
func (s *MemoryStore) FindAndUpdate(ctx context.Context, id string, p domain.Patch) (*domain.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.notes[id]
	if !ok {
		return nil, notFound(id)
	}
	s.seq++
	n := clone(p.Apply(e.note))
	s.notes[id] = memoryEntry{note: n, seq: s.seq}

	n = clone(n)
	return &n, nil
}

// Delete removes the note with the given id
func (s *MemoryStore) Delete(ctx context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.notes[id]; !ok {
		return 0, nil
	}
	delete(s.notes, id)
	return 1, nil
}

// Find returns the notes matching p, most recently updated first
func (s *MemoryStore) Find(ctx context.Context, p domain.Predicate) ([]domain.Note, error) {
	return s.filter(p.Match), nil
}

func (s *MemoryStore) filter(keep func(domain.Note) bool) []domain.Note {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := []memoryEntry{}
	for _, e := range s.notes {
		if keep(e.note) {
			matched = append(matched, e)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.note.UpdatedAt.Equal(b.note.UpdatedAt) {
			return a.note.UpdatedAt.After(b.note.UpdatedAt)
		}
		return a.seq > b.seq
	})

	result := make([]domain.Note, 0, len(matched))
	for _, e := range matched {
		result = append(result, clone(e.note))
	}
	return result
}

// clone deep-copies the tags and content of n
func clone(n domain.Note) domain.Note {
	n.Tags = slices.Clone(n.Tags)
	n.Content = domain.CloneContent(n.Content)
	return n.WithDefaults()
}
