package store

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// MemoryStore keeps runs in a map. It is used by tests and by callers that
// sort inputs small enough to hold in memory twice.
type MemoryStore struct {
	mu   sync.Mutex
	runs map[string][]int32
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: map[string][]int32{}}
}

func (s *MemoryStore) Create(id string, count int64) (RunWriter, error) {
	return &memoryWriter{store: s, id: id, count: count, values: make([]int32, 0, count)}, nil
}

func (s *MemoryStore) Open(id string) (RunReader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	values, ok := s.runs[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "run %s", id)
	}

	return &sliceReader{values: values}, nil
}

func (s *MemoryStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.runs, id)

	return nil
}

func (s *MemoryStore) Location(id string) string {
	return "memory:" + id
}

func (s *MemoryStore) Close() error {
	return nil
}

// Runs returns the ids of every stored run in sorted order.
func (s *MemoryStore) Runs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.runs))
	for id := range s.runs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids
}

type memoryWriter struct {
	store  *MemoryStore
	id     string
	count  int64
	values []int32
}

func (w *memoryWriter) Append(values []int32) error {
	if int64(len(w.values)+len(values)) > w.count {
		return errors.Wrapf(ErrCountMismatch, "run %s: more than %d values", w.id, w.count)
	}

	w.values = append(w.values, values...)

	return nil
}

func (w *memoryWriter) Close() error {
	if int64(len(w.values)) != w.count {
		return errors.Wrapf(ErrCountMismatch, "run %s: wrote %d of %d values", w.id, len(w.values), w.count)
	}

	w.store.mu.Lock()
	defer w.store.mu.Unlock()

	w.store.runs[w.id] = w.values

	return nil
}

// MemoryInput is an Input backed by a slice.
type MemoryInput []int32

func (in MemoryInput) Len() int64 {
	return int64(len(in))
}

func (in MemoryInput) ReadAt(offset int64, count int) ([]int32, error) {
	if offset < 0 || count < 0 {
		return nil, errors.Errorf("invalid read at %d count %d", offset, count)
	}
	if offset >= int64(len(in)) {
		return nil, nil
	}

	end := offset + int64(count)
	if end > int64(len(in)) {
		end = int64(len(in))
	}

	values := make([]int32, end-offset)
	copy(values, in[offset:end])

	return values, nil
}
