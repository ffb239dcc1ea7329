package cart

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// StorageKey is the key a terminal's cart state is persisted under.
func StorageKey(terminalID uuid.UUID) string {
	return "carts:" + terminalID.String()
}

// Registry hands out one Store per POS terminal, building it on first use.
type Registry struct {
	mu     sync.Mutex
	stores map[uuid.UUID]*Store
	build  func(terminalID uuid.UUID) *Store
}

// NewRegistry uses build to construct a terminal's store the first time it
// is requested.
func NewRegistry(build func(terminalID uuid.UUID) *Store) *Registry {
	return &Registry{
		stores: make(map[uuid.UUID]*Store),
		build:  build,
	}
}

func (r *Registry) Get(terminalID uuid.UUID) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.stores[terminalID]; ok {
		return s
	}
	s := r.build(terminalID)
	r.stores[terminalID] = s
	return s
}

// Terminals lists the terminals with a loaded store, sorted.
func (r *Registry) Terminals() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]uuid.UUID, 0, len(r.stores))
	for id := range r.stores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// Flush persists every loaded store, returning all failures combined.
func (r *Registry) Flush() error {
	var err error
	for _, id := range r.Terminals() {
		r.mu.Lock()
		s := r.stores[id]
		r.mu.Unlock()
		if ferr := s.Flush(); ferr != nil {
			err = multierr.Append(err, fmt.Errorf("terminal %s: %w", id, ferr))
		}
	}
	return err
}
