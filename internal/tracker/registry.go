package tracker

import (
	"context"
	"sync"
)

// Registry hands out one loaded Table per owner.
type Registry struct {
	mu     sync.Mutex
	tables map[int]*Table
	store  Store
	opts   Options
}

// NewRegistry creates a Registry whose tables share store and opts.
func NewRegistry(store Store, opts Options) *Registry {
	return &Registry{
		tables: make(map[int]*Table),
		store:  store,
		opts:   opts.withDefaults(),
	}
}

// Table returns the owner's table, creating and loading it on first use.
// A table whose initial load fails is not cached.
func (r *Registry) Table(ctx context.Context, owner int) (*Table, error) {
	r.mu.Lock()
	t, ok := r.tables[owner]
	r.mu.Unlock()
	if ok {
		return t, nil
	}

	t = NewTable(owner, r.store, r.opts)
	if err := t.Load(ctx); err != nil {
		t.Close()
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.tables[owner]; ok {
		// Lost a race with another first request for the same owner.
		t.Close()
		return existing, nil
	}
	r.tables[owner] = t
	return t, nil
}

// Resync retries pending writes on every table and returns how many rows
// are still pending.
func (r *Registry) Resync(ctx context.Context) int {
	pending := 0
	for _, t := range r.snapshot() {
		pending += t.Resync(ctx)
	}
	return pending
}

// Close stops every table's timer.
func (r *Registry) Close() {
	for _, t := range r.snapshot() {
		t.Close()
	}
}

func (r *Registry) snapshot() []*Table {
	r.mu.Lock()
	defer r.mu.Unlock()
	tables := make([]*Table, 0, len(r.tables))
	for _, t := range r.tables {
		tables = append(tables, t)
	}
	return tables
}
