package metadata

import "sync"

// Interner caches value-identical Items behind a single pointer, the way
// spec.md §9 recommends ("Intern value-identical instances through a
// per-type hash table; store only interned references inside metadata
// records") in place of the original's intrusive refcounting. Interning is
// opportunistic: callers that don't go through Intern still get correct,
// independent Item values, just without the sharing.
type Interner struct {
	mu    sync.Mutex
	table map[Item]*Item
}

// NewInterner returns an empty interner. The zero value is not usable;
// always construct through this constructor so the table is allocated.
func NewInterner() *Interner {
	return &Interner{table: make(map[Item]*Item)}
}

// Intern returns the canonical *Item for a value-identical item, creating
// and caching one on first sight.
func (in *Interner) Intern(it Item) *Item {
	in.mu.Lock()
	defer in.mu.Unlock()

	if p, ok := in.table[it]; ok {
		return p
	}
	p := new(Item)
	*p = it
	in.table[it] = p
	return p
}

// Len reports the number of distinct items currently interned, mostly
// useful for tests and cache-hit-rate diagnostics.
func (in *Interner) Len() int {
	in.mu.Lock()
	defer in.mu.Unlock()
	return len(in.table)
}
