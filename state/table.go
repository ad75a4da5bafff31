package state

import (
	"net/netip"
	"slices"
	"sync"

	"github.com/gaissmai/bart"
)

// MemoryTable is an in-memory RoutingTable backed by a prefix trie.
type MemoryTable struct {
	mu     sync.RWMutex
	routes bart.Table[RoutingTableEntry]
}

func NewMemoryTable() *MemoryTable {
	return &MemoryTable{}
}

func (t *MemoryTable) Get(network netip.Prefix) (RoutingTableEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.routes.Get(network.Masked())
}

func (t *MemoryTable) Upsert(entry RoutingTableEntry) error {
	entry.Destination = entry.Destination.Masked()
	t.mu.Lock()
	t.routes.Insert(entry.Destination, entry)
	t.mu.Unlock()
	return nil
}

// List returns a snapshot of every entry, ordered by destination.
func (t *MemoryTable) List() []RoutingTableEntry {
	t.mu.RLock()
	entries := make([]RoutingTableEntry, 0, t.routes.Size())
	for _, e := range t.routes.All() {
		entries = append(entries, e)
	}
	t.mu.RUnlock()
	slices.SortFunc(entries, func(a, b RoutingTableEntry) int {
		return ComparePrefix(a.Destination, b.Destination)
	})
	return entries
}

// Lookup returns the entry with the longest destination containing addr.
func (t *MemoryTable) Lookup(addr netip.Addr) (RoutingTableEntry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.routes.Lookup(addr)
}

func (t *MemoryTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.routes.Size()
}

func ComparePrefix(a, b netip.Prefix) int {
	if c := a.Addr().Compare(b.Addr()); c != 0 {
		return c
	}
	return a.Bits() - b.Bits()
}
