package sys

import (
	"github.com/encodeous/strand/state"
)

// KernelTable is a RoutingTable that mirrors every accepted route into the
// operating system's routing table before recording it in memory.
type KernelTable struct {
	*state.MemoryTable
	install func(state.RoutingTableEntry) error
}

// NewKernelTable creates a table installing routes tagged with the given rtm_protocol.
func NewKernelTable(protocol int) *KernelTable {
	return &KernelTable{
		MemoryTable: state.NewMemoryTable(),
		install: func(entry state.RoutingTableEntry) error {
			return replaceRoute(protocol, entry)
		},
	}
}

// Upsert installs the route in the kernel. If that fails, the in-memory entry is left
// untouched and a *state.StoreError is returned.
func (t *KernelTable) Upsert(entry state.RoutingTableEntry) error {
	entry.Destination = entry.Destination.Masked()
	if err := t.install(entry); err != nil {
		return &state.StoreError{Entry: entry, Err: err}
	}
	return t.MemoryTable.Upsert(entry)
}
