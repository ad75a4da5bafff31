package sys

import (
	"errors"
	"net/netip"
	"testing"

	"github.com/encodeous/strand/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKernelTableInstallFailure(t *testing.T) {
	fail := false
	var installed []state.RoutingTableEntry
	kt := &KernelTable{
		MemoryTable: state.NewMemoryTable(),
		install: func(e state.RoutingTableEntry) error {
			if fail {
				return errors.New("netlink: network is unreachable")
			}
			installed = append(installed, e)
			return nil
		},
	}
	first := state.RoutingTableEntry{
		Destination: netip.MustParsePrefix("10.0.1.0/24"),
		Gateway:     netip.MustParseAddr("10.0.0.2"),
		Cost:        5,
	}
	require.NoError(t, kt.Upsert(first))
	assert.Equal(t, []state.RoutingTableEntry{first}, installed)

	fail = true
	err := kt.Upsert(state.RoutingTableEntry{
		Destination: first.Destination,
		Gateway:     netip.MustParseAddr("10.0.0.3"),
		Cost:        2,
	})
	assert.ErrorIs(t, err, state.ErrStore)
	var se *state.StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, netip.MustParseAddr("10.0.0.3"), se.Entry.Gateway)

	got, ok := kt.Get(first.Destination)
	require.True(t, ok)
	assert.Equal(t, first, got)
}
