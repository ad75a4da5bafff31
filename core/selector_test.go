package core

import (
	"fmt"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	"github.com/encodeous/strand/mock"
	"github.com/encodeous/strand/protocol"
	"github.com/encodeous/strand/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func adv(network string, cost uint64) protocol.Advertisement {
	return protocol.Advertisement{Network: netip.MustParsePrefix(network), Cost: cost}
}

func TestReceiveLoopEvaluatesDatagrams(t *testing.T) {
	h := NewRouterHarness(t, state.Config{}, mock.Iface("eth0", "192.168.1.1/24"))
	h.Probe.SetCost(netip.MustParseAddr("192.168.1.2"), 2)
	h.Run(t)

	h.Transport.Inject([]byte{0xff}, netip.MustParseAddr("192.168.1.2"))
	h.Inject(t, "192.168.1.2", adv("10.4.0.0/16", 1))

	require.Eventually(t, func() bool {
		_, ok := h.Table.Get(netip.MustParsePrefix("10.4.0.0/16"))
		return ok
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, entry("10.4.0.0/16", "192.168.1.2", 3), h.Route(t, "10.4.0.0/16"))
}

func TestBurstLargerThanWorkerPoolIsInstalled(t *testing.T) {
	h := NewRouterHarness(t, state.Config{MaxInflight: 4}, mock.Iface("eth0", "192.168.1.1/24"))
	h.Probe.SetCost(netip.MustParseAddr("192.168.1.2"), 1)
	h.Run(t)

	const routes = 200
	// the neighbour re-advertises its whole table every cycle
	for range 3 {
		for i := range routes {
			h.Inject(t, "192.168.1.2", adv(fmt.Sprintf("10.%d.0.0/16", i), 0))
		}
	}
	require.Eventually(t, func() bool {
		return h.Table.Len() == routes
	}, 10*time.Second, 5*time.Millisecond, "learned %d of %d routes", h.Table.Len(), routes)
	for i := range routes {
		dst := fmt.Sprintf("10.%d.0.0/16", i)
		assert.Equal(t, entry(dst, "192.168.1.2", 1), h.Route(t, dst))
	}
}

func TestSlowNeighbourDoesNotStallOthers(t *testing.T) {
	h := NewRouterHarness(t, state.Config{MaxInflight: 2}, mock.Iface("eth0", "192.168.1.1/24"))
	slow := netip.MustParseAddr("192.168.1.2")
	h.Probe.
		SetCost(slow, 1).
		SetCost(netip.MustParseAddr("192.168.1.3"), 1)
	release := h.Probe.Hold(slow)
	defer release()
	h.Run(t)

	for i := range 100 {
		h.Inject(t, "192.168.1.2", adv(fmt.Sprintf("10.1.%d.0/24", i), 0))
	}
	for i := range 20 {
		h.Inject(t, "192.168.1.3", adv(fmt.Sprintf("10.2.%d.0/24", i), 0))
	}

	require.Eventually(t, func() bool {
		return h.Table.Len() == 20
	}, 5*time.Second, 5*time.Millisecond, "the reachable neighbour's routes were not installed")
	for _, e := range h.Table.List() {
		assert.Equal(t, netip.MustParseAddr("192.168.1.3"), e.Gateway)
	}

	release()
	require.Eventually(t, func() bool {
		return h.Table.Len() == 120
	}, 5*time.Second, 5*time.Millisecond)
}

func TestUnreachableNeighbourDoesNotStarveOthers(t *testing.T) {
	h := NewRouterHarness(t, state.Config{MaxInflight: 2}, mock.Iface("eth0", "192.168.1.1/24"))
	h.Probe.SetCost(netip.MustParseAddr("192.168.1.3"), 1)
	h.Run(t)

	for i := range 100 {
		h.Inject(t, "192.168.1.2", adv(fmt.Sprintf("10.1.%d.0/24", i), 0))
		if i%5 == 0 {
			h.Inject(t, "192.168.1.3", adv(fmt.Sprintf("10.2.%d.0/24", i), 0))
		}
	}
	require.Eventually(t, func() bool {
		return h.Table.Len() == 20
	}, 5*time.Second, 5*time.Millisecond)
	for _, e := range h.Table.List() {
		assert.Equal(t, netip.MustParseAddr("192.168.1.3"), e.Gateway)
	}
}

// overlapTable records how many route selections were reading the table at once.
type overlapTable struct {
	*state.MemoryTable
	active, peak atomic.Int32
}

func (o *overlapTable) Get(network netip.Prefix) (state.RoutingTableEntry, bool) {
	n := o.active.Add(1)
	for {
		p := o.peak.Load()
		if n <= p || o.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(200 * time.Microsecond)
	defer o.active.Add(-1)
	return o.MemoryTable.Get(network)
}

func TestSameDestinationIsSelectedSerially(t *testing.T) {
	h := NewRouterHarness(t, state.Config{MaxInflight: 8}, mock.Iface("eth0", "192.168.1.1/24"))
	table := &overlapTable{MemoryTable: state.NewMemoryTable()}
	h.Router.Table = table

	const senders = 16
	for i := range senders {
		h.Probe.SetCost(netip.AddrFrom4([4]byte{192, 168, 1, byte(10 + i)}), 1)
	}
	h.Run(t)
	for range 5 {
		for i := range senders {
			// later senders offer cheaper routes, the cheapest is 192.168.1.25 at 1 + 1
			h.Inject(t, fmt.Sprintf("192.168.1.%d", 10+i), adv("172.16.0.0/12", uint64(senders-i)))
		}
	}

	want := entry("172.16.0.0/12", "192.168.1.25", 2)
	require.Eventually(t, func() bool {
		got, ok := table.MemoryTable.Get(netip.MustParsePrefix("172.16.0.0/12"))
		return ok && got == want
	}, 10*time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 1, table.peak.Load(), "selections for one destination overlapped")
}
