package core

import (
	"errors"
	"math"
	"net/netip"
	"testing"

	"github.com/encodeous/strand/mock"
	"github.com/encodeous/strand/protocol"
	"github.com/encodeous/strand/state"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLearnRouteFromNeighbour(t *testing.T) {
	// A owns 10.0.0.0/24 and shares 192.168.1.0/24 with B, which owns 10.0.1.0/24
	a := NewRouterHarness(t, state.Config{},
		mock.Iface("lan", "10.0.0.1/24"),
		mock.Iface("link", "192.168.1.1/24"),
	)
	a.Probe.SetCost(netip.MustParseAddr("192.168.1.2"), 5)

	assert.Equal(t, RouteAdded, a.Advertise(t, "10.0.1.0/24", 0, "192.168.1.2"))
	assert.Equal(t, entry("10.0.1.0/24", "192.168.1.2", 5), a.Route(t, "10.0.1.0/24"))
}

func TestCheaperRouteSupersedes(t *testing.T) {
	h := NewRouterHarness(t, state.Config{}, mock.Iface("eth0", "192.168.1.1/24"))
	h.Probe.
		SetCost(netip.MustParseAddr("192.168.1.2"), 5).
		SetCost(netip.MustParseAddr("192.168.1.3"), 3)

	require.Equal(t, RouteAdded, h.Advertise(t, "10.0.1.0/24", 0, "192.168.1.2"))
	assert.Equal(t, RouteImproved, h.Advertise(t, "10.0.1.0/24", 0, "192.168.1.3"))
	assert.Equal(t, entry("10.0.1.0/24", "192.168.1.3", 3), h.Route(t, "10.0.1.0/24"))

	// a later, more expensive offer changes nothing
	h.Probe.SetCost(netip.MustParseAddr("192.168.1.2"), 8)
	assert.Equal(t, RouteKept, h.Advertise(t, "10.0.1.0/24", 0, "192.168.1.2"))
	assert.Equal(t, entry("10.0.1.0/24", "192.168.1.3", 3), h.Route(t, "10.0.1.0/24"))
}

func TestEqualCostKeepsIncumbent(t *testing.T) {
	h := NewRouterHarness(t, state.Config{}, mock.Iface("eth0", "192.168.1.1/24"))
	h.Probe.
		SetCost(netip.MustParseAddr("192.168.1.2"), 4).
		SetCost(netip.MustParseAddr("192.168.1.3"), 4)

	require.Equal(t, RouteAdded, h.Advertise(t, "10.9.0.0/16", 2, "192.168.1.2"))
	assert.Equal(t, RouteKept, h.Advertise(t, "10.9.0.0/16", 2, "192.168.1.3"))
	assert.Equal(t, entry("10.9.0.0/16", "192.168.1.2", 6), h.Route(t, "10.9.0.0/16"))
}

func TestCostIsMonotoneUnderAnyOrder(t *testing.T) {
	offers := []struct {
		gw   string
		cost uint64
	}{
		{"192.168.1.2", 9}, {"192.168.1.3", 4}, {"192.168.1.4", 7}, {"192.168.1.5", 2}, {"192.168.1.6", 3},
	}
	orders := [][]int{{0, 1, 2, 3, 4}, {4, 3, 2, 1, 0}, {2, 0, 4, 1, 3}}
	for _, order := range orders {
		h := NewRouterHarness(t, state.Config{}, mock.Iface("eth0", "192.168.1.1/24"))
		for _, o := range offers {
			h.Probe.SetCost(netip.MustParseAddr(o.gw), 1)
		}
		last := state.INF
		for _, i := range order {
			h.Advertise(t, "172.16.0.0/12", offers[i].cost, offers[i].gw)
			cur := h.Route(t, "172.16.0.0/12").Cost
			assert.LessOrEqual(t, cur, last)
			last = cur
		}
		assert.Equal(t, entry("172.16.0.0/12", "192.168.1.5", 3), h.Route(t, "172.16.0.0/12"), "order %v", order)
	}
}

func TestIgnoreNeighbourNetwork(t *testing.T) {
	h := NewRouterHarness(t, state.Config{},
		mock.Iface("eth0", "192.168.1.1/24"),
		mock.Iface("eth1", "10.0.0.1/24"),
	)
	h.Probe.SetCost(netip.MustParseAddr("192.168.1.2"), 1)

	assert.Equal(t, NeighbourNetwork, h.Advertise(t, "10.0.0.0/24", 0, "192.168.1.2"))
	assert.Empty(t, h.Table.List())
	assert.Zero(t, h.Probe.Calls.Load(), "neighbour networks must be dropped before probing")
}

func TestUnreachableGateway(t *testing.T) {
	h := NewRouterHarness(t, state.Config{}, mock.Iface("eth0", "192.168.1.1/24"))

	assert.Equal(t, UnreachableGateway, h.Advertise(t, "10.0.1.0/24", 0, "192.168.1.9"))
	assert.Empty(t, h.Table.List())
	assert.EqualValues(t, 1, h.Probe.Calls.Load())
}

func TestOwnAdvertisementIgnored(t *testing.T) {
	h := NewRouterHarness(t, state.Config{},
		mock.Iface("eth0", "192.168.1.1/24"),
		mock.Iface("eth1", "10.0.0.1/24"),
	)
	h.Probe.SetCost(netip.MustParseAddr("192.168.1.1"), 0)

	// our own broadcast of eth1's network, looped back on eth0
	assert.Equal(t, OwnAdvertisement, h.Advertise(t, "10.0.0.0/24", 0, "192.168.1.1"))
	assert.Equal(t, OwnAdvertisement, h.Advertise(t, "10.7.0.0/24", 1, "192.168.1.1"))
	assert.Empty(t, h.Table.List())
}

func TestMalformedDatagram(t *testing.T) {
	h := NewRouterHarness(t, state.Config{}, mock.Iface("eth0", "192.168.1.1/24"))
	sender := netip.MustParseAddr("192.168.1.2")
	h.Probe.SetCost(sender, 1)

	assert.Equal(t, MalformedAdvertisement, h.OnDatagram([]byte{1, 2, 3}, sender))
	bad := make([]byte, protocol.Size)
	bad[12] = 33
	assert.Equal(t, MalformedAdvertisement, h.OnDatagram(bad, sender))
	assert.Empty(t, h.Table.List())
	assert.Zero(t, h.Probe.Calls.Load())
}

func TestStoreFailureLeavesTableUnchanged(t *testing.T) {
	h := NewRouterHarness(t, state.Config{}, mock.Iface("eth0", "192.168.1.1/24"))
	h.Probe.
		SetCost(netip.MustParseAddr("192.168.1.2"), 5).
		SetCost(netip.MustParseAddr("192.168.1.3"), 1)

	require.Equal(t, RouteAdded, h.Advertise(t, "10.0.1.0/24", 0, "192.168.1.2"))
	h.Table.Failing.Store(true)
	assert.Equal(t, StoreFailed, h.Advertise(t, "10.0.1.0/24", 0, "192.168.1.3"))
	assert.Equal(t, entry("10.0.1.0/24", "192.168.1.2", 5), h.Route(t, "10.0.1.0/24"))

	// the failure is not sticky, the next offer is evaluated afresh
	h.Table.Failing.Store(false)
	assert.Equal(t, RouteImproved, h.Advertise(t, "10.0.1.0/24", 0, "192.168.1.3"))
}

func TestSaturatedCostDropped(t *testing.T) {
	h := NewRouterHarness(t, state.Config{}, mock.Iface("eth0", "192.168.1.1/24"))
	h.Probe.SetCost(netip.MustParseAddr("192.168.1.2"), 10)

	assert.Equal(t, UnreachableGateway, h.Advertise(t, "10.0.1.0/24", math.MaxUint64-5, "192.168.1.2"))
	assert.Empty(t, h.Table.List())
}

func TestMaxCostWithoutOverflowIsInstalled(t *testing.T) {
	h := NewRouterHarness(t, state.Config{}, mock.Iface("eth0", "192.168.1.1/24"))
	h.Probe.
		SetCost(netip.MustParseAddr("192.168.1.2"), 0).
		SetCost(netip.MustParseAddr("192.168.1.3"), 5)

	assert.Equal(t, RouteAdded, h.Advertise(t, "10.0.1.0/24", math.MaxUint64, "192.168.1.2"))
	assert.Equal(t, entry("10.0.1.0/24", "192.168.1.2", math.MaxUint64), h.Route(t, "10.0.1.0/24"))
	assert.Equal(t, RouteImproved, h.Advertise(t, "10.0.1.0/24", math.MaxUint64-10, "192.168.1.3"))
	assert.Equal(t, entry("10.0.1.0/24", "192.168.1.3", math.MaxUint64-5), h.Route(t, "10.0.1.0/24"))
}

func TestRelax(t *testing.T) {
	table := state.NewMemoryTable()
	adv := protocol.Advertisement{
		Network: netip.MustParsePrefix("10.1.2.3/16"),
		Cost:    7,
		Gateway: netip.MustParseAddr("192.168.0.2"),
	}

	event, got, err := Relax(table, adv, 3)
	require.NoError(t, err)
	assert.Equal(t, RouteAdded, event)
	assert.Equal(t, entry("10.1.0.0/16", "192.168.0.2", 10), got)

	event, got, err = Relax(table, adv, 3)
	require.NoError(t, err)
	assert.Equal(t, RouteKept, event)
	assert.Equal(t, entry("10.1.0.0/16", "192.168.0.2", 10), got)

	adv.Gateway = netip.MustParseAddr("192.168.0.3")
	event, got, err = Relax(table, adv, 1)
	require.NoError(t, err)
	assert.Equal(t, RouteImproved, event)
	assert.Equal(t, entry("10.1.0.0/16", "192.168.0.3", 8), got)

	event, _, err = Relax(table, adv, state.INF)
	require.NoError(t, err)
	assert.Equal(t, UnreachableGateway, event)
}

type brokenTable struct{ *state.MemoryTable }

func (brokenTable) Upsert(state.RoutingTableEntry) error { return errors.New("disk full") }

func TestRelaxWrapsStoreErrors(t *testing.T) {
	adv := protocol.Advertisement{Network: netip.MustParsePrefix("10.1.0.0/16"), Gateway: netip.MustParseAddr("192.168.0.2")}
	event, _, err := Relax(brokenTable{state.NewMemoryTable()}, adv, 1)
	assert.Equal(t, StoreFailed, event)
	assert.ErrorIs(t, err, state.ErrStore)
	var se *state.StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, entry("10.1.0.0/16", "192.168.0.2", 1), se.Entry)
}

func TestTickAdvertisesLocalNetworksAndRoutes(t *testing.T) {
	h := NewRouterHarness(t, state.Config{},
		mock.Iface("eth0", "192.168.1.1/24"),
		mock.Iface("eth1", "10.0.0.1/24"),
	)
	h.Probe.SetCost(netip.MustParseAddr("192.168.1.2"), 5)
	require.Equal(t, RouteAdded, h.Advertise(t, "10.0.1.0/24", 0, "192.168.1.2"))

	h.Tick()
	got := decodeSent(t, h.Transport.Sent())

	want := map[string][]protocol.Advertisement{
		"eth0": {
			{Network: netip.MustParsePrefix("192.168.1.0/24"), Cost: 0, Gateway: netip.MustParseAddr("192.168.1.1")},
			{Network: netip.MustParsePrefix("10.0.0.0/24"), Cost: 0, Gateway: netip.MustParseAddr("192.168.1.1")},
			{Network: netip.MustParsePrefix("10.0.1.0/24"), Cost: 5, Gateway: netip.MustParseAddr("192.168.1.1")},
		},
		"eth1": {
			{Network: netip.MustParsePrefix("192.168.1.0/24"), Cost: 0, Gateway: netip.MustParseAddr("10.0.0.1")},
			{Network: netip.MustParsePrefix("10.0.0.0/24"), Cost: 0, Gateway: netip.MustParseAddr("10.0.0.1")},
			{Network: netip.MustParsePrefix("10.0.1.0/24"), Cost: 5, Gateway: netip.MustParseAddr("10.0.0.1")},
		},
	}
	if diff := cmp.Diff(want, got, cmp.Comparer(func(a, b netip.Addr) bool { return a == b }), cmp.Comparer(func(a, b netip.Prefix) bool { return a == b })); diff != "" {
		t.Errorf("unexpected advertisements (-want +got):\n%s", diff)
	}
}

func TestTickGatewayFanout(t *testing.T) {
	h := NewRouterHarness(t, state.Config{Fanout: state.FanoutGateway},
		mock.Iface("eth0", "192.168.1.1/24"),
		mock.Iface("eth1", "10.0.0.1/24"),
	)
	h.Probe.SetCost(netip.MustParseAddr("192.168.1.2"), 5)
	require.Equal(t, RouteAdded, h.Advertise(t, "10.0.1.0/24", 0, "192.168.1.2"))

	h.Tick()
	got := decodeSent(t, h.Transport.Sent())
	assert.Len(t, got["eth0"], 2)
	require.Len(t, got["eth1"], 1)
	assert.Equal(t, netip.MustParsePrefix("10.0.0.0/24"), got["eth1"][0].Network)
}

func TestTickContinuesAfterSendFailure(t *testing.T) {
	h := NewRouterHarness(t, state.Config{},
		mock.Iface("eth0", "192.168.1.1/24"),
		mock.Iface("eth1", "10.0.0.1/24"),
		mock.Iface("eth2", "10.0.2.1/24"),
	)
	h.Transport.FailOn("eth1")

	h.Tick()
	got := decodeSent(t, h.Transport.Sent())
	assert.Len(t, got["eth0"], 3)
	assert.Empty(t, got["eth1"])
	assert.Len(t, got["eth2"], 3)
}

func TestTickExcludedNetworks(t *testing.T) {
	h := NewRouterHarness(t, state.Config{
		ExcludeNetworks: []netip.Prefix{
			netip.MustParsePrefix("10.0.0.128/25"),
			netip.MustParsePrefix("172.16.0.0/12"),
		},
	},
		mock.Iface("eth0", "192.168.1.1/24"),
		mock.Iface("eth1", "10.0.0.1/24"),
		mock.Iface("eth2", "172.16.4.1/24"),
	)

	h.Tick()
	got := decodeSent(t, h.Transport.Sent())
	networks := func(advs []protocol.Advertisement) []string {
		out := make([]string, 0, len(advs))
		for _, a := range advs {
			out = append(out, a.Network.String())
		}
		return out
	}
	assert.Equal(t, []string{"192.168.1.0/24", "10.0.0.0/25"}, networks(got["eth0"]))
	// the remainder is kept off the network it was cut from
	assert.Equal(t, []string{"192.168.1.0/24"}, networks(got["eth1"]))
	assert.Equal(t, []string{"192.168.1.0/24", "10.0.0.0/25"}, networks(got["eth2"]))
}

func TestTickRediscoversInterfaces(t *testing.T) {
	h := NewRouterHarness(t, state.Config{}, mock.Iface("eth0", "192.168.1.1/24"))
	h.Probe.SetCost(netip.MustParseAddr("192.168.1.2"), 1)

	h.Catalog.Set(mock.Iface("eth0", "192.168.1.1/24"), mock.Iface("eth1", "10.0.1.1/24"))
	h.Tick()
	assert.True(t, h.Neighbours().Contains(netip.MustParsePrefix("10.0.1.0/24")))
	assert.Equal(t, NeighbourNetwork, h.Advertise(t, "10.0.1.0/24", 0, "192.168.1.2"))

	h.Transport.Sent()
	h.Catalog.Fail(errors.New("netlink: permission denied"))
	h.Tick()
	assert.Zero(t, h.Neighbours().Len())
	assert.Empty(t, h.Transport.Sent())
}

func TestFanout(t *testing.T) {
	ifaces := []state.LocalInterface{
		mock.Iface("eth0", "192.168.1.1/24"),
		mock.Iface("eth1", "10.0.0.1/24"),
	}
	e := entry("10.5.0.0/16", "10.0.0.9", 3)
	assert.Equal(t, ifaces, Fanout(state.FanoutAll, e, ifaces))
	assert.Equal(t, ifaces[1:], Fanout(state.FanoutGateway, e, ifaces))
	assert.Empty(t, Fanout(state.FanoutGateway, entry("10.5.0.0/16", "172.16.0.1", 3), ifaces))
}

func TestRouterEventString(t *testing.T) {
	assert.Equal(t, "ROUTE_ADDED", RouteAdded.String())
	assert.Equal(t, "STORE_FAILED", StoreFailed.String())
	assert.Equal(t, "UNKNOWN", RouterEvent(42).String())
	assert.True(t, RouteImproved.Changed())
	assert.False(t, RouteKept.Changed())
}
