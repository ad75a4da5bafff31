package state

import (
	"context"
	"fmt"
	"net/netip"
	"slices"
	"strings"
)

// LocalInterface is a directly-connected IPv4 network on this node.
type LocalInterface struct {
	Network   netip.Prefix // masked, e.g. 10.0.0.0/24
	Address   netip.Addr   // our address on the network, e.g. 10.0.0.1
	Broadcast netip.Addr   // directed broadcast address, e.g. 10.0.0.255
	Label     string       // interface name
	Index     int          // kernel interface index, 0 if unknown
}

func (l LocalInterface) String() string {
	return fmt.Sprintf("%s (%s, brd %s)", l.Label, netip.PrefixFrom(l.Address, l.Network.Bits()), l.Broadcast)
}

// RoutingTableEntry is an installed route, unique by Destination.
type RoutingTableEntry struct {
	Destination netip.Prefix
	Gateway     netip.Addr
	Cost        uint64
}

func (e RoutingTableEntry) String() string {
	return fmt.Sprintf("%s via %s cost %d", e.Destination, e.Gateway, e.Cost)
}

// NeighborSet holds the networks this node is directly attached to. It is immutable once built.
type NeighborSet struct {
	networks map[netip.Prefix]struct{}
	addrs    map[netip.Addr]struct{}
}

func NewNeighborSet(ifaces []LocalInterface) *NeighborSet {
	n := &NeighborSet{
		networks: make(map[netip.Prefix]struct{}, len(ifaces)),
		addrs:    make(map[netip.Addr]struct{}, len(ifaces)),
	}
	for _, i := range ifaces {
		n.networks[i.Network.Masked()] = struct{}{}
		n.addrs[i.Address] = struct{}{}
	}
	return n
}

// Contains reports whether network is one of our directly-connected networks.
func (n *NeighborSet) Contains(network netip.Prefix) bool {
	if n == nil {
		return false
	}
	_, ok := n.networks[network.Masked()]
	return ok
}

// IsLocalAddr reports whether addr is assigned to one of our interfaces.
func (n *NeighborSet) IsLocalAddr(addr netip.Addr) bool {
	if n == nil {
		return false
	}
	_, ok := n.addrs[addr.Unmap()]
	return ok
}

func (n *NeighborSet) Len() int {
	if n == nil {
		return 0
	}
	return len(n.networks)
}

// Networks returns the directly-connected networks in address order.
func (n *NeighborSet) Networks() []netip.Prefix {
	if n == nil {
		return nil
	}
	out := make([]netip.Prefix, 0, len(n.networks))
	for p := range n.networks {
		out = append(out, p)
	}
	slices.SortFunc(out, ComparePrefix)
	return out
}

func (n *NeighborSet) String() string {
	nets := n.Networks()
	out := make([]string, len(nets))
	for i, p := range nets {
		out[i] = p.String()
	}
	return "[" + strings.Join(out, " ") + "]"
}

// Catalog enumerates the node's directly-connected networks.
type Catalog interface {
	Discover() ([]LocalInterface, error)
}

// Probe measures the round-trip cost (milliseconds) to addr. Implementations must be
// safe for concurrent use and must return within a bounded time.
type Probe interface {
	Measure(ctx context.Context, addr netip.Addr) (uint64, error)
}

// Datagram describes a received payload.
type Datagram struct {
	Len     int
	Sender  netip.Addr
	IfIndex int // inbound interface, 0 if unknown
}

// Transport carries advertisement datagrams over the broadcast domain.
type Transport interface {
	// Send broadcasts payload out of iface.
	Send(iface LocalInterface, payload []byte) error
	// Receive blocks until a datagram is read into buf. It returns net.ErrClosed after Close.
	Receive(buf []byte) (Datagram, error)
	Close() error
}

// RoutingTable is the store of installed routes. Implementations must be safe for
// concurrent use; writes are atomic per destination.
type RoutingTable interface {
	Get(network netip.Prefix) (RoutingTableEntry, bool)
	Upsert(entry RoutingTableEntry) error
	List() []RoutingTableEntry
}
