// Package mock provides in-memory collaborators for exercising the routing engine
// without touching the host's interfaces, sockets or routing table.
package mock

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/encodeous/strand/state"
	"github.com/encodeous/strand/sys"
)

// Catalog is a static interface catalog that can be changed between cycles.
type Catalog struct {
	mu     sync.Mutex
	ifaces []state.LocalInterface
	err    error
}

func NewCatalog(ifaces ...state.LocalInterface) *Catalog {
	return &Catalog{ifaces: ifaces}
}

func (c *Catalog) Discover() ([]state.LocalInterface, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, &state.DiscoveryError{Err: c.err}
	}
	return slices.Clone(c.ifaces), nil
}

func (c *Catalog) Set(ifaces ...state.LocalInterface) {
	c.mu.Lock()
	c.ifaces = ifaces
	c.mu.Unlock()
}

func (c *Catalog) Fail(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
}

// Iface builds a LocalInterface from an address in CIDR form, e.g. "10.0.0.1/24".
func Iface(label, cidr string) state.LocalInterface {
	p := netip.MustParsePrefix(cidr)
	network := p.Masked()
	return state.LocalInterface{
		Network:   network,
		Address:   p.Addr(),
		Broadcast: sys.BroadcastAddr(network),
		Label:     label,
	}
}

var ErrUnreachable = errors.New("host unreachable")

// Probe answers measurements from a table of per-address costs. Addresses without a
// cost are unreachable.
type Probe struct {
	mu    sync.Mutex
	costs map[netip.Addr]uint64
	holds map[netip.Addr]chan struct{}
	Calls atomic.Int64
}

func NewProbe() *Probe {
	return &Probe{
		costs: make(map[netip.Addr]uint64),
		holds: make(map[netip.Addr]chan struct{}),
	}
}

func (p *Probe) SetCost(addr netip.Addr, cost uint64) *Probe {
	p.mu.Lock()
	p.costs[addr] = cost
	p.mu.Unlock()
	return p
}

func (p *Probe) SetUnreachable(addr netip.Addr) *Probe {
	p.mu.Lock()
	delete(p.costs, addr)
	p.mu.Unlock()
	return p
}

// Hold makes measurements of addr block until release is called or their context ends.
func (p *Probe) Hold(addr netip.Addr) (release func()) {
	gate := make(chan struct{})
	p.mu.Lock()
	p.holds[addr] = gate
	p.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.holds, addr)
			p.mu.Unlock()
			close(gate)
		})
	}
}

func (p *Probe) Measure(ctx context.Context, addr netip.Addr) (uint64, error) {
	p.Calls.Add(1)
	p.mu.Lock()
	gate := p.holds[addr]
	p.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
		}
	}
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %s: %w", state.ErrProbe, addr, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	cost, ok := p.costs[addr]
	if !ok {
		return 0, fmt.Errorf("%w: %s: %w", state.ErrProbe, addr, ErrUnreachable)
	}
	return cost, nil
}

// FailingTable is a RoutingTable whose writes can be made to fail.
type FailingTable struct {
	*state.MemoryTable
	Failing atomic.Bool
}

func NewFailingTable() *FailingTable {
	return &FailingTable{MemoryTable: state.NewMemoryTable()}
}

func (t *FailingTable) Upsert(entry state.RoutingTableEntry) error {
	if t.Failing.Load() {
		return &state.StoreError{Entry: entry, Err: errors.New("kernel rejected route")}
	}
	return t.MemoryTable.Upsert(entry)
}

// Sent is a datagram recorded by a Transport.
type Sent struct {
	Iface   state.LocalInterface
	Payload []byte
}

type packet struct {
	payload []byte
	from    netip.Addr
}

// Network is a set of broadcast domains, by default one per IPv4 network. A datagram
// sent out of an interface reaches every transport attached to the same domain,
// including the sender.
type Network struct {
	mu      sync.Mutex
	domains map[netip.Prefix]int
	members map[int][]*Transport
	next    int
}

func NewNetwork() *Network {
	return &Network{
		domains: make(map[netip.Prefix]int),
		members: make(map[int][]*Transport),
	}
}

// Join places the given networks on one shared medium. It must be called before the
// networks are attached.
func (n *Network) Join(networks ...netip.Prefix) {
	n.mu.Lock()
	defer n.mu.Unlock()
	id := n.next
	n.next++
	for _, p := range networks {
		n.domains[p.Masked()] = id
	}
}

func (n *Network) domain(network netip.Prefix) int {
	id, ok := n.domains[network]
	if !ok {
		id = n.next
		n.next++
		n.domains[network] = id
	}
	return id
}

// Attach creates a transport connected to the networks of ifaces.
func (n *Network) Attach(ifaces ...state.LocalInterface) *Transport {
	t := NewTransport()
	t.net = n
	n.mu.Lock()
	for _, i := range ifaces {
		id := n.domain(i.Network)
		n.members[id] = append(n.members[id], t)
	}
	n.mu.Unlock()
	return t
}

func (n *Network) deliver(iface state.LocalInterface, payload []byte) {
	n.mu.Lock()
	peers := slices.Clone(n.members[n.domain(iface.Network)])
	n.mu.Unlock()
	for _, p := range peers {
		p.Inject(payload, iface.Address)
	}
}

// Transport records sent datagrams and replays injected ones.
type Transport struct {
	net     *Network
	mu      sync.Mutex
	sent    []Sent
	failing map[string]bool
	inbox   chan packet
	closed  chan struct{}
	once    sync.Once
}

func NewTransport() *Transport {
	return &Transport{
		failing: make(map[string]bool),
		inbox:   make(chan packet, 1024),
		closed:  make(chan struct{}),
	}
}

// FailOn makes sends out of the interface with the given label fail.
func (t *Transport) FailOn(label string) {
	t.mu.Lock()
	t.failing[label] = true
	t.mu.Unlock()
}

func (t *Transport) Send(iface state.LocalInterface, payload []byte) error {
	t.mu.Lock()
	if t.failing[iface.Label] {
		t.mu.Unlock()
		return &state.SendError{Iface: iface.Label, Dst: netip.AddrPortFrom(iface.Broadcast, 0), Err: errors.New("network is down")}
	}
	buf := slices.Clone(payload)
	t.sent = append(t.sent, Sent{Iface: iface, Payload: buf})
	t.mu.Unlock()
	if t.net != nil {
		t.net.deliver(iface, buf)
	}
	return nil
}

// Sent returns and clears the datagrams sent so far.
func (t *Transport) Sent() []Sent {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := t.sent
	t.sent = nil
	return out
}

// Inject queues a datagram for Receive. It is dropped if the transport is closed or its inbox is full.
func (t *Transport) Inject(payload []byte, from netip.Addr) {
	select {
	case <-t.closed:
		return
	default:
	}
	select {
	case t.inbox <- packet{payload: slices.Clone(payload), from: from}:
	default:
	}
}

func (t *Transport) Receive(buf []byte) (state.Datagram, error) {
	select {
	case <-t.closed:
		return state.Datagram{}, net.ErrClosed
	case p := <-t.inbox:
		n := copy(buf, p.payload)
		return state.Datagram{Len: n, Sender: p.from}, nil
	}
}

func (t *Transport) Close() error {
	t.once.Do(func() {
		close(t.closed)
	})
	return nil
}
