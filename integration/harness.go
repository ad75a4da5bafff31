//go:build integration

package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/encodeous/strand/core"
	"github.com/encodeous/strand/mock"
	"github.com/encodeous/strand/state"
	"github.com/stretchr/testify/require"
)

type VirtualNode struct {
	Name      string
	Ifaces    []state.LocalInterface
	Catalog   *mock.Catalog
	Probe     *mock.Probe
	Transport *mock.Transport
	Table     *state.MemoryTable
	Config    state.Config
}

// Addr returns the node's address on network.
func (n *VirtualNode) Addr(network string) netip.Addr {
	p := netip.MustParsePrefix(network).Masked()
	for _, i := range n.Ifaces {
		if i.Network == p {
			return i.Address
		}
	}
	panic(fmt.Sprintf("%s is not attached to %s", n.Name, network))
}

// VirtualHarness runs several strand daemons over an in-memory broadcast network.
type VirtualHarness struct {
	Context  context.Context
	Cancel   context.CancelCauseFunc
	Net      *mock.Network
	Nodes    []*VirtualNode
	Interval time.Duration
	wg       sync.WaitGroup
	errs     chan error
}

func NewVirtualHarness() *VirtualHarness {
	return &VirtualHarness{
		Net:      mock.NewNetwork(),
		Interval: 50 * time.Millisecond,
	}
}

// NewNode adds a node owning one interface per address, given in CIDR form.
func (v *VirtualHarness) NewNode(name string, cidrs ...string) *VirtualNode {
	n := &VirtualNode{
		Name:  name,
		Probe: mock.NewProbe(),
		Table: state.NewMemoryTable(),
	}
	for idx, cidr := range cidrs {
		n.Ifaces = append(n.Ifaces, mock.Iface(fmt.Sprintf("eth%d", idx), cidr))
	}
	n.Catalog = mock.NewCatalog(n.Ifaces...)
	disabled := ""
	n.Config = state.Config{
		Name:          name,
		ControlSocket: &disabled,
	}
	v.Nodes = append(v.Nodes, n)
	return n
}

// Link sets the measured cost between a and b in both directions over their shared network.
func (v *VirtualHarness) Link(a, b *VirtualNode, network string, cost uint64) {
	a.Probe.SetCost(b.Addr(network), cost)
	b.Probe.SetCost(a.Addr(network), cost)
}

func (v *VirtualHarness) Start(t *testing.T) {
	t.Helper()
	v.Context, v.Cancel = context.WithCancelCause(context.Background())
	v.errs = make(chan error, len(v.Nodes))
	for _, n := range v.Nodes {
		n.Transport = v.Net.Attach(n.Ifaces...)
	}
	for _, n := range v.Nodes {
		cfg := n.Config
		cfg.AdvertiseInterval = v.Interval
		state.ExpandConfig(&cfg)
		require.NoError(t, state.ConfigValidator(&cfg))

		logger, err := core.NewLogger(cfg, slog.LevelWarn)
		require.NoError(t, err)
		ext := state.External{
			Catalog:   n.Catalog,
			Probe:     n.Probe,
			Transport: n.Transport,
			Table:     n.Table,
		}
		v.wg.Add(1)
		go func() {
			defer v.wg.Done()
			err := core.StartWithLogger(v.Context, cfg, logger, ext, nil)
			if err != nil {
				v.errs <- fmt.Errorf("%s: %w", cfg.Name, err)
			}
		}()
	}
}

// Stop shuts every node down and waits for them to exit.
func (v *VirtualHarness) Stop(t *testing.T) {
	t.Helper()
	v.Cancel(errors.New("test finished"))
	done := make(chan struct{})
	go func() {
		v.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("nodes did not shut down")
	}
	close(v.errs)
	for err := range v.errs {
		t.Error(err)
	}
}

// WaitForRoute waits until node holds exactly the given route.
func (v *VirtualHarness) WaitForRoute(t *testing.T, node *VirtualNode, want state.RoutingTableEntry) {
	t.Helper()
	require.Eventuallyf(t, func() bool {
		got, ok := node.Table.Get(want.Destination)
		return ok && got == want
	}, 10*time.Second, 10*time.Millisecond, "%s never installed %s, table: %v", node.Name, want, node.Table.List())
}

func route(dst string, gw netip.Addr, cost uint64) state.RoutingTableEntry {
	return state.RoutingTableEntry{
		Destination: netip.MustParsePrefix(dst),
		Gateway:     gw,
		Cost:        cost,
	}
}
