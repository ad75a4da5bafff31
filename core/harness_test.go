package core

import (
	"context"
	"io"
	"log/slog"
	"net/netip"
	"testing"

	"github.com/encodeous/strand/mock"
	"github.com/encodeous/strand/protocol"
	"github.com/encodeous/strand/state"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type RouterHarness struct {
	*Router
	Catalog   *mock.Catalog
	Probe     *mock.Probe
	Transport *mock.Transport
	Table     *mock.FailingTable
}

// NewRouterHarness builds a router over in-memory collaborators without starting any of its tasks.
func NewRouterHarness(t *testing.T, cfg state.Config, ifaces ...state.LocalInterface) *RouterHarness {
	t.Helper()
	state.ExpandConfig(&cfg)
	h := &RouterHarness{
		Router:    &Router{},
		Catalog:   mock.NewCatalog(ifaces...),
		Probe:     mock.NewProbe(),
		Transport: mock.NewTransport(),
		Table:     mock.NewFailingTable(),
	}
	ctx, cancel := context.WithCancelCause(context.Background())
	t.Cleanup(func() { cancel(nil) })
	s := &state.State{
		Env: &state.Env{
			Config: cfg,
			External: state.External{
				Catalog:   h.Catalog,
				Probe:     h.Probe,
				Transport: h.Transport,
				Table:     h.Table,
			},
			Context: ctx,
			Cancel:  cancel,
			Log:     slog.New(slog.NewTextHandler(io.Discard, nil)),
			Group:   &errgroup.Group{},
		},
		Modules: make(map[string]state.Module),
	}
	h.setup(s)
	h.discover()
	return h
}

// Run starts the receive loop and the evaluation workers over the injected transport.
// They are stopped when the test finishes.
func (h *RouterHarness) Run(t *testing.T) {
	t.Helper()
	for range h.Config.MaxInflight {
		h.Env.Go(h.evaluateLoop)
	}
	h.Env.Go(h.receiveLoop)
	t.Cleanup(func() {
		h.Env.Cancel(context.Canceled)
		_ = h.Transport.Close()
		require.NoError(t, h.Env.Group.Wait())
	})
}

// Inject hands payloads to the receive loop as if sender had broadcast them.
func (h *RouterHarness) Inject(t *testing.T, sender string, advs ...protocol.Advertisement) {
	t.Helper()
	for _, adv := range advs {
		payload, err := protocol.Encode(adv)
		require.NoError(t, err)
		h.Transport.Inject(payload, netip.MustParseAddr(sender))
	}
}

// Advertise delivers an encoded advertisement from sender and waits for it to be processed.
func (h *RouterHarness) Advertise(t *testing.T, network string, cost uint64, sender string) RouterEvent {
	t.Helper()
	payload, err := protocol.Encode(protocol.Advertisement{Network: netip.MustParsePrefix(network), Cost: cost})
	require.NoError(t, err)
	return h.OnDatagram(payload, netip.MustParseAddr(sender))
}

func (h *RouterHarness) Route(t *testing.T, network string) state.RoutingTableEntry {
	t.Helper()
	entry, ok := h.Router.Table.Get(netip.MustParsePrefix(network))
	require.Truef(t, ok, "no route to %s", network)
	return entry
}

func entry(dst, gw string, cost uint64) state.RoutingTableEntry {
	return state.RoutingTableEntry{
		Destination: netip.MustParsePrefix(dst),
		Gateway:     netip.MustParseAddr(gw),
		Cost:        cost,
	}
}

func decodeSent(t *testing.T, sent []mock.Sent) map[string][]protocol.Advertisement {
	t.Helper()
	out := make(map[string][]protocol.Advertisement)
	for _, s := range sent {
		adv, err := protocol.FromDatagram(s.Payload, s.Iface.Address)
		require.NoError(t, err)
		out[s.Iface.Label] = append(out[s.Iface.Label], adv)
	}
	return out
}
