package core

import (
	"bufio"
	"bytes"
	"net/netip"
	"reflect"
	"strings"
	"testing"

	"github.com/encodeous/strand/mock"
	"github.com/encodeous/strand/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspect(t *testing.T) {
	h := NewRouterHarness(t, state.Config{},
		mock.Iface("eth1", "192.168.1.1/24"),
		mock.Iface("eth0", "10.0.0.1/24"),
	)
	assert.Equal(t, "Neighbours:\n - 10.0.0.0/24\n - 192.168.1.0/24\n\nRoute Table:\n (none)\n", Inspect(h.Router))

	h.Probe.SetCost(netip.MustParseAddr("192.168.1.2"), 5)
	require.Equal(t, RouteAdded, h.Advertise(t, "10.0.1.0/24", 0, "192.168.1.2"))
	assert.Contains(t, Inspect(h.Router), "Route Table:\n - 10.0.1.0/24 via 192.168.1.2 cost 5\n")
}

func ipcRoundTrip(t *testing.T, s *state.State, cmd string) string {
	t.Helper()
	out := &bytes.Buffer{}
	rw := bufio.NewReadWriter(bufio.NewReader(strings.NewReader(cmd)), bufio.NewWriter(out))
	require.NoError(t, HandleIPC(s, rw))
	require.NoError(t, rw.Flush())
	res := out.String()
	require.True(t, strings.HasSuffix(res, "\x00"), "reply must be NUL terminated")
	return strings.TrimSuffix(res, "\x00")
}

func TestHandleIPC(t *testing.T) {
	h := NewRouterHarness(t, state.Config{}, mock.Iface("eth0", "10.0.0.1/24"))
	h.State.Modules[reflect.TypeOf(h.Router).String()] = h.Router

	assert.Equal(t, Inspect(h.Router), ipcRoundTrip(t, h.State, "inspect\n"))
	assert.Equal(t, "error: unknown command flush\n", ipcRoundTrip(t, h.State, "flush\n"))
}
