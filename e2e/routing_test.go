//go:build e2e

package e2e

import (
	"fmt"
	"regexp"
	"testing"

	"github.com/encodeous/strand/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func learnedRoute(dst, gw string) string {
	return fmt.Sprintf("ROUTE_ADDED installed route destination=%s gateway=%s",
		regexp.QuoteMeta(dst), regexp.QuoteMeta(gw))
}

// node1 and node2 share a transit network; each also owns a private lan.
func TestTwoNodeRouteExchange(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test in short mode")
	}
	t.Parallel()

	h := NewHarness(t)
	transit := h.NewNetwork()
	lan1 := h.NewNetwork()
	lan2 := h.NewNetwork()
	node1Transit, node2Transit := transit.Host(10), transit.Host(11)

	configDir := h.SetupTestDir()
	node1Path := h.WriteConfig(configDir, "node1.yaml", SimpleConfig("node1"))
	node2Path := h.WriteConfig(configDir, "node2.yaml", SimpleConfig("node2"))

	h.StartNode("node1", node1Path,
		Attachment{Network: transit, IP: node1Transit},
		Attachment{Network: lan1, IP: lan1.Host(10)},
	)
	h.StartNode("node2", node2Path,
		Attachment{Network: transit, IP: node2Transit},
		Attachment{Network: lan2, IP: lan2.Host(10)},
	)

	t.Log("Waiting for convergence...")
	h.WaitForMatch("node1", learnedRoute(lan2.Subnet, node2Transit))
	h.WaitForMatch("node2", learnedRoute(lan1.Subnet, node1Transit))

	// the route reached the kernel, tagged with strand's protocol
	stdout, _, err := h.Exec("node1", []string{"ip", "route", "show", lan2.Subnet, "proto", fmt.Sprint(state.DefaultRouteProtocol)})
	if err != nil {
		h.PrintLogs("node1")
		h.PrintLogs("node2")
	}
	require.NoError(t, err)
	assert.Contains(t, stdout, "via "+node2Transit)

	stdout, _, err = h.Exec("node2", []string{"strand", "inspect"})
	require.NoError(t, err)
	assert.Contains(t, stdout, fmt.Sprintf(" - %s via %s cost ", lan1.Subnet, node1Transit))

	// own networks are never learned back
	assert.NotContains(t, h.LogManager.History("node1"), "destination="+lan1.Subnet+" ")
	assert.NotContains(t, h.LogManager.History("node2"), "destination="+lan2.Subnet+" ")

	// the lan hosts can now reach each other through the transit network
	_, _, err = h.Exec("node1", []string{"ping", "-c", "1", "-W", "2", "-I", lan1.Host(10), lan2.Host(10)})
	assert.NoError(t, err)
}
