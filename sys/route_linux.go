package sys

import (
	"fmt"
	"net"
	"os"

	"github.com/encodeous/strand/state"
	"github.com/vishvananda/netlink"
)

func replaceRoute(protocol int, entry state.RoutingTableEntry) error {
	dst := &net.IPNet{
		IP:   entry.Destination.Addr().AsSlice(),
		Mask: net.CIDRMask(entry.Destination.Bits(), entry.Destination.Addr().BitLen()),
	}
	return netlink.RouteReplace(&netlink.Route{
		Dst:      dst,
		Gw:       entry.Gateway.AsSlice(),
		Protocol: netlink.RouteProtocol(protocol),
	})
}

func VerifyForwarding() error {
	forward, err := os.ReadFile("/proc/sys/net/ipv4/ip_forward")
	if err != nil {
		return err
	}
	if string(forward) != "1\n" {
		return fmt.Errorf("IP forwarding is not enabled, learned routes will not be forwarded by this node")
	}
	return nil
}
