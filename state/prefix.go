package state

import (
	"net"
	"net/netip"
	"slices"

	"github.com/cilium/cilium/pkg/ip"
)

func toIPNets(prefixes []netip.Prefix) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(prefixes))
	for _, p := range prefixes {
		if p.IsValid() && p.Addr().Is4() {
			nets = append(nets, &net.IPNet{
				IP:   p.Masked().Addr().AsSlice(),
				Mask: net.CIDRMask(p.Bits(), 32),
			})
		}
	}
	return nets
}

func fromIPNets(nets []*net.IPNet) []netip.Prefix {
	output := make([]netip.Prefix, 0, len(nets))
	for _, n := range nets {
		if addr, ok := netip.AddrFromSlice(n.IP); ok {
			ones, _ := n.Mask.Size()
			output = append(output, netip.PrefixFrom(addr.Unmap(), ones))
		}
	}
	return output
}

// SubtractPrefix returns the IPv4 ranges covered by includes but not by excludes, as
// the fewest prefixes in address order.
func SubtractPrefix(includes, excludes []netip.Prefix) []netip.Prefix {
	result := ip.RemoveCIDRs(toIPNets(includes), toIPNets(excludes))
	ipv4, _ := ip.CoalesceCIDRs(result)
	out := fromIPNets(ipv4)
	slices.SortFunc(out, ComparePrefix)
	return out
}
