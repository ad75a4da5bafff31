package sys

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/vishvananda/netlink"
)

func listAddrs() ([]IfAddr, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	out := make([]IfAddr, 0)
	for _, link := range links {
		attrs := link.Attrs()
		addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
		if err != nil {
			return nil, fmt.Errorf("failed to list addresses of %s: %w", attrs.Name, err)
		}
		for _, a := range addrs {
			if a.IPNet == nil {
				continue
			}
			ip, ok := netip.AddrFromSlice(a.IP)
			if !ok {
				continue
			}
			ones, _ := a.Mask.Size()
			brd, _ := netip.AddrFromSlice(a.Broadcast)
			label := a.Label
			if label == "" {
				label = attrs.Name
			}
			out = append(out, IfAddr{
				Label:     label,
				Index:     attrs.Index,
				Prefix:    netip.PrefixFrom(ip.Unmap(), ones),
				Broadcast: brd.Unmap(),
				Loopback:  attrs.Flags&net.FlagLoopback != 0,
				Up:        attrs.Flags&net.FlagUp != 0,
			})
		}
	}
	return out, nil
}
