//go:build !linux

package sys

import (
	"net"
	"net/netip"
)

func listAddrs() ([]IfAddr, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	out := make([]IfAddr, 0)
	for _, itf := range ifaces {
		addrs, err := itf.Addrs()
		if err != nil {
			return nil, err
		}
		for _, address := range addrs {
			ipNet, ok := address.(*net.IPNet)
			if !ok {
				continue
			}
			ip, ok := netip.AddrFromSlice(ipNet.IP)
			if !ok {
				continue
			}
			ones, bits := ipNet.Mask.Size()
			if bits == 128 && ip.Is4In6() {
				ones -= 96
			}
			out = append(out, IfAddr{
				Label:    itf.Name,
				Index:    itf.Index,
				Prefix:   netip.PrefixFrom(ip.Unmap(), ones),
				Loopback: itf.Flags&net.FlagLoopback != 0,
				Up:       itf.Flags&net.FlagUp != 0,
			})
		}
	}
	return out, nil
}
