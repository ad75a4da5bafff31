package sys

import (
	"net/netip"
	"slices"

	"github.com/encodeous/strand/state"
	"github.com/gobwas/glob"
)

// IfAddr is a single address configured on an interface, as reported by the OS.
type IfAddr struct {
	Label     string
	Index     int
	Prefix    netip.Prefix // the address with its prefix length, e.g. 10.0.0.1/24
	Broadcast netip.Addr   // kernel-reported broadcast address, zero if none was configured
	Loopback  bool
	Up        bool
}

// InterfaceFilter selects interfaces by label.
type InterfaceFilter struct {
	include []glob.Glob
	exclude []glob.Glob
}

func NewInterfaceFilter(cfg state.InterfaceCfg) (*InterfaceFilter, error) {
	f := &InterfaceFilter{}
	for _, p := range cfg.Include {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, err
		}
		f.include = append(f.include, g)
	}
	for _, p := range cfg.Exclude {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, err
		}
		f.exclude = append(f.exclude, g)
	}
	return f, nil
}

func (f *InterfaceFilter) Allows(label string) bool {
	if f == nil {
		return true
	}
	match := func(g glob.Glob) bool { return g.Match(label) }
	if len(f.include) != 0 && !slices.ContainsFunc(f.include, match) {
		return false
	}
	return !slices.ContainsFunc(f.exclude, match)
}

// FilterAddrs turns raw interface addresses into the local catalog. Loopback,
// non-IPv4, down, and point-to-point (/31, /32) addresses are dropped since they
// have no usable broadcast domain.
func FilterAddrs(addrs []IfAddr, f *InterfaceFilter) []state.LocalInterface {
	out := make([]state.LocalInterface, 0, len(addrs))
	seen := make(map[netip.Prefix]struct{})
	for _, a := range addrs {
		if !a.Up || a.Loopback || !a.Prefix.IsValid() {
			continue
		}
		addr := a.Prefix.Addr().Unmap()
		if !addr.Is4() || addr.IsLoopback() || addr.IsUnspecified() {
			continue
		}
		bits := a.Prefix.Bits()
		if a.Prefix.Addr().Is4In6() {
			bits -= 96
		}
		if bits < 0 || bits > 30 {
			continue
		}
		if !f.Allows(a.Label) {
			continue
		}
		network := netip.PrefixFrom(addr, bits).Masked()
		if _, ok := seen[network]; ok {
			// secondary address on an already known network
			continue
		}
		seen[network] = struct{}{}

		brd := a.Broadcast.Unmap()
		if !brd.Is4() || brd.IsUnspecified() || !network.Contains(brd) {
			brd = BroadcastAddr(network)
		}
		out = append(out, state.LocalInterface{
			Network:   network,
			Address:   addr,
			Broadcast: brd,
			Label:     a.Label,
			Index:     a.Index,
		})
	}
	return out
}

// BroadcastAddr returns the directed broadcast address of an IPv4 network.
func BroadcastAddr(network netip.Prefix) netip.Addr {
	raw := network.Masked().Addr().As4()
	bits := network.Bits()
	for i := range raw {
		hostBits := min(max(8*(i+1)-bits, 0), 8)
		raw[i] |= byte(1<<hostBits - 1)
	}
	return netip.AddrFrom4(raw)
}

// InterfaceCatalog discovers the node's directly-connected IPv4 networks.
type InterfaceCatalog struct {
	filter *InterfaceFilter
	list   func() ([]IfAddr, error)
}

func NewInterfaceCatalog(cfg state.InterfaceCfg) (*InterfaceCatalog, error) {
	f, err := NewInterfaceFilter(cfg)
	if err != nil {
		return nil, err
	}
	return &InterfaceCatalog{
		filter: f,
		list:   listAddrs,
	}, nil
}

func (c *InterfaceCatalog) Discover() ([]state.LocalInterface, error) {
	addrs, err := c.list()
	if err != nil {
		return nil, &state.DiscoveryError{Err: err}
	}
	return FilterAddrs(addrs, c.filter), nil
}
