package core

import (
	"net/netip"
	"time"

	"github.com/encodeous/strand/perf"
	"github.com/encodeous/strand/protocol"
	"github.com/encodeous/strand/state"
)

// Tick runs one advertisement cycle: rediscover local networks, announce them at
// cost 0, then re-announce every installed route.
func (r *Router) Tick() {
	start := time.Now()
	ifaces := r.discover()
	routes := r.Table.List()
	buf := make([]byte, protocol.Size)

	sent := 0
	for _, out := range ifaces {
		for _, network := range r.localAdverts(ifaces, out) {
			if r.send(buf, out, protocol.FromLocalNetwork(network)) {
				sent++
			}
		}
	}
	for _, entry := range routes {
		for _, itf := range Fanout(r.Config.Fanout, entry, ifaces) {
			if r.send(buf, itf, protocol.FromRoute(entry)) {
				sent++
			}
		}
	}
	r.probe.DeleteExpired()

	elapsed := time.Since(start)
	perf.TickDuration.Add(float64(elapsed.Microseconds()))
	r.Env.Log.Debug("advertised routes", "interfaces", len(ifaces), "routes", len(routes), "sent", sent, "elapsed", elapsed)
	if state.DBG_log_route_table {
		for _, entry := range routes {
			r.Env.Log.Info("route", "destination", entry.Destination, "gateway", entry.Gateway, "cost", entry.Cost)
		}
	}
}

// localAdverts returns the local networks announced at cost 0 out of out. A network goes
// out its own interface, and out the others too unless the fanout policy is gateway.
// When exclusions cut into a network, only the remainder is announced and never on its
// own interface, so hosts there keep their connected route.
func (r *Router) localAdverts(ifaces []state.LocalInterface, out state.LocalInterface) []netip.Prefix {
	var nets []netip.Prefix
	for _, itf := range ifaces {
		own := itf.Network == out.Network
		if !own && r.Config.Fanout == state.FanoutGateway {
			continue
		}
		parts := r.Config.AdvertisedNetworks(itf.Network)
		switch {
		case len(parts) == 1 && parts[0] == itf.Network:
			nets = append(nets, itf.Network)
		case !own:
			nets = append(nets, parts...)
		}
	}
	return nets
}

// Fanout returns the interfaces a learned route is re-advertised on.
func Fanout(policy state.FanoutPolicy, entry state.RoutingTableEntry, ifaces []state.LocalInterface) []state.LocalInterface {
	if policy != state.FanoutGateway {
		return ifaces
	}
	out := make([]state.LocalInterface, 0, 1)
	for _, itf := range ifaces {
		if itf.Network.Contains(entry.Gateway) {
			out = append(out, itf)
		}
	}
	return out
}

func (r *Router) send(buf []byte, itf state.LocalInterface, adv protocol.Advertisement) bool {
	if err := protocol.EncodeTo(buf, adv); err != nil {
		r.Env.Log.Warn("skipping advertisement", "iface", itf.Label, "network", adv.Network, "error", err)
		return false
	}
	if err := r.Transport.Send(itf, buf); err != nil {
		perf.SendFailures.Add(1)
		r.Env.Log.Warn("failed to send advertisement", "iface", itf.Label, "network", adv.Network, "error", err)
		return false
	}
	perf.AdvertsSent.Add(1)
	return true
}
