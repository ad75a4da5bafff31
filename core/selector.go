package core

import (
	"errors"
	"net"
	"net/netip"

	"github.com/encodeous/strand/perf"
	"github.com/encodeous/strand/protocol"
	"github.com/encodeous/strand/state"
)

// OnDatagram processes one received advertisement to completion and reports what it did.
func (r *Router) OnDatagram(payload []byte, sender netip.Addr) RouterEvent {
	adv, event, ok := r.admit(payload, sender)
	if !ok {
		return event
	}
	return r.evaluate(adv.Gateway, []protocol.Advertisement{adv})[0]
}

// admit runs the checks that need no I/O: decoding and the local network guards.
func (r *Router) admit(payload []byte, sender netip.Addr) (protocol.Advertisement, RouterEvent, bool) {
	perf.AdvertsReceived.Add(1)
	adv, err := protocol.FromDatagram(payload, sender)
	if err != nil {
		perf.DecodeErrors.Add(1)
		r.Log(MalformedAdvertisement, "dropped datagram", "from", sender, "len", len(payload), "error", err)
		return adv, MalformedAdvertisement, false
	}
	neigh := r.Neighbours()
	if neigh.IsLocalAddr(adv.Gateway) {
		return adv, OwnAdvertisement, false
	}
	if neigh.Contains(adv.Network) {
		r.Log(NeighbourNetwork, "ignored advertisement for a directly-connected network", "network", adv.Network, "from", adv.Gateway)
		return adv, NeighbourNetwork, false
	}
	return adv, 0, true
}

// evaluate measures the link to gateway once and applies route selection to every
// advertisement in batch, all of which gateway sent.
func (r *Router) evaluate(gateway netip.Addr, batch []protocol.Advertisement) []RouterEvent {
	events := make([]RouterEvent, len(batch))
	linkCost, err := r.probe.Measure(r.Context, gateway)
	if err != nil {
		perf.ProbeFailures.Add(1)
		for i, adv := range batch {
			events[i] = UnreachableGateway
			r.Log(UnreachableGateway, "dropped advertisement", "network", adv.Network, "gateway", gateway, "error", err)
		}
		return events
	}
	perf.ProbeLatency.Add(float64(linkCost))
	if state.DBG_log_probe {
		r.Env.Log.Info("probe", "gateway", gateway, "cost", linkCost, "offers", len(batch))
	}
	for i, adv := range batch {
		events[i] = r.selectRoute(adv, linkCost)
	}
	return events
}

// selectRoute relaxes the route to adv.Network. Selections for the same destination never overlap.
func (r *Router) selectRoute(adv protocol.Advertisement, linkCost uint64) RouterEvent {
	key := adv.Network.Masked().String()
	r.locks.Lock(key)
	defer func() { _ = r.locks.Unlock(key) }()

	event, entry, err := Relax(r.Table, adv, linkCost)
	switch event {
	case RouteAdded:
		perf.RouteChanges.Add(1)
		r.Log(event, "installed route", "destination", entry.Destination, "gateway", entry.Gateway, "cost", entry.Cost)
	case RouteImproved:
		perf.RouteChanges.Add(1)
		r.Log(event, "replaced route", "destination", entry.Destination, "gateway", entry.Gateway, "cost", entry.Cost)
	case StoreFailed:
		r.Log(event, "failed to write route", "destination", entry.Destination, "gateway", entry.Gateway, "cost", entry.Cost, "error", err)
	case UnreachableGateway:
		r.Log(event, "dropped advertisement whose cost overflows", "network", adv.Network, "gateway", adv.Gateway, "cost", adv.Cost, "link", linkCost)
	default:
		r.Log(event, "kept existing route", "destination", entry.Destination, "gateway", entry.Gateway, "cost", entry.Cost, "offered", state.AddCost(adv.Cost, linkCost), "via", adv.Gateway)
	}
	return event
}

// receiveLoop reads datagrams until the transport is closed and queues every admitted
// advertisement for the evaluation workers, so a slow neighbour never stalls reception.
func (r *Router) receiveLoop() error {
	r.Env.Log.Debug("started receive loop")
	buf := make([]byte, state.MaxDatagramSize)
	for {
		d, err := r.Transport.Receive(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || r.Context.Err() != nil {
				r.Env.Log.Debug("stopped receive loop")
				return nil
			}
			r.Env.Log.Warn("failed to receive datagram", "error", err)
			continue
		}
		adv, _, ok := r.admit(buf[:d.Len], d.Sender)
		if !ok {
			continue
		}
		if r.offers.Push(adv) {
			perf.OffersSuperseded.Add(1)
			r.Log(OfferSuperseded, "replaced queued advertisement", "network", adv.Network, "from", adv.Gateway, "cost", adv.Cost, "ifindex", d.IfIndex)
		}
	}
}

// evaluateLoop is one of max_inflight workers draining the offer queue.
func (r *Router) evaluateLoop() error {
	for r.offers.Wait(r.Context) {
		for r.Context.Err() == nil {
			gw, batch, ok := r.offers.Pop()
			if !ok {
				break
			}
			r.evaluate(gw, batch)
			r.offers.Done(gw)
		}
	}
	return nil
}
