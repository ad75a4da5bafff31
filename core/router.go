package core

import (
	"fmt"
	"sync/atomic"

	"github.com/encodeous/strand/state"
	"github.com/moby/locker"
)

// Router owns the route-exchange engine: the periodic advertiser and the
// receiver/selector. The advertiser only reads the routing table, the selector
// is its only writer.
type Router struct {
	*state.State
	neighbours atomic.Pointer[state.NeighborSet]
	// locks serializes route selection per destination
	locks  *locker.Locker
	offers *offerQueue
	probe  *CachedProbe
}

func (r *Router) Init(s *state.State) error {
	s.Log.Debug("init router")
	r.setup(s)

	// seed the neighbour set before the first datagram can arrive
	ifaces := r.discover()
	s.Log.Info("discovered local networks", "count", len(ifaces), "networks", r.Neighbours().String())

	s.Log.Debug("schedule router tasks")
	s.Env.Go(r.receiveLoop)
	for range s.MaxInflight {
		s.Env.Go(r.evaluateLoop)
	}
	s.Env.Go(func() error {
		<-s.Context.Done()
		return s.Transport.Close()
	})
	s.Env.RepeatTask(r.Tick, s.AdvertiseInterval)
	return nil
}

func (r *Router) setup(s *state.State) {
	r.State = s
	r.locks = locker.New()
	r.offers = newOfferQueue()
	r.probe = NewCachedProbe(s.External.Probe, s.Config.Probe.CacheTTL)
}

func (r *Router) Cleanup(s *state.State) error {
	if n := r.offers.Len(); n > 0 {
		s.Log.Debug("discarded queued advertisements", "count", n)
	}
	r.probe.DeleteExpired()
	return nil
}

// Neighbours returns the directly-connected networks found by the last discovery pass.
func (r *Router) Neighbours() *state.NeighborSet {
	return r.neighbours.Load()
}

func (r *Router) discover() []state.LocalInterface {
	ifaces, err := r.Catalog.Discover()
	if err != nil {
		// an empty catalog is valid, we simply have nothing of our own to advertise this cycle
		r.Env.Log.Error("failed to discover local interfaces", "error", err)
		ifaces = nil
	}
	r.neighbours.Store(state.NewNeighborSet(ifaces))
	return ifaces
}

func (r *Router) Log(event RouterEvent, desc string, args ...any) {
	switch {
	case event >= StoreFailed:
		r.Env.Log.Error(fmt.Sprintf("%s %s", event.String(), desc), args...)
	case event.Changed():
		r.Env.Log.Info(fmt.Sprintf("%s %s", event.String(), desc), args...)
	default:
		r.Env.Log.Debug(fmt.Sprintf("%s %s", event.String(), desc), args...)
	}
}
