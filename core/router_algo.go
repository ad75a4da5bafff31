package core

import (
	"errors"

	"github.com/encodeous/strand/protocol"
	"github.com/encodeous/strand/state"
)

type RouterEvent int

// trace events

const (
	RouteAdded RouterEvent = iota
	RouteImproved
	RouteKept
)

// drop events

const (
	MalformedAdvertisement RouterEvent = iota + 100
	OwnAdvertisement
	NeighbourNetwork
	UnreachableGateway
	OfferSuperseded
)

// warn events

const (
	StoreFailed RouterEvent = iota + 1000
)

func (e RouterEvent) String() string {
	switch e {
	case RouteAdded:
		return "ROUTE_ADDED"
	case RouteImproved:
		return "ROUTE_IMPROVED"
	case RouteKept:
		return "ROUTE_KEPT"
	case MalformedAdvertisement:
		return "MALFORMED_ADVERTISEMENT"
	case OwnAdvertisement:
		return "OWN_ADVERTISEMENT"
	case NeighbourNetwork:
		return "NEIGHBOUR_NETWORK"
	case UnreachableGateway:
		return "UNREACHABLE_GATEWAY"
	case OfferSuperseded:
		return "OFFER_SUPERSEDED"
	case StoreFailed:
		return "STORE_FAILED"
	default:
		return "UNKNOWN"
	}
}

// Changed reports whether the event mutated the routing table.
func (e RouterEvent) Changed() bool {
	return e == RouteAdded || e == RouteImproved
}

// Relax is one Bellman-Ford relaxation step: the route to adv.Network through
// adv.Gateway, reached over a link of cost linkCost, replaces the stored entry only
// when it is strictly cheaper. A total that does not fit in a uint64 is unreachable.
// The caller must serialize calls for the same network.
func Relax(table state.RoutingTable, adv protocol.Advertisement, linkCost uint64) (RouterEvent, state.RoutingTableEntry, error) {
	candidate := state.RoutingTableEntry{
		Destination: adv.Network.Masked(),
		Gateway:     adv.Gateway,
		Cost:        state.AddCost(adv.Cost, linkCost),
	}
	if state.CostOverflows(adv.Cost, linkCost) {
		return UnreachableGateway, candidate, nil
	}
	existing, ok := table.Get(candidate.Destination)
	if ok && candidate.Cost >= existing.Cost {
		return RouteKept, existing, nil
	}
	if err := table.Upsert(candidate); err != nil {
		if !errors.Is(err, state.ErrStore) {
			err = &state.StoreError{Entry: candidate, Err: err}
		}
		return StoreFailed, candidate, err
	}
	if ok {
		return RouteImproved, candidate, nil
	}
	return RouteAdded, candidate, nil
}
