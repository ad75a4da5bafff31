package core

import (
	"context"
	"maps"
	"net/netip"
	"slices"
	"sync"

	"github.com/encodeous/strand/protocol"
	"github.com/encodeous/strand/state"
)

// offerQueue holds received advertisements until a worker evaluates them. Offers are
// grouped by the neighbour that sent them, and only the latest offer per destination
// is kept, so the queue never grows past one entry per (neighbour, destination).
// A neighbour is handed to at most one worker at a time.
type offerQueue struct {
	mu      sync.Mutex
	pending map[netip.Addr]map[netip.Prefix]protocol.Advertisement
	busy    map[netip.Addr]struct{}
	size    int
	wake    chan struct{}
}

func newOfferQueue() *offerQueue {
	return &offerQueue{
		pending: make(map[netip.Addr]map[netip.Prefix]protocol.Advertisement),
		busy:    make(map[netip.Addr]struct{}),
		wake:    make(chan struct{}, 1),
	}
}

// Push queues adv, replacing an offer from the same neighbour for the same destination
// that has not been evaluated yet. It reports whether an offer was replaced.
func (q *offerQueue) Push(adv protocol.Advertisement) (replaced bool) {
	q.mu.Lock()
	offers, ok := q.pending[adv.Gateway]
	if !ok {
		offers = make(map[netip.Prefix]protocol.Advertisement)
		q.pending[adv.Gateway] = offers
	}
	_, replaced = offers[adv.Network]
	offers[adv.Network] = adv
	if !replaced {
		q.size++
	}
	q.mu.Unlock()
	q.signal()
	return replaced
}

// Pop takes every queued offer of one neighbour that is not already being evaluated.
// The caller must call Done with the returned gateway once it is finished.
func (q *offerQueue) Pop() (netip.Addr, []protocol.Advertisement, bool) {
	q.mu.Lock()
	for gw, offers := range q.pending {
		if _, ok := q.busy[gw]; ok {
			continue
		}
		delete(q.pending, gw)
		q.busy[gw] = struct{}{}
		q.size -= len(offers)
		more := q.readyLocked()
		q.mu.Unlock()
		if more {
			// let another worker pick up the next neighbour
			q.signal()
		}
		batch := slices.SortedFunc(maps.Values(offers), func(a, b protocol.Advertisement) int {
			return state.ComparePrefix(a.Network, b.Network)
		})
		return gw, batch, true
	}
	q.mu.Unlock()
	return netip.Addr{}, nil, false
}

// Done releases gw so its newer offers can be popped.
func (q *offerQueue) Done(gw netip.Addr) {
	q.mu.Lock()
	delete(q.busy, gw)
	_, more := q.pending[gw]
	q.mu.Unlock()
	if more {
		q.signal()
	}
}

// Wait blocks until offers may be ready. It returns false once ctx is done.
func (q *offerQueue) Wait(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-q.wake:
		return true
	}
}

// Len returns the number of queued offers.
func (q *offerQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

func (q *offerQueue) readyLocked() bool {
	for gw := range q.pending {
		if _, ok := q.busy[gw]; !ok {
			return true
		}
	}
	return false
}

func (q *offerQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
