package core

import (
	"context"
	"net/netip"
	"time"

	"github.com/encodeous/strand/state"
	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sync/singleflight"
)

// CachedProbe reuses successful measurements for a while and collapses concurrent
// measurements of the same address into one. Failures are never cached.
type CachedProbe struct {
	probe  state.Probe
	cache  *ttlcache.Cache[netip.Addr, uint64]
	flight singleflight.Group
}

// NewCachedProbe wraps probe. A non-positive ttl disables caching, concurrent calls are still collapsed.
func NewCachedProbe(probe state.Probe, ttl time.Duration) *CachedProbe {
	c := &CachedProbe{probe: probe}
	if ttl > 0 {
		c.cache = ttlcache.New[netip.Addr, uint64](
			ttlcache.WithTTL[netip.Addr, uint64](ttl),
			ttlcache.WithDisableTouchOnHit[netip.Addr, uint64](),
		)
	}
	return c
}

func (c *CachedProbe) Measure(ctx context.Context, addr netip.Addr) (uint64, error) {
	if c.cache != nil {
		if item := c.cache.Get(addr); item != nil {
			return item.Value(), nil
		}
	}
	v, err, _ := c.flight.Do(addr.String(), func() (any, error) {
		cost, err := c.probe.Measure(ctx, addr)
		if err != nil {
			return uint64(0), err
		}
		if c.cache != nil {
			c.cache.Set(addr, cost, ttlcache.DefaultTTL)
		}
		return cost, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(uint64), nil
}

// DeleteExpired releases memory held by stale measurements.
func (c *CachedProbe) DeleteExpired() {
	if c.cache != nil {
		c.cache.DeleteExpired()
	}
}
