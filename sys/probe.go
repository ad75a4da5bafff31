package sys

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/digineo/go-ping"
	"github.com/encodeous/strand/state"
)

// ICMPProbe measures link cost with ICMP echo. It needs CAP_NET_RAW (or root).
type ICMPProbe struct {
	pinger   *ping.Pinger
	timeout  time.Duration
	attempts int
}

func NewICMPProbe(timeout time.Duration, attempts int) (*ICMPProbe, error) {
	pinger, err := ping.New("0.0.0.0", "")
	if err != nil {
		return nil, fmt.Errorf("failed to start pinger: %w", err)
	}
	return &ICMPProbe{
		pinger:   pinger,
		timeout:  timeout,
		attempts: max(attempts, 1),
	}, nil
}

// Measure returns the round trip to addr in milliseconds. The call returns within the configured timeout.
func (p *ICMPProbe) Measure(ctx context.Context, addr netip.Addr) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %s: %w", state.ErrProbe, addr, err)
	}
	perAttempt := time.Duration(int64(p.timeout) / int64(p.attempts))
	rtt, err := p.pinger.PingAttempts(&net.IPAddr{IP: net.IP(addr.AsSlice())}, perAttempt, p.attempts)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", state.ErrProbe, addr, err)
	}
	return state.DurationToCost(rtt), nil
}

func (p *ICMPProbe) Close() {
	p.pinger.Close()
}
