package state

import (
	"fmt"
	"net/netip"
	"regexp"

	"github.com/gobwas/glob"
)

var namePattern, _ = regexp.Compile("^[0-9a-z._-]+$")

func NameValidator(s string) error {
	if !namePattern.MatchString(s) {
		return fmt.Errorf("%s is not a valid name, must match pattern %s", s, namePattern.String())
	}
	if len(s) > 100 {
		return fmt.Errorf("len(\"%s\") = %d > 100 is too long", s, len(s))
	}
	return nil
}

func BindValidator(s string) error {
	_, err := netip.ParseAddrPort(s)
	return err
}

func GlobValidator(patterns []string) error {
	for _, p := range patterns {
		if _, err := glob.Compile(p); err != nil {
			return fmt.Errorf("invalid interface pattern %q: %w", p, err)
		}
	}
	return nil
}

func ConfigValidator(cfg *Config) error {
	err := NameValidator(cfg.Name)
	if err != nil {
		return err
	}
	if cfg.Port == 0 {
		return fmt.Errorf("port must not be 0")
	}
	if cfg.AdvertiseInterval <= 0 {
		return fmt.Errorf("advertise_interval must be positive, got %s", cfg.AdvertiseInterval)
	}
	switch cfg.Fanout {
	case FanoutAll, FanoutGateway:
	default:
		return fmt.Errorf("unknown fanout policy %q, expected %q or %q", cfg.Fanout, FanoutAll, FanoutGateway)
	}
	if cfg.RouteProtocol < 1 || cfg.RouteProtocol > 255 {
		return fmt.Errorf("route_protocol must be within 1-255, got %d", cfg.RouteProtocol)
	}
	if cfg.MaxInflight < 1 {
		return fmt.Errorf("max_inflight must be at least 1, got %d", cfg.MaxInflight)
	}
	if cfg.Probe.Timeout <= 0 {
		return fmt.Errorf("probe.timeout must be positive, got %s", cfg.Probe.Timeout)
	}
	if cfg.Probe.Attempts < 1 {
		return fmt.Errorf("probe.attempts must be at least 1, got %d", cfg.Probe.Attempts)
	}
	if cfg.MetricsAddr != "" {
		if err := BindValidator(cfg.MetricsAddr); err != nil {
			return fmt.Errorf("metrics_addr: %w", err)
		}
	}
	for _, p := range cfg.ExcludeNetworks {
		if !p.IsValid() || !p.Addr().Is4() {
			return fmt.Errorf("exclude_networks: %s is not an IPv4 prefix", p)
		}
	}
	if err := GlobValidator(cfg.Interfaces.Include); err != nil {
		return err
	}
	return GlobValidator(cfg.Interfaces.Exclude)
}
