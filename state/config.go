package state

import (
	"fmt"
	"net/netip"
	"os"
	"time"

	"github.com/goccy/go-yaml"
)

type FanoutPolicy string

const (
	// FanoutAll advertises every learned route out of every local interface.
	FanoutAll FanoutPolicy = "all"
	// FanoutGateway advertises a learned route only out of the interface whose network contains its gateway.
	FanoutGateway FanoutPolicy = "gateway"
)

type InterfaceCfg struct {
	Include []string `yaml:"include,omitempty"` // label globs, empty means every interface
	Exclude []string `yaml:"exclude,omitempty"` // label globs, applied after include
}

type ProbeCfg struct {
	Timeout  time.Duration `yaml:"timeout,omitempty"`   // upper bound on a single measurement
	Attempts int           `yaml:"attempts,omitempty"`  // echo attempts spread within Timeout
	CacheTTL time.Duration `yaml:"cache_ttl,omitempty"` // reuse a successful measurement this long, unset measures every time
}

// Config represents local node-level configuration
type Config struct {
	Name              string         `yaml:"name,omitempty"`             // used as the log prefix
	Port              uint16         `yaml:"port,omitempty"`
	AdvertiseInterval time.Duration  `yaml:"advertise_interval,omitempty"`
	Fanout            FanoutPolicy   `yaml:"fanout,omitempty"`
	InstallRoutes     *bool          `yaml:"install_routes,omitempty"`   // write accepted routes into the kernel routing table
	RouteProtocol     int            `yaml:"route_protocol,omitempty"`   // rtm_protocol tag for installed routes
	MaxInflight       int            `yaml:"max_inflight,omitempty"`     // route evaluation workers
	LogPath           string         `yaml:"log_path,omitempty"`         // if not empty, strand will also write to this file
	MetricsAddr       string         `yaml:"metrics_addr,omitempty"`     // if not empty, serves /debug/vars and /debug/metrics
	ControlSocket     *string        `yaml:"control_socket,omitempty"`   // unix socket for strand inspect, empty disables
	ExcludeNetworks   []netip.Prefix `yaml:"exclude_networks,omitempty"` // address ranges never advertised as local networks
	Interfaces        InterfaceCfg   `yaml:"interfaces,omitempty"`
	Probe             ProbeCfg       `yaml:"probe,omitempty"`
}

func (c *Config) ShouldInstallRoutes() bool {
	return c.InstallRoutes == nil || *c.InstallRoutes
}

// ControlSocketPath returns the inspect socket path, or "" when the socket is disabled.
func (c *Config) ControlSocketPath() string {
	if c.ControlSocket == nil {
		return DefaultControlSocket
	}
	return *c.ControlSocket
}

// AdvertisedNetworks returns the parts of a local network that may be announced.
func (c *Config) AdvertisedNetworks(network netip.Prefix) []netip.Prefix {
	if len(c.ExcludeNetworks) == 0 {
		return []netip.Prefix{network}
	}
	return SubtractPrefix([]netip.Prefix{network}, c.ExcludeNetworks)
}

// DefaultConfig returns a config with every optional field filled in.
func DefaultConfig() Config {
	cfg := Config{}
	ExpandConfig(&cfg)
	return cfg
}

// ExpandConfig fills in defaults for unset fields.
func ExpandConfig(cfg *Config) {
	if cfg.Name == "" {
		host, err := os.Hostname()
		if err != nil || NameValidator(host) != nil {
			host = "strand"
		}
		cfg.Name = host
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.AdvertiseInterval == 0 {
		cfg.AdvertiseInterval = DefaultAdvertiseInterval
	}
	if cfg.Fanout == "" {
		cfg.Fanout = FanoutAll
	}
	if cfg.RouteProtocol == 0 {
		cfg.RouteProtocol = DefaultRouteProtocol
	}
	if cfg.MaxInflight == 0 {
		cfg.MaxInflight = DefaultMaxInflight
	}
	if cfg.Probe.Timeout == 0 {
		cfg.Probe.Timeout = DefaultProbeTimeout
	}
	if cfg.Probe.Attempts == 0 {
		cfg.Probe.Attempts = DefaultProbeAttempts
	}
}

// ReadConfig loads the config at path. A missing file yields the defaults.
func ReadConfig(path string) (*Config, error) {
	var cfg Config
	file, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else {
		err = yaml.Unmarshal(file, &cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}
	ExpandConfig(&cfg)
	err = ConfigValidator(&cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func WriteConfig(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
