package state

import (
	"math"
	"time"
)

const (
	// INF is the cost of an unreachable route. Cost addition saturates here.
	INF = uint64(math.MaxUint64)
)

var (
	DefaultPort              = uint16(8888)
	DefaultAdvertiseInterval = time.Second * 30
	DefaultProbeTimeout      = time.Second * 1
	DefaultProbeAttempts     = 3
	DefaultMaxInflight       = 64
	DefaultRouteProtocol     = 188 // rtm_protocol tag for routes installed by strand
	DefaultConfigPath        = "/etc/strand/strand.yaml"
	DefaultControlSocket     = "/run/strand/strand.sock"

	// MaxDatagramSize bounds the receive buffer. Advertisements are 13 bytes, anything larger is foreign traffic.
	MaxDatagramSize = 1500
)

// debug toggles
var (
	DBG_log_route_table = false
	DBG_log_probe       = false
)
