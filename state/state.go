package state

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

type Module interface {
	Init(s *State) error
	Cleanup(s *State) error
}

type State struct {
	*Env
	Modules map[string]Module
}

// External holds the collaborators at the edge of the routing engine. Nil fields are
// filled in with the operating system implementations on Start.
type External struct {
	Catalog   Catalog
	Probe     Probe
	Transport Transport
	Table     RoutingTable
}

// Env can be read from any Goroutine
type Env struct {
	Config
	External
	Context context.Context
	Cancel  context.CancelCauseFunc
	Log     *slog.Logger
	// Group supervises the long-running tasks of every module. A task returning an error stops the daemon.
	Group *errgroup.Group
}
