package state

import (
	"errors"
	"fmt"
	"net/netip"
)

var (
	ErrDiscovery = errors.New("interface discovery failed")
	ErrDecode    = errors.New("malformed advertisement")
	ErrProbe     = errors.New("latency probe failed")
	ErrSend      = errors.New("advertisement send failed")
	ErrStore     = errors.New("routing table write failed")
)

// DiscoveryError is returned when the local address enumeration fails.
type DiscoveryError struct {
	Err error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("%s: %v", ErrDiscovery, e.Err)
}

func (e *DiscoveryError) Unwrap() []error {
	return []error{ErrDiscovery, e.Err}
}

// StoreError is returned by a RoutingTable when an entry could not be persisted.
// The in-memory view of Entry.Destination is left unchanged.
type StoreError struct {
	Entry RoutingTableEntry
	Err   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s via %s: %v", ErrStore, e.Entry.Destination, e.Entry.Gateway, e.Err)
}

func (e *StoreError) Unwrap() []error {
	return []error{ErrStore, e.Err}
}

// SendError is returned when an advertisement could not be sent out of an interface.
type SendError struct {
	Iface string
	Dst   netip.AddrPort
	Err   error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%s: %s (%s): %v", ErrSend, e.Iface, e.Dst, e.Err)
}

func (e *SendError) Unwrap() []error {
	return []error{ErrSend, e.Err}
}
