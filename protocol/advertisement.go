// Package protocol implements the advertisement wire format.
//
// Every advertisement is a single 13 byte UDP payload:
//
//	0       8         12   13
//	+-------+----------+----+
//	| cost  | network  | len|
//	+-------+----------+----+
//
// cost is a little-endian uint64 in milliseconds, network is the IPv4 network
// address in network byte order and len is the prefix length (0-32). The
// next hop is never carried in the payload; receivers take it from the UDP
// source address.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"

	"github.com/encodeous/strand/state"
)

const Size = 13

var ErrNotIPv4 = errors.New("advertised network is not IPv4")

type Advertisement struct {
	Network netip.Prefix
	Cost    uint64
	// Gateway is the sender of a received advertisement. It is the zero Addr for self-originated ones.
	Gateway netip.Addr
}

// FromLocalNetwork builds a self-originated advertisement for a directly-connected network.
func FromLocalNetwork(network netip.Prefix) Advertisement {
	return Advertisement{
		Network: network.Masked(),
		Cost:    0,
	}
}

// FromRoute builds an advertisement re-publishing an installed route with its stored cost.
func FromRoute(entry state.RoutingTableEntry) Advertisement {
	return Advertisement{
		Network: entry.Destination.Masked(),
		Cost:    entry.Cost,
	}
}

// FromDatagram decodes a received payload. The gateway is taken from sender.
func FromDatagram(data []byte, sender netip.Addr) (Advertisement, error) {
	return Decode(data, sender)
}

func (a Advertisement) String() string {
	if a.Gateway.IsValid() {
		return fmt.Sprintf("%s cost %d from %s", a.Network, a.Cost, a.Gateway)
	}
	return fmt.Sprintf("%s cost %d", a.Network, a.Cost)
}

// EncodeTo writes the wire form of a into buf, which must be at least Size bytes.
func EncodeTo(buf []byte, a Advertisement) error {
	if !a.Network.IsValid() || !a.Network.Addr().Is4() {
		return fmt.Errorf("%w: %s", ErrNotIPv4, a.Network)
	}
	network := a.Network.Masked()
	addr := network.Addr().As4()
	binary.LittleEndian.PutUint64(buf[0:8], a.Cost)
	copy(buf[8:12], addr[:])
	buf[12] = uint8(network.Bits())
	return nil
}

// Encode returns the 13 byte wire form of a.
func Encode(a Advertisement) ([]byte, error) {
	buf := make([]byte, Size)
	if err := EncodeTo(buf, a); err != nil {
		return nil, err
	}
	return buf, nil
}

// Decode parses a payload received from sender. Bytes past Size are ignored.
func Decode(data []byte, sender netip.Addr) (Advertisement, error) {
	if len(data) < Size {
		return Advertisement{}, fmt.Errorf("%w: payload is %d bytes, expected %d", state.ErrDecode, len(data), Size)
	}
	bits := int(data[12])
	if bits > 32 {
		return Advertisement{}, fmt.Errorf("%w: prefix length %d > 32", state.ErrDecode, bits)
	}
	addr := netip.AddrFrom4([4]byte(data[8:12]))
	return Advertisement{
		Network: netip.PrefixFrom(addr, bits).Masked(),
		Cost:    binary.LittleEndian.Uint64(data[0:8]),
		Gateway: sender.Unmap(),
	}, nil
}
