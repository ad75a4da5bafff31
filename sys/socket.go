package sys

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	"github.com/encodeous/strand/state"
	"golang.org/x/net/ipv4"
)

// UDPTransport is a broadcast-enabled UDP socket shared by every local interface.
type UDPTransport struct {
	port    uint16
	conn    *ipv4.PacketConn
	cmFlags bool
}

// ListenUDP binds the advertisement port on all IPv4 addresses with SO_BROADCAST and address reuse.
func ListenUDP(ctx context.Context, port uint16) (*UDPTransport, error) {
	lc := net.ListenConfig{Control: controlBroadcast}
	pc, err := lc.ListenPacket(ctx, "udp4", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return nil, fmt.Errorf("failed to listen on udp port %d: %w", port, err)
	}
	conn := ipv4.NewPacketConn(pc)
	t := &UDPTransport{
		port: port,
		conn: conn,
	}
	// not every platform can report the inbound interface, in which case we go without
	t.cmFlags = conn.SetControlMessage(ipv4.FlagInterface|ipv4.FlagDst, true) == nil
	return t, nil
}

func (t *UDPTransport) Send(iface state.LocalInterface, payload []byte) error {
	dst := netip.AddrPortFrom(iface.Broadcast, t.port)
	var cm *ipv4.ControlMessage
	if t.cmFlags && iface.Index != 0 {
		cm = &ipv4.ControlMessage{
			IfIndex: iface.Index,
			Src:     iface.Address.AsSlice(),
		}
	}
	_, err := t.conn.WriteTo(payload, cm, net.UDPAddrFromAddrPort(dst))
	if err != nil {
		return &state.SendError{Iface: iface.Label, Dst: dst, Err: err}
	}
	return nil
}

func (t *UDPTransport) Receive(buf []byte) (state.Datagram, error) {
	n, cm, src, err := t.conn.ReadFrom(buf)
	if err != nil {
		return state.Datagram{}, err
	}
	d := state.Datagram{Len: n}
	if udp, ok := src.(*net.UDPAddr); ok {
		d.Sender = udp.AddrPort().Addr().Unmap()
	}
	if cm != nil {
		d.IfIndex = cm.IfIndex
	}
	return d, nil
}

func (t *UDPTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

func (t *UDPTransport) Close() error {
	return t.conn.Close()
}
