//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package sys

import "syscall"

func controlBroadcast(network, address string, c syscall.RawConn) error {
	return nil
}
