//go:build !linux

package sys

import (
	"errors"

	"github.com/encodeous/strand/state"
)

func replaceRoute(protocol int, entry state.RoutingTableEntry) error {
	return errors.ErrUnsupported
}

func VerifyForwarding() error {
	return nil
}
