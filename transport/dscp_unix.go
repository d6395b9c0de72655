//go:build !windows

package transport

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// dscpExpeditedForwarding is the IP_TOS value for DSCP class EF (spec §4.2).
const dscpExpeditedForwarding = 184

func setDSCP(rc syscall.RawConn) error {
	var sockErr error
	if err := rc.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_TOS, dscpExpeditedForwarding)
	}); err != nil {
		return err
	}
	return sockErr
}
