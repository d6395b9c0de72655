//go:build windows

package transport

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// dscpExpeditedForwarding is the IP_TOS value for DSCP class EF (spec §4.2).
const dscpExpeditedForwarding = 184

func setDSCP(rc syscall.RawConn) error {
	var sockErr error
	tos := int32(dscpExpeditedForwarding)
	if err := rc.Control(func(fd uintptr) {
		sockErr = windows.Setsockopt(
			windows.Handle(fd),
			windows.IPPROTO_IP,
			windows.IP_TOS,
			(*byte)(unsafe.Pointer(&tos)),
			int32(unsafe.Sizeof(tos)),
		)
	}); err != nil {
		return err
	}
	return sockErr
}
