//go:build linux || freebsd || darwin || aix || dragonfly || netbsd || openbsd
// +build linux freebsd darwin aix dragonfly netbsd openbsd

package ftpd

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// reusePortControl is the net.ListenConfig.Control hook that lets several
// prefork worker processes bind the same listen address via SO_REUSEPORT,
// grounded on the teacher's Control (control_unix.go).
func reusePortControl(_, _ string, c syscall.RawConn) error {
	var setOptErr error

	err := c.Control(func(fd uintptr) {
		setOptErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		if setOptErr != nil {
			return
		}

		setOptErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
	if err != nil {
		return fmt.Errorf("unable to set control options: %w", err)
	}

	if setOptErr != nil {
		return fmt.Errorf("unable to set control options: %w", setOptErr)
	}

	return nil
}
