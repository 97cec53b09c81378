//go:build !linux
// +build !linux

package ftpd

import (
	"net"
	"os"
)

// sendfileSupported mirrors sendfile_linux.go: false here means the
// stream-copy path in transfer.go is always used on this platform.
const sendfileSupported = false

func trySendfile(_ *net.TCPConn, _ *os.File, _ int64) (written int64, handled bool, err error) {
	return 0, false, nil
}
