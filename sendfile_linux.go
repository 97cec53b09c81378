//go:build linux
// +build linux

package ftpd

import (
	"io"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// sendfileSupported reports whether trySendfile is implemented on this
// platform; server.go/transfer.go fall back to io.Copy when it isn't.
const sendfileSupported = true

// trySendfile attempts the sendfile(2) fast path for a RETR of a regular
// file to a plain (non-TLS) TCP data connection. It returns handled=false
// whenever it sent zero bytes, so the caller can fall back to io.Copy
// without risk of double-sending: spec.md's "fallback-on-zero-bytes-sent"
// rule, and the reason we only attempt this when no ASCII conversion and
// no TLS is involved (both require seeing every byte).
//
// Grounded on the teacher's control_unix.go build-tag split (same
// platform set), using golang.org/x/sys/unix — already wired into the
// module for SO_REUSEPORT — for the actual syscall.
func trySendfile(dst *net.TCPConn, src *os.File, count int64) (written int64, handled bool, err error) {
	rawConn, err := dst.SyscallConn()
	if err != nil {
		return 0, false, nil
	}

	var sendErr error

	ctrlErr := rawConn.Control(func(fd uintptr) {
		remaining := count

		for remaining > 0 {
			n, errSend := unix.Sendfile(int(fd), int(src.Fd()), nil, int(remaining))
			if n > 0 {
				written += int64(n)
				remaining -= int64(n)
			}

			if errSend != nil {
				if errSend == unix.EAGAIN {
					continue
				}

				sendErr = errSend

				return
			}

			if n == 0 {
				return
			}
		}
	})

	if ctrlErr != nil {
		return written, written > 0, ctrlErr
	}

	if sendErr != nil {
		if written == 0 {
			return 0, false, nil
		}

		return written, true, sendErr
	}

	if written == 0 {
		return 0, false, nil
	}

	if written == count {
		return written, true, io.EOF
	}

	return written, true, nil
}
