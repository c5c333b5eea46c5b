//go:build linux

package nodeprobe

import (
	"errors"
	"net"
	"strconv"
	"time"

	"golang.org/x/sys/unix"
)

// peekReachable opens a short-lived TCP connection to host:port and uses a
// non-blocking MSG_PEEK recv to confirm the remote end is actually willing
// to send bytes (or at least hasn't torn the connection down), rather than
// merely accepting the SYN. A connection the peer has already closed
// surfaces as a zero-byte peek (n == 0, err == nil) and, like a reset or
// other recv error, is reported the same way a dial failure would be.
func peekReachable(host string, port int, timeout time.Duration) error {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, strconv.Itoa(port)), timeout)
	if err != nil {
		return err
	}
	defer conn.Close()

	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	raw, err := tcpConn.SyscallConn()
	if err != nil {
		return nil
	}

	var peekErr error
	controlErr := raw.Read(func(fd uintptr) bool {
		buf := make([]byte, 1)
		n, _, err := unix.Recvfrom(int(fd), buf, unix.MSG_PEEK|unix.MSG_DONTWAIT)
		if err != nil && err != unix.EAGAIN && err != unix.EWOULDBLOCK {
			peekErr = err
		}
		if err == nil && n == 0 {
			peekErr = errors.New("connection closed by peer")
		}
		return true
	})
	if controlErr != nil {
		return controlErr
	}
	return peekErr
}
