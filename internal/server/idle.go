package server

import (
	"net"
	"time"
)

// applyIdleDeadline resets conn's read deadline ahead of the next command
// decode. A zero timeout disables idle enforcement.
func applyIdleDeadline(conn net.Conn, timeout time.Duration) error {
	if timeout <= 0 {
		return nil
	}
	return conn.SetReadDeadline(time.Now().Add(timeout))
}
