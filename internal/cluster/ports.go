package cluster

import (
	"fmt"
	"net"
)

const portAllocAttempts = 10

// AllocatePort asks the OS for a free loopback port and confirms it is still
// bindable before returning it. The confirmation narrows but cannot close the
// race with the subprocess bind; a worker that loses the race fails to start
// and is reaped on the next control-loop tick.
func AllocatePort() (int, error) {
	for i := 0; i < portAllocAttempts; i++ {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			continue
		}
		port := l.Addr().(*net.TCPAddr).Port
		_ = l.Close()
		// Rebind the concrete port to confirm it was actually released to us.
		c, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			continue
		}
		_ = c.Close()
		return port, nil
	}
	return 0, portExhaustedError{attempts: portAllocAttempts}
}
