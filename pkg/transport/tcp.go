package transport

import (
	"fmt"
	"net"
	"time"
)

// DialTCP opens a raw SCPI socket (port 5025 on R&S analyzers)
func DialTCP(addr string, timeout time.Duration) (Transport, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
		tcp.SetKeepAlive(true)
	}

	return newStream("tcp:"+addr, conn, conn.SetDeadline, timeout), nil
}
