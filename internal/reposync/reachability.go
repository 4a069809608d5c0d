package reposync

import (
	"context"
	"net"
	"time"
)

// DialFunc opens a connection; it matches (*net.Dialer).DialContext.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// checkReachable reports whether address accepts a TCP connection.
func checkReachable(ctx context.Context, dial DialFunc, address string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := dial(ctx, "tcp", address)
	if err != nil {
		return err
	}
	return conn.Close()
}
