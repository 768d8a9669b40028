// Package ipc provides the local socket used by clipkeeper CLI commands to
// reach a running daemon without going through TCP.
//
// The channel carries the same History gRPC service as the TCP listener.
// On Unix it is a domain socket in $XDG_RUNTIME_DIR (or the temp dir); on
// Windows it is a named pipe. CLIPKEEPER_SOCKET overrides the path.
package ipc

import (
	"context"
	"net"
	"os"
	"time"
)

// SocketPath returns the platform-appropriate IPC endpoint.
func SocketPath() string {
	if s := os.Getenv("CLIPKEEPER_SOCKET"); s != "" {
		return s
	}
	return socketPath()
}

// Listen creates a listener on the IPC endpoint.
func Listen() (net.Listener, error) {
	return listenIPC(SocketPath())
}

// Dial connects to the IPC endpoint. The addr argument is ignored so Dial
// can be used directly as a gRPC context dialer.
func Dial(ctx context.Context, _ string) (net.Conn, error) {
	return dialIPC(ctx, SocketPath())
}

// IsRunning reports whether a daemon appears to be listening on the IPC
// endpoint. It does a cheap dial-and-close; no data is exchanged.
func IsRunning() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	c, err := Dial(ctx, "")
	if err != nil {
		return false
	}
	_ = c.Close()
	return true
}
