package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/viper"

	"go.klb.dev/clipkeeper/internal/grpcservice"
	"go.klb.dev/clipkeeper/internal/history"
	"go.klb.dev/clipkeeper/internal/ipc"
	"go.klb.dev/clipkeeper/internal/store"
)

var errNoDaemon = errors.New("no clipkeeper daemon is running (start one with \"clipkeeper serve\")")

// historyBackend is served by both a daemon connection and the local store.
type historyBackend interface {
	List(ctx context.Context, limit, offset int) ([]history.Entry, error)
	Search(ctx context.Context, pattern string, limit int) ([]history.Entry, error)
	Get(ctx context.Context, id int64) (history.Entry, error)
	Delete(ctx context.Context, id int64) (bool, error)
	Clear(ctx context.Context) error
}

// conn is the resolved transport for a CLI command.
type conn struct {
	backend   historyBackend
	rpc       *grpcservice.Client // nil when using the local store
	transport string
	closer    io.Closer
}

func (c *conn) Close() error { return c.closer.Close() }

// dialDaemon returns a client for a running daemon: --server over TCP when
// given, otherwise the IPC socket. It returns errNoDaemon when neither is
// reachable.
func dialDaemon(v *viper.Viper) (*grpcservice.Client, string, error) {
	if server := v.GetString("server"); server != "" {
		c, err := grpcservice.Dial(server, grpcservice.DialOptions{Token: v.GetString("token")})
		if err != nil {
			return nil, "", fmt.Errorf("dial %s: %w", server, err)
		}
		return c, fmt.Sprintf("tcp (%s)", server), nil
	}
	if !ipc.IsRunning() {
		return nil, "", errNoDaemon
	}
	c, err := grpcservice.Dial("passthrough:///clipkeeper", grpcservice.DialOptions{Dialer: ipc.Dial})
	if err != nil {
		return nil, "", fmt.Errorf("dial ipc: %w", err)
	}
	return c, fmt.Sprintf("ipc (%s)", ipc.SocketPath()), nil
}

// connect prefers a running daemon and falls back to opening the database.
func connect(v *viper.Viper) (*conn, error) {
	rpc, transport, err := dialDaemon(v)
	switch {
	case err == nil:
		return &conn{backend: rpc, rpc: rpc, transport: transport, closer: rpc}, nil
	case !errors.Is(err, errNoDaemon):
		return nil, err
	}

	path := v.GetString("db")
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w; no database at %s", errNoDaemon, path)
	}
	st, err := store.Open(store.Options{Path: path, Logger: slog.New(slog.DiscardHandler)})
	if err != nil {
		return nil, err
	}
	return &conn{backend: st, transport: "local (" + path + ")", closer: st}, nil
}
