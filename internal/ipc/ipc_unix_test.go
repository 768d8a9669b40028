//go:build !windows

package ipc

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func shortSocket(t *testing.T) string {
	t.Helper()
	// Unix socket paths are limited to ~100 bytes, so avoid t.TempDir().
	dir, err := os.MkdirTemp("", "ck")
	if err != nil {
		t.Fatalf("mkdtemp: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	path := filepath.Join(dir, "s.sock")
	t.Setenv("CLIPKEEPER_SOCKET", path)
	return path
}

func TestSocketPathOverride(t *testing.T) {
	t.Setenv("CLIPKEEPER_SOCKET", "/tmp/custom.sock")
	if got := SocketPath(); got != "/tmp/custom.sock" {
		t.Fatalf("SocketPath = %q", got)
	}
}

func TestSocketPathPrefersRuntimeDir(t *testing.T) {
	t.Setenv("CLIPKEEPER_SOCKET", "")
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	if got := SocketPath(); got != "/run/user/1000/clipkeeper.sock" {
		t.Fatalf("SocketPath = %q", got)
	}
}

func TestListenDialAndIsRunning(t *testing.T) {
	path := shortSocket(t)
	if IsRunning() {
		t.Fatal("IsRunning before Listen")
	}

	l, err := Listen()
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			_ = c.Close()
		}
	}()

	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := fi.Mode().Perm(); perm != 0o600 {
		t.Fatalf("socket mode = %o, want 600", perm)
	}

	if !IsRunning() {
		t.Fatal("IsRunning = false while listening")
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	c, err := Dial(ctx, "ignored")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	_ = c.Close()

	if _, err := Listen(); err == nil {
		t.Fatal("second Listen on a live socket succeeded")
	}
}

func TestListenReplacesStaleSocket(t *testing.T) {
	path := shortSocket(t)
	if err := os.WriteFile(path, nil, 0o600); err != nil {
		t.Fatalf("write stale: %v", err)
	}
	l, err := Listen()
	if err != nil {
		t.Fatalf("listen over stale file: %v", err)
	}
	_ = l.Close()
}
