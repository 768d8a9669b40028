package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/soheilhy/cmux"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"

	"go.klb.dev/clipkeeper/internal/api"
	"go.klb.dev/clipkeeper/internal/clip"
	"go.klb.dev/clipkeeper/internal/grpcservice"
	"go.klb.dev/clipkeeper/internal/ipc"
	"go.klb.dev/clipkeeper/internal/keeper"
	"go.klb.dev/clipkeeper/internal/monitor"
	"go.klb.dev/clipkeeper/internal/store"
)

const (
	pruneEvery      = time.Minute
	shutdownTimeout = 5 * time.Second
)

func newServeCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the clipboard history daemon",
		Long: `Starts monitoring the system clipboard and records every new text or
image into the history database. The same listener serves the history page
(/), the web API (/api/..., /ws) and the gRPC endpoint used by the CLI; the CLI also reaches
the daemon through a local IPC socket.

Config file search order:
  /etc/clipkeeper/clipkeeper.toml
  $HOME/.config/clipkeeper/clipkeeper.toml
  path supplied via --config

Precedence (lowest → highest): defaults → config file → CLIPKEEPER_* env vars → flags`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runServe(cmd.Context(), v) },
	}

	f := cmd.Flags()
	f.String("db", store.DefaultPath(), "SQLite database path")
	f.String("addr", "127.0.0.1:5000", "listen address for the web API and gRPC")
	f.String("token", "", "bearer token required by the web API and TCP gRPC (empty = no auth)")
	f.StringSlice("allow-origin", nil, "browser origins allowed to use the web API (* = any)")
	f.Duration("interval", monitor.DefaultInterval, "clipboard poll interval")
	f.Duration("stop-grace", monitor.DefaultStopGrace, "how long to wait for the monitor to stop")
	f.Bool("headless", false, "use an in-memory clipboard instead of the system clipboard")
	f.Bool("open-browser", false, "open the history page in the default browser once listening")
	f.Int("max-items", 0, "keep at most this many entries (0 = unlimited)")
	f.Duration("max-age", 0, "drop entries not seen for this long (0 = forever)")
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runServe(ctx context.Context, v *viper.Viper) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	log, logFile, err := setupLogging(v)
	if err != nil {
		return err
	}
	defer logFile.Close()

	addr := v.GetString("addr")
	token := v.GetString("token")
	headless := v.GetBool("headless")

	log.Info("clipkeeper starting",
		"version", Version,
		"addr", addr,
		"db", v.GetString("db"),
		"headless", headless,
		"auth", token != "",
	)

	st, err := store.Open(store.Options{
		Path:   v.GetString("db"),
		Logger: log.With("component", "store"),
	})
	if err != nil {
		return err
	}

	src, err := openSource(headless)
	if err != nil {
		_ = st.Close()
		return err
	}

	k, err := keeper.New(keeper.Options{
		Store:  st,
		Source: src,
		Logger: log,
		Monitor: monitor.Config{
			Interval:  v.GetDuration("interval"),
			StopGrace: v.GetDuration("stop-grace"),
		},
		MaxItems: v.GetInt("max-items"),
		MaxAge:   v.GetDuration("max-age"),
	})
	if err != nil {
		src.Close()
		_ = st.Close()
		return err
	}
	defer func() {
		if err := k.Close(); err != nil {
			log.Warn("close failed", "err", err)
		}
	}()

	gin.SetMode(gin.ReleaseMode)
	web, err := api.New(api.Dependencies{
		Keeper:       k,
		Logger:       log.With("component", "api"),
		Token:        token,
		AllowOrigins: v.GetStringSlice("allow-origin"),
	})
	if err != nil {
		return err
	}
	defer web.Close()

	svcLog := log.With("component", "grpc")
	tcpRPC := grpc.NewServer()
	grpcservice.Register(tcpRPC, grpcservice.New(k, grpcservice.Options{Token: token, Version: Version, Logger: svcLog}))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	log.Info("listening", "addr", ln.Addr())

	m := cmux.New(ln)
	grpcL := m.MatchWithWriters(cmux.HTTP2MatchHeaderFieldPrefixSendSettings("content-type", "application/grpc"))
	httpL := m.Match(cmux.Any())
	httpSrv := &http.Server{Handler: web, ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 4)
	go func() { errc <- tcpRPC.Serve(grpcL) }()
	go func() { errc <- httpSrv.Serve(httpL) }()
	go func() { errc <- m.Serve() }()

	// IPC socket for the CLI. Local and owner-restricted, so no token.
	var ipcRPC *grpc.Server
	if ipcLn, err := ipc.Listen(); err != nil {
		log.Warn("IPC socket unavailable", "err", err)
	} else {
		ipcRPC = grpc.NewServer()
		grpcservice.Register(ipcRPC, grpcservice.New(k, grpcservice.Options{Version: Version, Logger: svcLog}))
		log.Info("IPC socket listening", "path", ipc.SocketPath())
		go func() { errc <- ipcRPC.Serve(ipcLn) }()
	}

	if err := k.StartMonitoring(); err != nil {
		return err
	}
	if v.GetBool("open-browser") {
		shown := webURL(ln.Addr(), "")
		if err := openBrowser(webURL(ln.Addr(), token)); err != nil {
			log.Warn("could not open browser", "url", shown, "err", err)
		} else {
			log.Info("opened history page", "url", shown)
		}
	}
	go pruneLoop(ctx, k, log, v.GetInt("max-items") > 0 || v.GetDuration("max-age") > 0)

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case runErr = <-errc:
		log.Error("server failed", "err", runErr)
	}

	cancel()
	k.StopMonitoring()
	web.Close()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "err", err)
	}
	stopGRPC(shutdownCtx, tcpRPC)
	if ipcRPC != nil {
		stopGRPC(shutdownCtx, ipcRPC)
	}
	_ = ln.Close()

	if runErr != nil && !errors.Is(runErr, http.ErrServerClosed) && !errors.Is(runErr, net.ErrClosed) {
		return runErr
	}
	return nil
}

func openSource(headless bool) (clip.Source, error) {
	if headless {
		return clip.NewMemory(), nil
	}
	src, err := clip.New()
	if err != nil {
		return nil, fmt.Errorf("%w (use --headless to run without a system clipboard)", err)
	}
	return src, nil
}

func pruneLoop(ctx context.Context, k *keeper.Keeper, log *slog.Logger, enabled bool) {
	if !enabled {
		return
	}
	prune := func() {
		if _, err := k.Prune(ctx); err != nil && ctx.Err() == nil {
			log.Error("prune failed", "err", err)
		}
	}
	prune()

	t := time.NewTicker(pruneEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			prune()
		}
	}
}

// stopGRPC drains in-flight calls, then force-closes long-lived Watch streams.
func stopGRPC(ctx context.Context, s *grpc.Server) {
	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.Stop()
	}
}
