// clipkeeper: clipboard history daemon and CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z".
var Version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "clipkeeper",
		Short: "Clipboard history daemon",
		Long: `clipkeeper watches the system clipboard and keeps a searchable,
deduplicated history of everything copied, text and images alike.

Run "clipkeeper serve" to start the daemon. It exposes a web API with live
WebSocket updates and a gRPC endpoint used by the other sub-commands.
"history", "search", "delete", "clear" and "restore" talk to a running daemon
over the local IPC socket and fall back to the database when none is running.

Config file search order (first found wins):
  /etc/clipkeeper/clipkeeper.toml
  $HOME/.config/clipkeeper/clipkeeper.toml
  path supplied via --config

All flags can be set via CLIPKEEPER_<FLAG> env vars or config-file keys.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newServeCmd(),
		newHistoryCmd(),
		newSearchCmd(),
		newDeleteCmd(),
		newClearCmd(),
		newRestoreCmd(),
		newStatusCmd(),
		newWatchCmd(),
		newVersionCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := root.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("clipkeeper %s\n", Version)
		},
	}
}
