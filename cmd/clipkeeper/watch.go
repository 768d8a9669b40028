package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"go.klb.dev/clipkeeper/internal/history"
)

func newWatchCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:     "watch",
		Short:   "Print clipboard entries as the daemon records them",
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, transport, err := dialDaemon(v)
			if err != nil {
				return err
			}
			defer client.Close()

			asJSON := v.GetBool("json")
			if !asJSON {
				fmt.Fprintf(os.Stderr, "watching via %s, Ctrl-C to stop\n", transport)
			}
			enc := json.NewEncoder(os.Stdout)
			err = client.Watch(cmd.Context(), func(e history.Entry) {
				if asJSON {
					_ = enc.Encode(e)
					return
				}
				fmt.Printf("%d\t%s\t%s\n", e.ID, e.Kind, preview(e))
			})
			if status.Code(err) == codes.Canceled || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}

	f := cmd.Flags()
	f.String("server", "", "daemon address host:port (default: local IPC socket)")
	f.String("token", "", "bearer token for --server")
	f.Bool("json", false, "print one JSON object per entry")
	addConfigFlag(cmd)

	return cmd
}
