package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newStatusCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Long: `Displays the state of the running clipkeeper daemon.

The request is sent via the IPC socket unless --server targets a daemon
directly over TCP.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, transport, err := dialDaemon(v)
			if err != nil {
				return err
			}
			defer client.Close()

			resp, err := client.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}
			if v.GetBool("json") {
				enc, _ := json.MarshalIndent(resp, "", "  ")
				fmt.Println(string(enc))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 1, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Transport:\t%s\n", transport)
			fmt.Fprintf(w, "Version:\t%s\n", resp.Version)
			fmt.Fprintf(w, "Monitor:\t%s\n", resp.Monitor)
			fmt.Fprintf(w, "Clipboard:\t%s\n", resp.Source)
			fmt.Fprintf(w, "Entries:\t%d\n", resp.Entries)
			fmt.Fprintf(w, "Observers:\t%d\n", resp.Observers)
			return w.Flush()
		},
	}

	f := cmd.Flags()
	f.String("server", "", "daemon address host:port (default: local IPC socket)")
	f.String("token", "", "bearer token for --server")
	f.Bool("json", false, "output raw JSON")
	addConfigFlag(cmd)

	return cmd
}
