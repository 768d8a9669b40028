package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipkeeper/internal/history"
)

const previewWidth = 60

func newHistoryCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List clipboard history, most recent first",
		Long: `Lists recorded clipboard entries, most recently copied first.

The request goes to a running daemon over the IPC socket (or --server); with
no daemon the database is read directly.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := connect(v)
			if err != nil {
				return err
			}
			defer c.Close()
			items, err := c.backend.List(cmd.Context(), v.GetInt("limit"), v.GetInt("offset"))
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}
			return printEntries(items, v.GetBool("json"))
		},
	}

	f := cmd.Flags()
	f.Int("limit", 20, "maximum number of entries")
	f.Int("offset", 0, "skip this many entries")
	f.Bool("json", false, "output raw JSON")
	addClientFlags(cmd)

	return cmd
}

func newSearchCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:     "search PATTERN",
		Short:   "Find history entries containing PATTERN",
		Long:    `Lists entries whose content contains PATTERN (ASCII case-insensitive), most recent first.`,
		Args:    cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := connect(v)
			if err != nil {
				return err
			}
			defer c.Close()
			items, err := c.backend.Search(cmd.Context(), args[0], v.GetInt("limit"))
			if err != nil {
				return fmt.Errorf("search: %w", err)
			}
			return printEntries(items, v.GetBool("json"))
		},
	}

	f := cmd.Flags()
	f.Int("limit", 20, "maximum number of entries")
	f.Bool("json", false, "output raw JSON")
	addClientFlags(cmd)

	return cmd
}

func printEntries(items []history.Entry, asJSON bool) error {
	if asJSON {
		if items == nil {
			items = []history.Entry{}
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	}
	if len(items) == 0 {
		fmt.Println("No entries.")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 1, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "ID\tKIND\tLAST COPIED\tCONTENT\n")
	_, _ = fmt.Fprintf(tw, "--\t----\t-----------\t-------\n")
	for _, e := range items {
		_, _ = fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", e.ID, e.Kind, fmtAge(e.ObservedAt), preview(e))
	}
	return tw.Flush()
}

func preview(e history.Entry) string {
	if e.Kind == history.KindImage {
		return fmt.Sprintf("[image, %d bytes base64]", len(e.Content))
	}
	s := strings.Join(strings.Fields(e.Content), " ")
	r := []rune(s)
	if len(r) > previewWidth {
		return string(r[:previewWidth-1]) + "…"
	}
	return s
}

func fmtAge(t time.Time) string {
	age := time.Since(t).Round(time.Second)
	switch {
	case age < time.Minute:
		return fmt.Sprintf("%ds ago", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 24*time.Hour:
		return t.Format("15:04:05")
	default:
		return t.Format("2006-01-02 15:04")
	}
}
