package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipkeeper/internal/clip"
)

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid entry id %q", s)
	}
	return id, nil
}

func newDeleteCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:     "delete ID",
		Short:   "Delete one history entry",
		Args:    cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := connect(v)
			if err != nil {
				return err
			}
			defer c.Close()
			ok, err := c.backend.Delete(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("delete: %w", err)
			}
			if !ok {
				return fmt.Errorf("entry %d not found", id)
			}
			fmt.Printf("Deleted entry %d.\n", id)
			return nil
		},
	}
	addClientFlags(cmd)
	return cmd
}

func newClearCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:     "clear",
		Short:   "Delete the whole clipboard history",
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !v.GetBool("yes") && !confirm("Delete the entire clipboard history?") {
				return errors.New("aborted")
			}
			c, err := connect(v)
			if err != nil {
				return err
			}
			defer c.Close()
			if err := c.backend.Clear(cmd.Context()); err != nil {
				return fmt.Errorf("clear: %w", err)
			}
			fmt.Println("History cleared.")
			return nil
		},
	}
	cmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
	addClientFlags(cmd)
	return cmd
}

func newRestoreCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "restore ID",
		Short: "Copy a history entry back to the clipboard",
		Long: `Writes the entry back to the system clipboard. With a daemon running the
daemon's clipboard is used; otherwise the local clipboard is written directly.

On Linux the clipboard content belongs to the process that wrote it, so
without a daemon restore stays in the foreground until another program
takes the clipboard over, --hold elapses, or Ctrl-C is pressed.`,
		Args:    cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := connect(v)
			if err != nil {
				return err
			}
			defer c.Close()

			if c.rpc != nil {
				if err := c.rpc.Restore(cmd.Context(), id); err != nil {
					return fmt.Errorf("restore: %w", err)
				}
			} else {
				e, err := c.backend.Get(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("restore: %w", err)
				}
				src, err := clip.New()
				if err != nil {
					return fmt.Errorf("restore: %w", err)
				}
				defer src.Close()
				if err := src.Write(e.Content, e.Kind); err != nil {
					return fmt.Errorf("restore: %w", err)
				}
				fmt.Printf("Entry %d copied to the clipboard.\n", id)
				return holdClipboard(cmd.Context(), src, v.GetDuration("hold"), os.Stderr)
			}
			fmt.Printf("Entry %d copied to the clipboard.\n", id)
			return nil
		},
	}
	cmd.Flags().Duration("hold", time.Minute, "without a daemon on Linux, keep the restored entry available this long (0 = exit at once)")
	addClientFlags(cmd)
	return cmd
}

// holdClipboard keeps a locally written selection alive until another
// program replaces it, hold elapses, or ctx is cancelled. Content served by
// this process is gone once it exits.
func holdClipboard(ctx context.Context, src clip.Source, hold time.Duration, w io.Writer) error {
	h, ok := src.(clip.Holder)
	if !ok || hold <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, hold)
	defer cancel()

	fmt.Fprintf(w, "Keeping the clipboard for up to %s (Ctrl-C to release; run \"clipkeeper serve\" to keep entries without waiting).\n", hold)
	err := h.Hold(ctx)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		fmt.Fprintf(w, "Released the clipboard after %s.\n", hold)
		return nil
	case errors.Is(err, context.Canceled):
		fmt.Fprintln(w, "Released the clipboard.")
		return nil
	default:
		return fmt.Errorf("restore: %w", err)
	}
}

func confirm(prompt string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N] ", prompt)
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
