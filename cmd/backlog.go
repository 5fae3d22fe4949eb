package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pelusa-v/pelusa-relay/internal/chat"
)

func init() {
	rootCmd.AddCommand(backlogCmd)
}

var backlogCmd = &cobra.Command{
	Use:   "backlog <user-id>",
	Short: "Print a user's undelivered messages",
	Long:  "Lists the offline records buffered for a user, oldest first, without consuming them.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || userID <= 0 {
			return fmt.Errorf("invalid user id %q", args[0])
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := cfg.Log.NewLogger(cmd.ErrOrStderr())

		b, err := openBackends(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer b.Close()

		list, err := chat.Backlog(cmd.Context(), b.offline, userID)
		if err != nil {
			return fmt.Errorf("read backlog: %w", err)
		}
		return printBacklog(cmd.OutOrStdout(), list)
	},
}

func printBacklog(w io.Writer, list []chat.BacklogEntry) error {
	if len(list) == 0 {
		_, err := fmt.Fprintln(w, "No buffered messages.")
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(list)
}
