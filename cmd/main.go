package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "pelusa-relay",
	Short: "Real-time chat delivery server",
	Long: "Websocket relay that routes chat frames between connected users, retries until acked\n" +
		"and buffers undelivered messages until the recipient reconnects.",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a yaml or toml config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
