// Package main provides the mate command line client. It attaches to a remote
// task session, starts the task and relays progress and input between the
// terminal and the session.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0" // Version of the mate client

var rootCmd = &cobra.Command{
	Use:     "mate",
	Short:   "Client for remote task sessions",
	Long:    `Mate connects to a remote task session over WebSocket, starts a task and follows it to completion.`,
	Version: version,

	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is ./mate.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "show message details and write logs to stderr")
	rootCmd.AddCommand(newRunCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
