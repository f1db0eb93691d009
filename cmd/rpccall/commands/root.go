/*
Package commands implements the rpccall subcommands.
*/
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// ConfigPath is the YAML config file; empty means defaults and environment only.
	ConfigPath string
	// LogLevel overrides the configured log level when set.
	LogLevel string
)

// RootCmd creates the root command.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rpccall",
		Short: "rpccall sends JSON-RPC 1.0 calls over HTTP",
		Long: `rpccall sends JSON-RPC 1.0 calls over HTTP and prints the result.
Servers are reached at a fixed endpoint or discovered through etcd.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&ConfigPath, "config", "c", "", "Path to a YAML config file")
	cmd.PersistentFlags().StringVar(&LogLevel, "log-level", "", "Log level (debug, info, warn, error)")

	return cmd
}
