/*
Package main implements rpccall, a command line JSON-RPC 1.0 client.
*/
package main

import (
	"os"

	"mini-jsonrpc/cmd/rpccall/commands"
)

// Build parameters.
var Version string

func main() {
	if Version != "" {
		commands.Version = Version
	}

	rootCmd := commands.RootCmd()
	rootCmd.AddCommand(
		commands.CallCmd(),
		commands.VersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
