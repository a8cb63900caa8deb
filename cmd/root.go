package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the mcp-chaos-rig application.
// It is the entry point when the binary is called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "mcp-chaos-rig",
	Short: "A controllable fault-injection MCP server for exercising MCP clients",
	Long: `mcp-chaos-rig runs a deliberately misbehaving MCP server so that client
implementations can be exercised against authentication failures, capability
churn, latency and probabilistic tool failures.

Every fault is driven by a control API: switch the authentication mode at
runtime (closing all open sessions), force auth rejections, stretch request
latency, make tool calls fail with a configurable probability, and toggle or
re-version individual tools while sessions stay connected.`,
	// SilenceUsage prevents cobra from printing usage on errors the
	// application already reports itself.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
// Called from the main package to inject the build version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
