package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Typewise/mcp-chaos-rig/internal/app"

	"github.com/spf13/cobra"
)

// serveRigAddr is the listen address for the MCP + OAuth surface.
var serveRigAddr string

// serveControlAddr is the listen address for the control API.
var serveControlAddr string

// serveConfigPath optionally points at a yaml file with the startup
// configuration. All values can still be mutated at runtime through the
// control API.
var serveConfigPath string

// serveDebug enables verbose logging across the application.
var serveDebug bool

// serveCmd starts the chaos rig: the MCP endpoint, the authorization-code
// flow endpoints and the control API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chaos rig server",
	Long: `Starts the chaos rig with two listeners:

  - the rig listener serving the MCP streamable HTTP endpoint (/mcp) and
    the authorization-code flow surface (/authorize, /token, /introspect,
    OAuth discovery documents)
  - the control listener serving the JSON control API (/api/...) used to
    reconfigure the rig while clients stay connected

The process runs until interrupted. All state (sessions, pending
authorizations, issued tokens, the contact records) lives in memory and is
discarded on restart.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

// runServe is the main entry point for the serve command.
func runServe(cmd *cobra.Command, args []string) error {
	application, err := app.NewApplication(app.Options{
		RigAddr:     serveRigAddr,
		ControlAddr: serveControlAddr,
		ConfigPath:  serveConfigPath,
		Debug:       serveDebug,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return application.Run(ctx)
}

func init() {
	serveCmd.Flags().StringVar(&serveRigAddr, "rig-addr", "localhost:9090", "Listen address for the MCP and OAuth endpoints")
	serveCmd.Flags().StringVar(&serveControlAddr, "control-addr", "localhost:9091", "Listen address for the control API")
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Optional yaml file with the startup configuration")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd)
}
