// Command agent is the long-lived warehouse-side execution arm of the
// orchestrator: a single binary that either runs the daemon (serve) or
// exposes a thin local operator CLI (status, ping, reload) against the
// same admin HTTP surface the daemon serves. One root command, persistent
// flags, subcommands built by newXxxCmd() functions.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagAdminAddr  string
	flagDebug      bool
	flagJSON       bool
)

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "agent",
		Short:   "Warehouse-side execution agent",
		Long:    "Long-lived agent that maintains a single event stream to the orchestrator and executes warehouse queries and storage operations on its behalf.",
		Version: version,
		// Silence Cobra's default error/usage printing; exitOnError handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "bootstrap TOML config file path")
	cmd.PersistentFlags().StringVar(&flagAdminAddr, "admin-addr", "http://127.0.0.1:8081", "admin HTTP surface address, for status/ping commands")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newPingCmd())
	cmd.AddCommand(newReloadCmd())

	return cmd
}

// buildLogger creates an slog.Logger writing to stderr at Info level, or
// Debug when debug is true. CLI flags always win over config-file level.
func buildLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// adminHTTPClient returns an HTTP client with a sensible timeout for the
// local operator CLI commands.
func adminHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
