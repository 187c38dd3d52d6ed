package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dwhagent/agent/internal/bootstrap"
)

// newReloadCmd sends SIGHUP to the running daemon (found via its PID
// file), forcing its event stream to reconnect and pick up rotated
// credentials without waiting for a heartbeat timeout.
func newReloadCmd() *cobra.Command {
	var pidFile string

	cmd := &cobra.Command{
		Use:   "reload",
		Short: "Signal the running daemon to reconnect its event stream",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if pidFile == "" {
				bootCfg, err := bootstrap.Load(flagConfigPath)
				if err != nil {
					return fmt.Errorf("reload: loading bootstrap config: %w", err)
				}
				pidFile = filepath.Join(bootCfg.DataDir, defaultPIDFileName)
			}
			if err := sendSIGHUP(pidFile); err != nil {
				return fmt.Errorf("reload: %w", err)
			}
			fmt.Println("reload signal sent")
			return nil
		},
	}

	cmd.Flags().StringVar(&pidFile, "pid-file", "", "PID file path (defaults to <data-dir>/agent.pid)")

	return cmd
}
