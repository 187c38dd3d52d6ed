package main

import (
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

// newPingCmd POSTs /api/v1/test/reachability, which wraps a ping to the
// orchestrator — the local operator's quickest check that the daemon can
// still reach the orchestrator through whatever network path the
// container sits behind.
func newPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check the daemon's reachability to the orchestrator",
		RunE:  runPing,
	}
}

func runPing(cmd *cobra.Command, _ []string) error {
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, flagAdminAddr+"/api/v1/test/reachability", nil)
	if err != nil {
		return fmt.Errorf("ping: building request: %w", err)
	}

	resp, err := adminHTTPClient().Do(req)
	if err != nil {
		return fmt.Errorf("ping: reaching %s: %w", flagAdminAddr, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ping: orchestrator unreachable: %s: %s", resp.Status, string(body))
	}

	fmt.Println("orchestrator reachable")
	return nil
}
