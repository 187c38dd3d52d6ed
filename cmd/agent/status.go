package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

// newStatusCmd hits the same /api/v1/test/health endpoint the admin UI
// polls, for operators who don't have it handy.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the running daemon's health snapshot",
		Long:  "GETs /api/v1/test/health from the admin HTTP surface and prints the CPU count, Go runtime version, and environment allowlist the daemon reports.",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, _ []string) error {
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, flagAdminAddr+"/api/v1/test/health", nil)
	if err != nil {
		return fmt.Errorf("status: building request: %w", err)
	}

	resp, err := adminHTTPClient().Do(req)
	if err != nil {
		return fmt.Errorf("status: reaching %s: %w", flagAdminAddr, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("status: reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status: daemon returned %s: %s", resp.Status, string(body))
	}

	if flagJSON {
		fmt.Println(string(body))
		return nil
	}

	var pretty map[string]any
	if err := json.Unmarshal(body, &pretty); err != nil {
		fmt.Println(string(body))
		return nil
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		fmt.Println(string(body))
		return nil
	}
	fmt.Println(string(out))
	return nil
}
