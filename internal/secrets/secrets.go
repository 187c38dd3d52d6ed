// Package secrets resolves the credentials the agent needs to talk to the
// orchestrator and to the warehouse, reading them from the files the
// container runtime mounts in: read-only, JSON-shaped, permissive about a
// missing file (falls back to a sentinel rather than failing startup).
package secrets

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

// Header names the orchestrator expects on every request.
const (
	HeaderMCDID    = "x-mcd-id"
	HeaderMCDToken = "x-mcd-token"
)

// Default paths, overridable for tests.
const (
	DefaultSecretStringPath  = "/usr/local/creds/secret_string"
	DefaultWarehouseTokenPath = "/snowflake/session/token"
)

const (
	localTokenID     = "local-token-id"
	localTokenSecret = "local-token-secret"
	noTokenID        = "no-token-id"
	noTokenSecret    = "no-token-secret"
)

// secretString is the on-disk JSON shape at DefaultSecretStringPath.
type secretString struct {
	MCDID    string `json:"mcd_id"`
	MCDToken string `json:"mcd_token"`
}

// OrchestratorCredentials resolves the x-mcd-id / x-mcd-token header pair.
// When local is true (running outside the warehouse container), it returns
// the local fallback tokens unconditionally — there is nothing mounted to
// read in that mode. Otherwise it reads path; a missing or malformed file
// logs a warning and falls back to sentinel "no token" values rather than
// failing startup — the orchestrator will simply reject requests carrying
// the sentinel.
func OrchestratorCredentials(path string, local bool, logger *slog.Logger) map[string]string {
	if local {
		return map[string]string{
			HeaderMCDID:    localTokenID,
			HeaderMCDToken: localTokenSecret,
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("no secret string file found, using sentinel tokens", "path", path, "error", err)
		return fallbackCredentials()
	}

	var parsed secretString
	if err := json.Unmarshal(data, &parsed); err != nil {
		logger.Error("failed to parse secret string JSON", "path", path, "error", err)
		return fallbackCredentials()
	}

	if parsed.MCDID == "" || parsed.MCDToken == "" {
		logger.Warn("secret string missing mcd_id/mcd_token keys", "path", path)
		return fallbackCredentials()
	}

	return map[string]string{
		HeaderMCDID:    parsed.MCDID,
		HeaderMCDToken: parsed.MCDToken,
	}
}

func fallbackCredentials() map[string]string {
	return map[string]string{
		HeaderMCDID:    noTokenID,
		HeaderMCDToken: noTokenSecret,
	}
}

// WarehouseLoginToken reads the warehouse's OAuth session token file. Unlike
// OrchestratorCredentials, there is no fallback here — a missing token file
// means the process cannot authenticate to the warehouse at all, so the
// caller should treat this as a hard connection error.
func WarehouseLoginToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("secrets: reading warehouse session token %s: %w", path, err)
	}
	return string(data), nil
}
