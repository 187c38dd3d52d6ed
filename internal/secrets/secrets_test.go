package secrets

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOrchestratorCredentials_Local(t *testing.T) {
	creds := OrchestratorCredentials("/does/not/matter", true, discardLogger())
	assert.Equal(t, localTokenID, creds[HeaderMCDID])
	assert.Equal(t, localTokenSecret, creds[HeaderMCDToken])
}

func TestOrchestratorCredentials_ValidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secret_string")
	require.NoError(t, os.WriteFile(path, []byte(`{"mcd_id":"abc","mcd_token":"xyz"}`), 0o600))

	creds := OrchestratorCredentials(path, false, discardLogger())
	assert.Equal(t, "abc", creds[HeaderMCDID])
	assert.Equal(t, "xyz", creds[HeaderMCDToken])
}

func TestOrchestratorCredentials_MissingFile(t *testing.T) {
	creds := OrchestratorCredentials(filepath.Join(t.TempDir(), "missing"), false, discardLogger())
	assert.Equal(t, noTokenID, creds[HeaderMCDID])
	assert.Equal(t, noTokenSecret, creds[HeaderMCDToken])
}

func TestOrchestratorCredentials_MalformedJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secret_string")
	require.NoError(t, os.WriteFile(path, []byte(`not json`), 0o600))

	creds := OrchestratorCredentials(path, false, discardLogger())
	assert.Equal(t, noTokenID, creds[HeaderMCDID])
}

func TestOrchestratorCredentials_MissingKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secret_string")
	require.NoError(t, os.WriteFile(path, []byte(`{"mcd_id":"abc"}`), 0o600))

	creds := OrchestratorCredentials(path, false, discardLogger())
	assert.Equal(t, noTokenID, creds[HeaderMCDID])
}

func TestWarehouseLoginToken(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "token")
	require.NoError(t, os.WriteFile(path, []byte("sf-token-value"), 0o600))

	token, err := WarehouseLoginToken(path)
	require.NoError(t, err)
	assert.Equal(t, "sf-token-value", token)
}

func TestWarehouseLoginToken_Missing(t *testing.T) {
	_, err := WarehouseLoginToken(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
