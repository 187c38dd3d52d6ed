package bootstrap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWhenNoFileAndNoEnv(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.ServerHost)
	assert.Equal(t, 8081, cfg.ServerPort)
	assert.False(t, cfg.Debug)
	assert.False(t, cfg.InContainer())
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_TOMLFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
server_host = "127.0.0.1"
server_port = 9090
backend_service_url = "https://orchestrator.example.com"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.ServerHost)
	assert.Equal(t, 9090, cfg.ServerPort)
	assert.Equal(t, "https://orchestrator.example.com", cfg.BackendURL)
}

func TestLoad_EnvOverridesTOMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.toml")
	require.NoError(t, os.WriteFile(path, []byte(`server_port = 9090`), 0o644))

	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("DEBUG", "True")
	t.Setenv("SNOWFLAKE_HOST", "warehouse.internal")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.ServerPort)
	assert.True(t, cfg.Debug)
	assert.True(t, cfg.InContainer())
}

func TestConfig_Addr(t *testing.T) {
	cfg := Config{ServerHost: "0.0.0.0", ServerPort: 8081}
	assert.Equal(t, "0.0.0.0:8081", cfg.Addr())
}
