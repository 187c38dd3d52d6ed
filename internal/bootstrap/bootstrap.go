// Package bootstrap resolves the agent's process-level startup
// configuration: server bind address, backend orchestrator URL, debug
// flag, and data-directory layout. This is a distinct config domain from
// the runtime Config Store (internal/config, C6) — it exists only to get
// the process far enough to build the Agent, which then owns its own
// config keyspace. Resolution is layered: an optional TOML file under
// env var overrides, env always wins.
package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the resolved process bootstrap configuration.
type Config struct {
	ServerHost  string `toml:"server_host"`
	ServerPort  int    `toml:"server_port"`
	BackendURL  string `toml:"backend_service_url"`
	Debug       bool   `toml:"debug"`
	SnowflakeHost string `toml:"snowflake_host"`
	DataDir     string `toml:"data_dir"`
}

// Default bootstrap values, applied before the TOML file and env
// overrides are layered on top.
func Default() Config {
	return Config{
		ServerHost: "0.0.0.0",
		ServerPort: 8081,
		DataDir:    "/var/lib/dwhagent",
	}
}

// Load resolves Config from, in increasing priority: built-in defaults,
// an optional TOML file at path (skipped silently if it doesn't exist —
// the file is an optional convenience, not a requirement), then process
// environment variables.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return Config{}, fmt.Errorf("bootstrap: parsing %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("bootstrap: stat %s: %w", path, err)
		}
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}

// applyEnvOverrides mutates cfg in place from the environment variables:
// SERVER_HOST, SERVER_PORT, BACKEND_SERVICE_URL, DEBUG, SNOWFLAKE_HOST,
// AGENT_DATA_DIR.
func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("SERVER_HOST"); ok {
		cfg.ServerHost = v
	}
	if v, ok := os.LookupEnv("SERVER_PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.ServerPort = port
		}
	}
	if v, ok := os.LookupEnv("BACKEND_SERVICE_URL"); ok {
		cfg.BackendURL = v
	}
	if v, ok := os.LookupEnv("DEBUG"); ok {
		cfg.Debug = strings.EqualFold(v, "true")
	}
	if v, ok := os.LookupEnv("SNOWFLAKE_HOST"); ok {
		cfg.SnowflakeHost = v
	}
	if v, ok := os.LookupEnv("AGENT_DATA_DIR"); ok {
		cfg.DataDir = v
	}
}

// InContainer reports whether the process is running inside the
// warehouse container (SNOWFLAKE_HOST set) as opposed to local dev
// outside it. Several components (secrets, storage presigned URLs) branch
// on this.
func (c Config) InContainer() bool {
	return c.SnowflakeHost != ""
}

// Addr returns the host:port the admin HTTP server should bind to.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}
