package config

import (
	"os"
	"strings"
)

// EnvPersistence reads the config keyspace from process environment
// variables, prefixing each key with Prefix (default "AGENT_"). It never
// supports writes — intended for use outside the warehouse container,
// where there is no config table to MERGE into.
type EnvPersistence struct {
	Prefix string
	// Keys lists every config key this persistence should attempt to read.
	// The agent's config keyspace is a small fixed set, so unlike the
	// table-backed persistence there is no way to discover keys by scanning
	// env vars without also picking up unrelated ones.
	Keys []string
}

// Load reads Prefix+key from the environment for every key in Keys,
// including only those that are actually set.
func (e EnvPersistence) Load() (map[string]string, error) {
	prefix := e.Prefix
	if prefix == "" {
		prefix = "AGENT_"
	}

	values := make(map[string]string)
	for _, key := range e.Keys {
		envKey := prefix + strings.ToUpper(key)
		if v, ok := os.LookupEnv(envKey); ok {
			values[key] = v
		}
	}
	return values, nil
}

// Write always fails: environment-backed config is read-only.
func (e EnvPersistence) Write(map[string]string) error {
	return ErrReadOnly
}
