package router

import (
	"os"
	"runtime"
)

// healthEnvAllowlist names the environment variables reported by
// healthSnapshot. Fixed rather than configurable, since the health
// endpoint is meant to answer "is this deployment pointed at the warehouse
// and orchestrator I expect", not to echo arbitrary process environment.
var healthEnvAllowlist = []string{
	"SNOWFLAKE_ACCOUNT",
	"SNOWFLAKE_DATABASE",
	"SNOWFLAKE_SCHEMA",
	"SNOWFLAKE_WAREHOUSE",
	"SNOWFLAKE_HOST",
	"BACKEND_SERVICE_URL",
}

func healthSnapshot() map[string]any {
	env := make(map[string]string, len(healthEnvAllowlist))
	for _, key := range healthEnvAllowlist {
		if v, ok := os.LookupEnv(key); ok {
			env[key] = v
		}
	}
	return map[string]any{
		"cpu_count":   runtime.NumCPU(),
		"go_version":  runtime.Version(),
		"environment": env,
	}
}
