package config

// Configuration keys and their defaults.
const (
	KeyUseConnectionPool      = "USE_CONNECTION_POOL"
	KeyConnectionPoolSize     = "CONNECTION_POOL_SIZE"
	KeyQueriesRunnerThreads   = "QUERIES_RUNNER_THREAD_COUNT"
	KeyOpsRunnerThreads       = "OPS_RUNNER_THREAD_COUNT"
	KeyPublisherThreads       = "PUBLISHER_THREAD_COUNT"
	KeyUseSyncQueries         = "USE_SYNC_QUERIES"
	KeyStageName              = "STAGE_NAME"
	KeyPresignedURLExpiration = "PRE_SIGNED_URL_RESPONSE_EXPIRATION_SECONDS"
	KeyIsRemoteUpgradable     = "IS_REMOTE_UPGRADABLE"
	KeyAckIntervalSeconds     = "ACK_INTERVAL_SECONDS"
	KeyPushLogsIntervalSecs   = "PUSH_LOGS_INTERVAL_SECONDS"
	KeyWarehouseName          = "WAREHOUSE_NAME"
	KeyJobTypes               = "JOB_TYPES"
)

// Default values for the keys above, applied by callers (not by Store
// itself — each component knows its own default).
const (
	DefaultUseConnectionPool      = true
	DefaultConnectionPoolSize     = 3
	DefaultQueriesRunnerThreads   = 1
	DefaultOpsRunnerThreads       = 1
	DefaultPublisherThreads       = 1
	DefaultUseSyncQueries         = false
	DefaultPresignedURLExpiration = 3600
	DefaultIsRemoteUpgradable     = false
	DefaultAckIntervalSeconds     = 45
)

// AllKeys lists every config key the agent reads, for EnvPersistence's
// fixed keyspace scan.
var AllKeys = []string{
	KeyUseConnectionPool,
	KeyConnectionPoolSize,
	KeyQueriesRunnerThreads,
	KeyOpsRunnerThreads,
	KeyPublisherThreads,
	KeyUseSyncQueries,
	KeyStageName,
	KeyPresignedURLExpiration,
	KeyIsRemoteUpgradable,
	KeyAckIntervalSeconds,
	KeyPushLogsIntervalSecs,
	KeyWarehouseName,
	KeyJobTypes,
}
