package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/dwhagent/agent/internal/ack"
	"github.com/dwhagent/agent/internal/api"
	"github.com/dwhagent/agent/internal/bootstrap"
	"github.com/dwhagent/agent/internal/config"
	"github.com/dwhagent/agent/internal/events"
	"github.com/dwhagent/agent/internal/orchestrator"
	"github.com/dwhagent/agent/internal/result"
	"github.com/dwhagent/agent/internal/router"
	"github.com/dwhagent/agent/internal/secrets"
	"github.com/dwhagent/agent/internal/storage"
	"github.com/dwhagent/agent/internal/telemetry"
	"github.com/dwhagent/agent/internal/warehouse"
)

const (
	defaultPIDFileName   = "agent.pid"
	defaultConfigDBName  = "config.db"
	heartbeatInactivity  = 120 * time.Second
	streamPath           = "/stream"
	defaultMetricsPoolID = "default"
)

func newServeCmd() *cobra.Command {
	var pidFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the agent daemon",
		Long:  "Starts the event-receiver/scheduler/executor core and the admin HTTP surface, and blocks until a signal is received.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, pidFile)
		},
	}

	cmd.Flags().StringVar(&pidFile, "pid-file", "", "PID file path (defaults to <data-dir>/agent.pid)")

	return cmd
}

func runServe(cmd *cobra.Command, pidFile string) error {
	bootCfg, err := bootstrap.Load(flagConfigPath)
	if err != nil {
		return fmt.Errorf("serve: loading bootstrap config: %w", err)
	}
	if flagDebug {
		bootCfg.Debug = true
	}

	logger := buildLogger(bootCfg.Debug)

	if pidFile == "" {
		pidFile = filepath.Join(bootCfg.DataDir, defaultPIDFileName)
	}
	cleanupPID, err := writePIDFile(pidFile)
	if err != nil {
		return err
	}
	defer cleanupPID()

	agent, server, closeAll, err := wireAgent(bootCfg, logger)
	if err != nil {
		return fmt.Errorf("serve: wiring agent: %w", err)
	}
	defer closeAll()

	ctx := shutdownContext(cmd.Context(), logger)
	go watchReload(ctx, logger, agent.Reload)

	if bootCfg.InContainer() {
		go func() {
			if err := secrets.WatchSecretFile(ctx, secrets.DefaultSecretStringPath, logger, func() {
				if err := agent.Reload(ctx); err != nil {
					logger.Error("reload after secret rotation failed", "error", err)
				}
			}); err != nil {
				logger.Warn("secret file watch ended", "error", err)
			}
		}()
	}

	httpServer := &http.Server{
		Addr:              bootCfg.Addr(),
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("admin HTTP surface listening", "addr", bootCfg.Addr())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("serve: admin HTTP server: %w", err)
		}
	}()

	go func() {
		if err := agent.Start(ctx); err != nil {
			logger.Error("serve: agent stream start failed, will keep reconnecting in background", "error", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	agent.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// wireAgent builds every component in dependency order (config, then the
// orchestrator client, then warehouse pools and the services built on them,
// then the router that owns them all) and returns the assembled router.Agent and its HTTP surface.
func wireAgent(bootCfg bootstrap.Config, logger *slog.Logger) (*router.Agent, *api.Server, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	configStore, configDB, err := buildConfigStore(bootCfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	if configDB != nil {
		closers = append(closers, func() { configDB.Close() })
	}

	credentials := func() map[string]string {
		return secrets.OrchestratorCredentials(secrets.DefaultSecretStringPath, !bootCfg.InContainer(), logger)
	}

	orchClient := orchestrator.NewClient(bootCfg.BackendURL, credentials, logger)

	connector := func(warehouseName string, maxConns int) (*sql.DB, error) {
		return sql.Open("sqlite", warehouseDSN(bootCfg, warehouseName))
	}
	poolSize := configStore.GetInt(config.KeyConnectionPoolSize, config.DefaultConnectionPoolSize)
	warehouseName := configStore.GetString(config.KeyWarehouseName, "default")
	jobTypesJSON, _ := configStore.GetOptionalString(config.KeyJobTypes)
	pools, err := warehouse.NewPoolSet(warehouseName, poolSize, jobTypesJSON, connector, logger)
	if err != nil {
		closeAll()
		return nil, nil, nil, fmt.Errorf("serve: building connection pool set: %w", err)
	}
	closers = append(closers, pools.Close)

	execConfig := warehouse.ExecutorConfig{
		DirectSync:      !bootCfg.InContainer(),
		UseSyncQueries:  configStore.GetBool(config.KeyUseSyncQueries, config.DefaultUseSyncQueries),
		HelperProcName:  "RUN_QUERY_SYNC_HELPER",
		AsyncProcName:   "RUN_QUERY_ASYNC",
		RestartProcName: "RESTART_SERVICE_ASYNC",
	}
	executor := warehouse.NewExecutor(pools, execConfig, logger)

	stageName := configStore.GetString(config.KeyStageName, defaultStageName(bootCfg))
	blobClient := storage.NewStageClient(pools.Default, stageName, !bootCfg.InContainer(), logger)
	storageService := storage.New(blobClient)

	presignedExpiration := time.Duration(configStore.GetInt(config.KeyPresignedURLExpiration, config.DefaultPresignedURLExpiration)) * time.Second
	resultProcessor := result.New(blobClient, presignedExpiration, logger)

	ackInterval := time.Duration(configStore.GetInt(config.KeyAckIntervalSeconds, config.DefaultAckIntervalSeconds)) * time.Second
	ackSender := ack.New(ackInterval, func(ctx context.Context, operationID string) error {
		return orchClient.SendAck(ctx, operationID)
	}, logger)

	logsService := telemetry.NewLogsService(pools.Default)
	metricsFetcher := telemetry.DNSFetcher{Host: discoveryHost(warehouseName)}
	metricsService := telemetry.NewMetricsService(metricsFetcher, &http.Client{Timeout: 10 * time.Second}, logger)

	receiver := events.NewSSEReceiver(strings.TrimSuffix(bootCfg.BackendURL, "/")+streamPath, &http.Client{Timeout: 0}, credentials, logger)
	eventsClient := events.NewClient(receiver, heartbeatInactivity, logger)

	localMetrics := telemetry.NewRegistry()

	agent := router.New(router.Config{
		Events:               eventsClient,
		ConfigStore:          configStore,
		Executor:             executor,
		Orchestrator:         orchClient,
		Storage:              storageService,
		Result:               resultProcessor,
		Acks:                 ackSender,
		Logs:                 logsService,
		Metrics:              metricsService,
		LocalMetrics:         localMetrics,
		Logger:               logger,
		QueriesRunnerThreads: configStore.GetInt(config.KeyQueriesRunnerThreads, config.DefaultQueriesRunnerThreads),
		OpsRunnerThreads:     configStore.GetInt(config.KeyOpsRunnerThreads, config.DefaultOpsRunnerThreads),
		PublisherThreads:     configStore.GetInt(config.KeyPublisherThreads, config.DefaultPublisherThreads),
	})

	server := api.NewServer(agent, logger)

	return agent, server, closeAll, nil
}

// buildConfigStore selects TablePersistence (in-container, backed by a
// local sqlite file standing in for the warehouse config table) or
// EnvPersistence (local dev, AGENT_-prefixed env vars).
func buildConfigStore(bootCfg bootstrap.Config, logger *slog.Logger) (*config.Store, *sql.DB, error) {
	if !bootCfg.InContainer() {
		store, err := config.New(config.EnvPersistence{Keys: config.AllKeys}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("serve: building env-backed config store: %w", err)
		}
		return store, nil, nil
	}

	if err := os.MkdirAll(bootCfg.DataDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("serve: creating data dir: %w", err)
	}
	dbPath := filepath.Join(bootCfg.DataDir, defaultConfigDBName)
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("serve: opening config database: %w", err)
	}
	if err := config.MigrateTable(db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("serve: migrating config table: %w", err)
	}
	store, err := config.New(config.TablePersistence{DB: db}, logger)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("serve: building table-backed config store: %w", err)
	}
	return store, db, nil
}

// warehouseDSN maps a logical warehouse name to a local sqlite file under
// the data directory — the pure-Go stand-in for the customer's warehouse
// driver behind the same database/sql surface.
func warehouseDSN(bootCfg bootstrap.Config, warehouseName string) string {
	if warehouseName == "" {
		warehouseName = "default"
	}
	if !bootCfg.InContainer() {
		return ":memory:"
	}
	return filepath.Join(bootCfg.DataDir, "warehouse_"+warehouseName+".db")
}

func defaultStageName(bootCfg bootstrap.Config) string {
	if bootCfg.InContainer() {
		return "AGENT_STAGE"
	}
	return "LOCAL_STAGE"
}

// discoveryHost builds the monitor discovery hostname for a warehouse pool:
// "discover.monitor.<pool>.snowflakecomputing.internal".
func discoveryHost(pool string) string {
	if pool == "" {
		pool = defaultMetricsPoolID
	}
	return fmt.Sprintf("discover.monitor.%s.snowflakecomputing.internal", pool)
}
