// Package warehouse implements query execution against the warehouse: a
// connection-pool set keyed by job type, synchronous/asynchronous/helper-
// sync execution modes, and warehouse error classification. Every
// acquisition is scoped with a guaranteed release back to its pool.
package warehouse

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// RecycleHorizon is how long an idle pooled connection is kept before being
// discarded.
const RecycleHorizon = 30 * time.Minute

// JobTypeConfig is one entry of the JOB_TYPES config JSON:
// `{job_types: [{job_type, warehouse_name, pool_size?}, ...]}`.
type JobTypeConfig struct {
	JobType       string `json:"job_type"`
	WarehouseName string `json:"warehouse_name"`
	PoolSize      int    `json:"pool_size"`
}

type jobTypesDocument struct {
	JobTypes []JobTypeConfig `json:"job_types"`
}

// Pool wraps a *sql.DB for one warehouse/job-type combination.
type Pool struct {
	JobType       string
	WarehouseName string
	db            *sql.DB
}

// Connector opens a *sql.DB for warehouseName with maxConns concurrent
// connections. Production wiring supplies the real warehouse driver;
// local/dev and tests supply a database/sql-compatible stand-in (the
// pack's modernc.org/sqlite driver) — the interface boundary is exactly
// database/sql, so swapping drivers is a one-line change.
type Connector func(warehouseName string, maxConns int) (*sql.DB, error)

// NewPool opens a pool against warehouseName via connect, sized for
// maxConns concurrent connections, with the recycle horizon applied.
func NewPool(jobType, warehouseName string, maxConns int, connect Connector) (*Pool, error) {
	db, err := connect(warehouseName, maxConns)
	if err != nil {
		return nil, fmt.Errorf("warehouse: opening pool for %q (%s): %w", jobType, warehouseName, err)
	}
	db.SetMaxOpenConns(maxConns)
	db.SetConnMaxIdleTime(RecycleHorizon)
	return &Pool{JobType: jobType, WarehouseName: warehouseName, db: db}, nil
}

// Acquire checks out a single connection, pre-pinging it to guard against a
// dead socket surviving in the idle pool. The caller must Close the
// returned connection to release it back to the pool.
func (p *Pool) Acquire(ctx context.Context) (*sql.Conn, error) {
	conn, err := p.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("warehouse: acquiring connection: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("warehouse: connection failed liveness probe: %w", err)
	}
	return conn, nil
}

// Close closes the underlying *sql.DB.
func (p *Pool) Close() error {
	return p.db.Close()
}

// InUse reports the number of connections currently checked out of the
// pool, for the process metrics gauge.
func (p *Pool) InUse() int {
	return p.db.Stats().InUse
}

// PoolSet is the mapping {job_type -> pool} plus a default pool, built once
// at executor construction time and treated as read-only afterward.
type PoolSet struct {
	Default *Pool
	byJob   map[string]*Pool
}

// NewPoolSet builds the default pool sized from defaultMaxConns, then
// parses jobTypesJSON (the JOB_TYPES config value) if non-empty, creating
// one pool per entry. Malformed entries are skipped and logged: a config
// typo must never prevent the agent from starting.
func NewPoolSet(defaultWarehouse string, defaultMaxConns int, jobTypesJSON string, connect Connector, logger *slog.Logger) (*PoolSet, error) {
	defaultPool, err := NewPool("", defaultWarehouse, defaultMaxConns, connect)
	if err != nil {
		return nil, err
	}

	ps := &PoolSet{Default: defaultPool, byJob: make(map[string]*Pool)}

	if jobTypesJSON == "" {
		return ps, nil
	}

	var doc jobTypesDocument
	if err := json.Unmarshal([]byte(jobTypesJSON), &doc); err != nil {
		logger.Warn("warehouse: JOB_TYPES is not valid JSON, skipping job-typed pools", "error", err)
		return ps, nil
	}

	for _, entry := range doc.JobTypes {
		if entry.JobType == "" || entry.WarehouseName == "" {
			logger.Warn("warehouse: skipping malformed JOB_TYPES entry", "entry", entry)
			continue
		}
		size := entry.PoolSize
		if size <= 0 {
			size = defaultMaxConns
		}
		pool, err := NewPool(entry.JobType, entry.WarehouseName, size, connect)
		if err != nil {
			logger.Warn("warehouse: skipping job-typed pool that failed to open", "job_type", entry.JobType, "error", err)
			continue
		}
		ps.byJob[entry.JobType] = pool
	}

	return ps, nil
}

// For selects the pool for jobType, falling back to Default when jobType is
// empty or unknown.
func (ps *PoolSet) For(jobType string) *Pool {
	if jobType == "" {
		return ps.Default
	}
	if pool, ok := ps.byJob[jobType]; ok {
		return pool
	}
	return ps.Default
}

// Close closes every pool in the set.
func (ps *PoolSet) Close() {
	ps.Default.Close()
	for _, p := range ps.byJob {
		p.Close()
	}
}

// InUse reports in-use connection counts keyed by job type, with the
// default pool under "default".
func (ps *PoolSet) InUse() map[string]int {
	out := map[string]int{"default": ps.Default.InUse()}
	for jobType, p := range ps.byJob {
		out[jobType] = p.InUse()
	}
	return out
}
