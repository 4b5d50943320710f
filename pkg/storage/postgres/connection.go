package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/shiftdeck/shiftdeck/pkg/observability"
)

// ConnectionManager manages the primary PostgreSQL connection and optional
// read replicas. Writes go to Primary; reads may use Replica, which
// round-robins across healthy replicas and falls back to the primary.
type ConnectionManager struct {
	primary  *sql.DB
	replicas []*sql.DB
	current  uint32
	mu       sync.RWMutex
	config   ConnectionConfig
	log      *observability.Logger
}

// ConnectionConfig holds database connection configuration
type ConnectionConfig struct {
	PrimaryURL   string
	ReplicaURLs  []string
	MaxOpenConns int
	MaxIdleConns int
	ConnLifetime time.Duration
	PingTimeout  time.Duration
}

// NewConnectionManager connects to the primary and any configured replicas.
// A failing replica is skipped; a failing primary is fatal.
func NewConnectionManager(config ConnectionConfig, log *observability.Logger) (*ConnectionManager, error) {
	if config.PingTimeout <= 0 {
		config.PingTimeout = 5 * time.Second
	}

	cm := &ConnectionManager{config: config, log: log}

	primary, err := open(config, config.PrimaryURL, config.MaxOpenConns)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to primary: %w", err)
	}
	cm.primary = primary

	for i, replicaURL := range config.ReplicaURLs {
		maxConns := config.MaxOpenConns / 2
		if maxConns < 2 {
			maxConns = 2
		}
		replica, err := open(config, replicaURL, maxConns)
		if err != nil {
			log.WithError(err).WithField("replica", i).Warn("skipping unreachable replica")
			continue
		}
		cm.replicas = append(cm.replicas, replica)
	}

	log.WithFields(map[string]interface{}{
		"replicas": len(cm.replicas),
	}).Info("database connections established")

	return cm, nil
}

func open(config ConnectionConfig, url string, maxConns int) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), config.PingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping: %w", err)
	}
	return db, nil
}

// Primary returns the primary connection, for writes
func (cm *ConnectionManager) Primary() *sql.DB {
	return cm.primary
}

// Replica returns a read replica via round-robin, or the primary when no
// replicas are configured
func (cm *ConnectionManager) Replica() *sql.DB {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if len(cm.replicas) == 0 {
		return cm.primary
	}
	index := atomic.AddUint32(&cm.current, 1)
	return cm.replicas[int(index%uint32(len(cm.replicas)))]
}

// HealthCheck pings the primary and reports whether all replicas are down
func (cm *ConnectionManager) HealthCheck(ctx context.Context) error {
	if err := cm.primary.PingContext(ctx); err != nil {
		return fmt.Errorf("primary unhealthy: %w", err)
	}

	cm.mu.RLock()
	replicas := make([]*sql.DB, len(cm.replicas))
	copy(replicas, cm.replicas)
	cm.mu.RUnlock()

	if len(replicas) == 0 {
		return nil
	}
	var healthy int
	for _, replica := range replicas {
		if err := replica.PingContext(ctx); err == nil {
			healthy++
		}
	}
	if healthy == 0 {
		return fmt.Errorf("all %d replicas unhealthy", len(replicas))
	}
	return nil
}

// PruneUnhealthyReplicas drops replicas that fail a ping, returning the
// number removed
func (cm *ConnectionManager) PruneUnhealthyReplicas(ctx context.Context) int {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	healthy := cm.replicas[:0]
	removed := 0
	for _, replica := range cm.replicas {
		if err := replica.PingContext(ctx); err != nil {
			replica.Close()
			removed++
		} else {
			healthy = append(healthy, replica)
		}
	}
	cm.replicas = healthy
	return removed
}

// StartHealthCheckRoutine periodically prunes unhealthy replicas until ctx
// is cancelled
func (cm *ConnectionManager) StartHealthCheckRoutine(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				checkCtx, cancel := context.WithTimeout(context.Background(), cm.config.PingTimeout)
				removed := cm.PruneUnhealthyReplicas(checkCtx)
				cancel()
				if removed > 0 {
					cm.log.WithField("removed", removed).Warn("pruned unhealthy replicas")
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stats returns pool statistics for the primary and each replica
func (cm *ConnectionManager) Stats() ConnectionStats {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	stats := ConnectionStats{Primary: cm.primary.Stats()}
	for _, replica := range cm.replicas {
		stats.Replicas = append(stats.Replicas, replica.Stats())
	}
	return stats
}

// ConnectionStats holds statistics for all database connections
type ConnectionStats struct {
	Primary  sql.DBStats
	Replicas []sql.DBStats
}

// Close closes the primary and all replica connections
func (cm *ConnectionManager) Close() error {
	var errs []error
	if err := cm.primary.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close primary: %w", err))
	}

	cm.mu.Lock()
	replicas := cm.replicas
	cm.replicas = nil
	cm.mu.Unlock()

	for i, replica := range replicas {
		if err := replica.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close replica %d: %w", i, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("connection close errors: %v", errs)
	}
	return nil
}
