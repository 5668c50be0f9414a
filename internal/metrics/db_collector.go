package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// DBStatsCollector publishes connection pool statistics of the fields database
type DBStatsCollector struct {
	db     *sqlx.DB
	logger *slog.Logger
	stopCh chan struct{}
}

// NewDBStatsCollector creates a new database stats collector
func NewDBStatsCollector(db *sqlx.DB, logger *slog.Logger) *DBStatsCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &DBStatsCollector{
		db:     db,
		logger: logger,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting database statistics at regular intervals
func (c *DBStatsCollector) Start(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				return
			}
		}
	}()

	c.logger.Info("database stats collector started", slog.Duration("interval", interval))
}

// Stop stops the database stats collector
func (c *DBStatsCollector) Stop() {
	close(c.stopCh)
	c.logger.Info("database stats collector stopped")
}

func (c *DBStatsCollector) collect() {
	if c.db == nil {
		return
	}
	stats := c.db.Stats()
	DBConnectionsOpen.Set(float64(stats.OpenConnections))
	DBConnectionsInUse.Set(float64(stats.InUse))
	DBConnectionsIdle.Set(float64(stats.Idle))
	DBConnectionsMaxOpen.Set(float64(stats.MaxOpenConnections))
}

// RecordQueryDuration records the duration of a database query
func RecordQueryDuration(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// TimeQuery is a helper function to time database queries
// Usage: defer metrics.TimeQuery("upsert_field")()
func TimeQuery(operation string) func() {
	start := time.Now()
	return func() {
		RecordQueryDuration(operation, time.Since(start))
	}
}

// PingDatabase checks database connectivity and records the result
func PingDatabase(ctx context.Context, db *sqlx.DB) error {
	defer TimeQuery("ping")()
	return db.PingContext(ctx)
}
