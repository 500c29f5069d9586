// Package metrics provides Prometheus metrics for the migration engine.
// This package is internal and should not be imported outside this module.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/kilnhq/migrator/internal/migration"
)

var _ migration.Metrics = (*Collector)(nil)

// Collector is the process-wide metrics sink: migration step outcomes,
// reservation contention, and the underlying connection pool's health.
type Collector struct {
	migrationsTotal     *prometheus.CounterVec
	migrationDuration    *prometheus.HistogramVec
	reservationsTotal    *prometheus.CounterVec

	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec
	dbQueryDuration   *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector registers the collector's metrics under namespace and
// returns it ready for use.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.migrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migrations_total",
			Help:      "Total number of migration steps, by direction, kind, and outcome status",
		},
		[]string{"direction", "kind", "status"},
	)

	c.migrationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "migration_duration_seconds",
			Help:      "Migration step duration in seconds, by direction and kind",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 60, 300},
		},
		[]string{"direction", "kind"},
	)

	c.reservationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_total",
			Help:      "Total number of reservation attempts, by outcome (acquired, conflict)",
		},
		[]string{"outcome"},
	)

	c.dbConnectionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"database", "operation"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// RecordMigration implements migration.Metrics.
func (c *Collector) RecordMigration(direction, kind, status string) {
	c.migrationsTotal.WithLabelValues(direction, kind, status).Inc()
}

// RecordMigrationDuration implements migration.Metrics.
func (c *Collector) RecordMigrationDuration(direction, kind string, seconds float64) {
	c.migrationDuration.WithLabelValues(direction, kind).Observe(seconds)
}

// RecordReservation implements migration.Metrics.
func (c *Collector) RecordReservation(outcome string) {
	c.reservationsTotal.WithLabelValues(outcome).Inc()
}

// RecordDBConnections records the pool's current open/idle connection counts.
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// RecordDBQuery records one query's duration.
func (c *Collector) RecordDBQuery(database, operation string, duration time.Duration) {
	c.dbQueryDuration.WithLabelValues(database, operation).Observe(duration.Seconds())
}
