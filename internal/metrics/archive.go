package metrics

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Archive persists collector snapshots to a database on a cadence the
// engine does not control. It accepts a postgres DSN (postgres:// or
// postgresql://) or a sqlite file path/DSN.
type Archive struct {
	db     *sql.DB
	driver string
	logger *slog.Logger
}

const archiveSchema = `
CREATE TABLE IF NOT EXISTS backend_metrics (
	archived_at            TIMESTAMP NOT NULL,
	backend                TEXT      NOT NULL,
	total_extractions      BIGINT    NOT NULL,
	successful_extractions BIGINT    NOT NULL,
	failed_extractions     BIGINT    NOT NULL,
	avg_processing_time_ms DOUBLE PRECISION NOT NULL,
	avg_confidence         DOUBLE PRECISION NOT NULL,
	success_rate           DOUBLE PRECISION NOT NULL
)`

// OpenArchive opens the snapshot store and ensures the schema exists.
func OpenArchive(ctx context.Context, dsn string, logger *slog.Logger) (*Archive, error) {
	if logger == nil {
		logger = slog.Default()
	}

	driver := "sqlite"
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver = "pgx"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open metrics archive: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping metrics archive: %w", err)
	}
	if _, err := db.ExecContext(ctx, archiveSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init metrics archive schema: %w", err)
	}

	logger.Info("metrics.archive.open", "driver", driver)
	return &Archive{db: db, driver: driver, logger: logger}, nil
}

func (a *Archive) placeholder(i int) string {
	if a.driver == "pgx" {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

// Store writes one row per backend for the given snapshot.
func (a *Archive) Store(ctx context.Context, at time.Time, snap map[string]Snapshot) error {
	ph := make([]string, 8)
	for i := range ph {
		ph[i] = a.placeholder(i + 1)
	}
	query := fmt.Sprintf(`INSERT INTO backend_metrics
		(archived_at, backend, total_extractions, successful_extractions,
		 failed_extractions, avg_processing_time_ms, avg_confidence, success_rate)
		VALUES (%s)`, strings.Join(ph, ", "))

	for backend, s := range snap {
		if _, err := a.db.ExecContext(ctx, query,
			at.UTC(), backend, s.Attempts, s.Successes, s.Failures,
			s.AvgDurationMS, s.AvgConfidence, s.SuccessRate,
		); err != nil {
			return fmt.Errorf("store snapshot for %s: %w", backend, err)
		}
	}
	return nil
}

// Run archives the collector's snapshot every interval until ctx is done.
func (a *Archive) Run(ctx context.Context, c *Collector, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			snap := c.Snapshot()
			if len(snap) == 0 {
				continue
			}
			if err := a.Store(ctx, now, snap); err != nil {
				a.logger.Error("metrics.archive.store_failed", "error", err)
				continue
			}
			a.logger.Debug("metrics.archive.stored", "backends", len(snap))
		}
	}
}

// Close closes the underlying database.
func (a *Archive) Close() error {
	return a.db.Close()
}
