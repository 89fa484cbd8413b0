package metrics

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveStoreSQLite(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "metrics.db")

	a, err := OpenArchive(ctx, dsn, nil)
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close()) }()

	c := NewCollector(nil, 10)
	c.Record(Attempt{Backend: "openai", Duration: 120 * time.Millisecond, Success: true, Confidence: confPtr(0.9)})
	c.Record(Attempt{Backend: "openai", Duration: 80 * time.Millisecond, Success: false, ErrorKind: "auth_failed"})

	require.NoError(t, a.Store(ctx, time.Now(), c.Snapshot()))

	var rows int
	require.NoError(t, a.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM backend_metrics WHERE backend = ?", "openai").Scan(&rows))
	assert.Equal(t, 1, rows)

	var attempts, successes int64
	require.NoError(t, a.db.QueryRowContext(ctx,
		"SELECT total_extractions, successful_extractions FROM backend_metrics WHERE backend = ?",
		"openai").Scan(&attempts, &successes))
	assert.EqualValues(t, 2, attempts)
	assert.EqualValues(t, 1, successes)
}
