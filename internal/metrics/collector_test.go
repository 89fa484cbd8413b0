package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func confPtr(v float32) *float32 { return &v }

func TestCollectorAggregates(t *testing.T) {
	c := NewCollector(nil, 50)

	c.Record(Attempt{Backend: "openai", Duration: 100 * time.Millisecond, Success: true, Confidence: confPtr(0.8)})
	c.Record(Attempt{Backend: "openai", Duration: 300 * time.Millisecond, Success: false, ErrorKind: "upstream_error"})
	c.Record(Attempt{Backend: "ocr", Duration: 50 * time.Millisecond, Success: true})

	snap := c.Snapshot()
	require.Len(t, snap, 2)

	oa := snap["openai"]
	assert.EqualValues(t, 2, oa.Attempts)
	assert.EqualValues(t, 1, oa.Successes)
	assert.EqualValues(t, 1, oa.Failures)
	assert.Equal(t, 200*time.Millisecond, oa.AvgDuration)
	assert.InDelta(t, 0.8, oa.AvgConfidence, 1e-9)
	assert.InDelta(t, 0.5, oa.SuccessRate, 1e-9)

	// Confidence average ignores attempts that supplied none.
	ocr := snap["ocr"]
	assert.Zero(t, ocr.AvgConfidence)
	assert.InDelta(t, 1.0, ocr.SuccessRate, 1e-9)
}

func TestCollectorConcurrentRecording(t *testing.T) {
	const n, m = 200, 150
	c := NewCollector(nil, 10)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Record(Attempt{Backend: "llama", Duration: time.Millisecond, Success: true})
		}()
	}
	for i := 0; i < m; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Record(Attempt{Backend: "llama", Duration: time.Millisecond, Success: false, ErrorKind: "timeout"})
		}()
	}
	wg.Wait()

	snap := c.Snapshot()
	require.Contains(t, snap, "llama")
	assert.EqualValues(t, n+m, snap["llama"].Attempts)
	assert.EqualValues(t, n, snap["llama"].Successes)
	assert.EqualValues(t, m, snap["llama"].Failures)
}

func TestCollectorSnapshotIsCopy(t *testing.T) {
	c := NewCollector(nil, 10)
	c.Record(Attempt{Backend: "ocr", Success: true})

	snap := c.Snapshot()
	snap["ocr"] = Snapshot{Attempts: 999}

	again := c.Snapshot()
	assert.EqualValues(t, 1, again["ocr"].Attempts)
}

func TestCollectorRecentRing(t *testing.T) {
	c := NewCollector(nil, 3)
	for i := 0; i < 5; i++ {
		c.Record(Attempt{Backend: "ocr", Filename: string(rune('a' + i)), Success: true})
	}

	recent := c.Recent(10)
	require.Len(t, recent, 3)
	assert.Equal(t, "c", recent[0].Filename)
	assert.Equal(t, "e", recent[2].Filename)

	recent = c.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, "e", recent[0].Filename)
}

func TestCollectorClear(t *testing.T) {
	c := NewCollector(nil, 10)
	c.Record(Attempt{Backend: "ocr", Success: true})
	c.Clear()

	assert.Empty(t, c.Snapshot())
	assert.Empty(t, c.Recent(10))
}
