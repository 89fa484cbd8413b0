// Package metrics aggregates per-backend extraction statistics. The
// collector is process-wide shared state injected into the orchestrator;
// updates are serialized per backend bucket so concurrent requests never
// lose counts.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Attempt is one timed, outcome-recorded invocation of a single backend.
type Attempt struct {
	Backend    string        `json:"provider"`
	Filename   string        `json:"filename,omitempty"`
	StartedAt  time.Time     `json:"timestamp"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"processing_time_ms"`
	Success    bool          `json:"success"`
	ErrorKind  string        `json:"error_kind,omitempty"`
	// Confidence is nil when the backend did not supply one.
	Confidence *float32 `json:"confidence,omitempty"`
}

// Snapshot is a point-in-time aggregate for one backend.
type Snapshot struct {
	Attempts      int64         `json:"total_extractions"`
	Successes     int64         `json:"successful_extractions"`
	Failures      int64         `json:"failed_extractions"`
	AvgDuration   time.Duration `json:"-"`
	AvgDurationMS float64       `json:"avg_processing_time_ms"`
	AvgConfidence float64       `json:"avg_confidence"`
	SuccessRate   float64       `json:"success_rate"`
}

type bucket struct {
	mu        sync.Mutex
	attempts  int64
	successes int64
	failures  int64
	durSum    time.Duration
	confSum   float64
	confN     int64
}

// Collector accumulates attempts per backend name. New backends register
// implicitly on first attempt. Attempts are additionally mirrored into
// Prometheus counters/histograms when a registerer is supplied.
type Collector struct {
	mu      sync.RWMutex
	buckets map[string]*bucket

	recentMu  sync.Mutex
	recent    []Attempt
	recentCap int

	promAttempts *prometheus.CounterVec
	promDuration *prometheus.HistogramVec
}

// NewCollector creates an empty collector. reg may be nil to skip the
// Prometheus mirror (tests, CLI tools).
func NewCollector(reg prometheus.Registerer, recentLimit int) *Collector {
	if recentLimit <= 0 {
		recentLimit = 50
	}
	c := &Collector{
		buckets:   make(map[string]*bucket),
		recentCap: recentLimit,
	}
	if reg != nil {
		c.promAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "invoice_engine",
			Name:      "extraction_attempts_total",
			Help:      "Extraction attempts by backend and outcome.",
		}, []string{"backend", "outcome"})
		c.promDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "invoice_engine",
			Name:      "extraction_duration_seconds",
			Help:      "Extraction attempt latency by backend.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"backend"})
		reg.MustRegister(c.promAttempts, c.promDuration)
	}
	return c
}

func (c *Collector) getBucket(name string) *bucket {
	c.mu.RLock()
	b, ok := c.buckets[name]
	c.mu.RUnlock()
	if ok {
		return b
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok = c.buckets[name]; ok {
		return b
	}
	b = &bucket{}
	c.buckets[name] = b
	return b
}

// Record appends one attempt to the named backend's running aggregate.
// Every call is a new data point; nothing is deduplicated.
func (c *Collector) Record(a Attempt) {
	a.DurationMS = a.Duration.Milliseconds()

	b := c.getBucket(a.Backend)
	b.mu.Lock()
	b.attempts++
	if a.Success {
		b.successes++
	} else {
		b.failures++
	}
	b.durSum += a.Duration
	if a.Confidence != nil {
		b.confSum += float64(*a.Confidence)
		b.confN++
	}
	b.mu.Unlock()

	c.recentMu.Lock()
	c.recent = append(c.recent, a)
	if len(c.recent) > c.recentCap {
		c.recent = c.recent[len(c.recent)-c.recentCap:]
	}
	c.recentMu.Unlock()

	if c.promAttempts != nil {
		outcome := "failure"
		if a.Success {
			outcome = "success"
		}
		c.promAttempts.WithLabelValues(a.Backend, outcome).Inc()
		c.promDuration.WithLabelValues(a.Backend).Observe(a.Duration.Seconds())
	}
}

// Snapshot returns a point-in-time copy of every backend's aggregate.
// Writers are only blocked per bucket for the time it takes to copy
// current values.
func (c *Collector) Snapshot() map[string]Snapshot {
	c.mu.RLock()
	names := make([]string, 0, len(c.buckets))
	refs := make([]*bucket, 0, len(c.buckets))
	for name, b := range c.buckets {
		names = append(names, name)
		refs = append(refs, b)
	}
	c.mu.RUnlock()

	out := make(map[string]Snapshot, len(names))
	for i, b := range refs {
		b.mu.Lock()
		s := Snapshot{
			Attempts:  b.attempts,
			Successes: b.successes,
			Failures:  b.failures,
		}
		if b.attempts > 0 {
			s.AvgDuration = b.durSum / time.Duration(b.attempts)
			s.SuccessRate = float64(b.successes) / float64(b.attempts)
		}
		if b.confN > 0 {
			s.AvgConfidence = b.confSum / float64(b.confN)
		}
		b.mu.Unlock()
		s.AvgDurationMS = float64(s.AvgDuration.Milliseconds())
		out[names[i]] = s
	}
	return out
}

// Recent returns up to limit most recent attempts, newest last.
func (c *Collector) Recent(limit int) []Attempt {
	c.recentMu.Lock()
	defer c.recentMu.Unlock()
	if limit <= 0 || limit > len(c.recent) {
		limit = len(c.recent)
	}
	out := make([]Attempt, limit)
	copy(out, c.recent[len(c.recent)-limit:])
	return out
}

// Clear resets all aggregates and the recent ring. Aggregates are never
// reset implicitly; this exists for explicit operator use only.
func (c *Collector) Clear() {
	c.mu.Lock()
	c.buckets = make(map[string]*bucket)
	c.mu.Unlock()

	c.recentMu.Lock()
	c.recent = nil
	c.recentMu.Unlock()
}
