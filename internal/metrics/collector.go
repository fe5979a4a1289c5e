// Package metrics provides metrics collection and reporting for the load generator.
package metrics

import (
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/example/ecommerce/loadgen/internal/classifier"
)

// Recorder receives the result of every HTTP call made by a virtual user.
// Implementations must be safe for concurrent use.
type Recorder interface {
	Record(result Result)
}

// Recorders fans a result out to several recorders.
type Recorders []Recorder

// Record implements Recorder.
func (rs Recorders) Record(result Result) {
	for _, r := range rs {
		r.Record(result)
	}
}

// Result represents the result of a single request.
type Result struct {
	// Name groups calls for reporting, e.g. "GET /product-service/api/products/[id]".
	Name       string
	Method     string
	Path       string
	Action     classifier.Action
	Verdict    classifier.Verdict
	StatusCode int
	Latency    time.Duration
	// Success is true for Success and ExpectedNonSuccess verdicts.
	Success      bool
	ResponseSize int64
	Timestamp    time.Time
	Error        error
	Profile      string
}

// Collector aggregates request results into run totals, a latency
// distribution, per-request-name stats, status codes and per-action
// verdict counts.
//
// Thread Safety: Safe for concurrent use by multiple goroutines.
type Collector struct {
	mu sync.RWMutex

	totalRequests   atomic.Int64
	successRequests atomic.Int64
	failedRequests  atomic.Int64
	expectedResults atomic.Int64
	totalBytes      atomic.Int64

	// Latency samples in nanoseconds, a sliding window of recent calls.
	latencies    []int64
	latencyMu    sync.RWMutex
	maxLatencies int

	endpointStats   map[string]*EndpointStats
	endpointStatsMu sync.RWMutex

	statusCodes   map[int]int64
	statusCodesMu sync.RWMutex

	verdicts   map[classifier.Action]*VerdictCounts
	verdictsMu sync.Mutex

	errors   map[string]*ErrorCount
	errorsMu sync.Mutex

	startTime time.Time
	endTime   time.Time

	config CollectorConfig
}

// CollectorConfig holds configuration for the metrics collector.
type CollectorConfig struct {
	// MaxLatencies is the maximum number of latency samples to retain
	// for percentile calculations. Default: 100000.
	MaxLatencies int

	// MaxErrors caps the number of distinct error messages tracked.
	// Default: 100
	MaxErrors int
}

// Default configuration values.
const (
	defaultMaxLatencies         = 100000
	defaultEndpointMaxLatencies = 10000
	defaultMaxErrors            = 100
)

// DefaultCollectorConfig returns default configuration.
func DefaultCollectorConfig() CollectorConfig {
	return CollectorConfig{
		MaxLatencies: defaultMaxLatencies,
		MaxErrors:    defaultMaxErrors,
	}
}

// EndpointStats holds statistics for a single request name.
type EndpointStats struct {
	mu sync.RWMutex

	Name             string
	Method           string
	TotalRequests    int64
	SuccessRequests  int64
	FailedRequests   int64
	TotalLatencyNs   int64
	MinLatency       time.Duration
	MaxLatency       time.Duration
	TotalBytes       int64
	latencies        []int64
	maxLatencySample int
}

// VerdictCounts counts verdicts for one action.
type VerdictCounts struct {
	Success  int64 `json:"success"`
	Expected int64 `json:"expected"`
	Failure  int64 `json:"failure"`
}

// Total returns the number of classified calls.
func (v VerdictCounts) Total() int64 {
	return v.Success + v.Expected + v.Failure
}

// ErrorCount counts occurrences of one failure message on one request name.
type ErrorCount struct {
	Name       string `json:"name"`
	StatusCode int    `json:"statusCode,omitempty"`
	Message    string `json:"message"`
	Count      int64  `json:"count"`
}

// Snapshot represents a point-in-time snapshot of all metrics.
type Snapshot struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64
	// ExpectedResults is the part of SuccessRequests classified as
	// expected non-success.
	ExpectedResults int64
	TotalBytes      int64

	MinLatency time.Duration
	AvgLatency time.Duration
	P50Latency time.Duration
	P95Latency time.Duration
	P99Latency time.Duration
	MaxLatency time.Duration

	SuccessRate float64 // 0.0 - 100.0 percentage
	QPS         float64

	StatusCodes   map[int]int64
	EndpointStats map[string]*EndpointSnapshot
	Verdicts      map[classifier.Action]VerdictCounts
	Errors        []ErrorCount
}

// EndpointSnapshot represents a snapshot of per-request-name statistics.
type EndpointSnapshot struct {
	Name            string
	Method          string
	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64
	TotalBytes      int64
	MinLatency      time.Duration
	AvgLatency      time.Duration
	P50Latency      time.Duration
	P95Latency      time.Duration
	P99Latency      time.Duration
	MaxLatency      time.Duration
	SuccessRate     float64
	QPS             float64
}

// NewCollector creates a new metrics collector.
func NewCollector(config CollectorConfig) *Collector {
	if config.MaxLatencies <= 0 {
		config.MaxLatencies = defaultMaxLatencies
	}
	if config.MaxErrors <= 0 {
		config.MaxErrors = defaultMaxErrors
	}

	return &Collector{
		latencies:     make([]int64, 0, min(config.MaxLatencies, 1024)),
		maxLatencies:  config.MaxLatencies,
		endpointStats: make(map[string]*EndpointStats),
		statusCodes:   make(map[int]int64),
		verdicts:      make(map[classifier.Action]*VerdictCounts),
		errors:        make(map[string]*ErrorCount),
		config:        config,
	}
}

// Start marks the beginning of metrics collection.
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startTime = time.Now()
	c.endTime = time.Time{}
}

// Stop marks the end of metrics collection.
func (c *Collector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endTime = time.Now()
}

// Record implements Recorder.
func (c *Collector) Record(result Result) {
	c.totalRequests.Add(1)
	if result.Success {
		c.successRequests.Add(1)
	} else {
		c.failedRequests.Add(1)
	}
	if result.Verdict == classifier.ExpectedNonSuccess {
		c.expectedResults.Add(1)
	}
	c.totalBytes.Add(result.ResponseSize)

	c.recordLatency(result.Latency.Nanoseconds())

	if result.StatusCode > 0 {
		c.recordStatusCode(result.StatusCode)
	}
	if result.Action != "" {
		c.recordVerdict(result.Action, result.Verdict)
	}
	if result.Name != "" {
		c.recordEndpointResult(result)
	}
	if result.Error != nil {
		c.recordError(result)
	}
}

// recordLatency adds a latency sample. When capacity is exceeded the
// oldest half is dropped so percentiles follow recent behaviour.
func (c *Collector) recordLatency(latencyNs int64) {
	c.latencyMu.Lock()
	defer c.latencyMu.Unlock()

	if len(c.latencies) >= c.maxLatencies {
		halfSize := c.maxLatencies / 2
		c.latencies = append(c.latencies[:0], c.latencies[len(c.latencies)-halfSize:]...)
	}
	c.latencies = append(c.latencies, latencyNs)
}

func (c *Collector) recordStatusCode(code int) {
	c.statusCodesMu.Lock()
	defer c.statusCodesMu.Unlock()
	c.statusCodes[code]++
}

func (c *Collector) recordVerdict(action classifier.Action, verdict classifier.Verdict) {
	c.verdictsMu.Lock()
	defer c.verdictsMu.Unlock()

	counts, ok := c.verdicts[action]
	if !ok {
		counts = &VerdictCounts{}
		c.verdicts[action] = counts
	}
	switch verdict {
	case classifier.Success:
		counts.Success++
	case classifier.ExpectedNonSuccess:
		counts.Expected++
	default:
		counts.Failure++
	}
}

func (c *Collector) recordError(result Result) {
	key := result.Name + "|" + result.Error.Error()

	c.errorsMu.Lock()
	defer c.errorsMu.Unlock()

	if e, ok := c.errors[key]; ok {
		e.Count++
		return
	}
	if len(c.errors) >= c.config.MaxErrors {
		return
	}
	c.errors[key] = &ErrorCount{
		Name:       result.Name,
		StatusCode: result.StatusCode,
		Message:    result.Error.Error(),
		Count:      1,
	}
}

// recordEndpointResult records statistics for a specific request name.
func (c *Collector) recordEndpointResult(result Result) {
	c.endpointStatsMu.Lock()
	stats, ok := c.endpointStats[result.Name]
	if !ok {
		stats = &EndpointStats{
			Name:             result.Name,
			Method:           result.Method,
			latencies:        make([]int64, 0, 64),
			maxLatencySample: defaultEndpointMaxLatencies,
		}
		c.endpointStats[result.Name] = stats
	}
	c.endpointStatsMu.Unlock()

	stats.mu.Lock()
	defer stats.mu.Unlock()

	stats.TotalRequests++
	if result.Success {
		stats.SuccessRequests++
	} else {
		stats.FailedRequests++
	}

	latencyNs := result.Latency.Nanoseconds()
	stats.TotalLatencyNs += latencyNs
	stats.TotalBytes += result.ResponseSize

	if stats.MinLatency == 0 || result.Latency < stats.MinLatency {
		stats.MinLatency = result.Latency
	}
	if result.Latency > stats.MaxLatency {
		stats.MaxLatency = result.Latency
	}

	if len(stats.latencies) >= stats.maxLatencySample {
		halfSize := stats.maxLatencySample / 2
		stats.latencies = append(stats.latencies[:0], stats.latencies[len(stats.latencies)-halfSize:]...)
	}
	stats.latencies = append(stats.latencies, latencyNs)
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	duration := c.Duration()

	c.mu.RLock()
	startTime, endTime := c.startTime, c.endTime
	c.mu.RUnlock()

	totalRequests := c.totalRequests.Load()
	successRequests := c.successRequests.Load()

	s := Snapshot{
		StartTime:       startTime,
		EndTime:         endTime,
		Duration:        duration,
		TotalRequests:   totalRequests,
		SuccessRequests: successRequests,
		FailedRequests:  c.failedRequests.Load(),
		ExpectedResults: c.expectedResults.Load(),
		TotalBytes:      c.totalBytes.Load(),
		StatusCodes:     c.copyStatusCodes(),
		EndpointStats:   c.copyEndpointStats(duration),
		Verdicts:        c.copyVerdicts(),
		Errors:          c.copyErrors(),
	}

	s.MinLatency, s.AvgLatency, s.P50Latency, s.P95Latency, s.P99Latency, s.MaxLatency = c.calculateLatencyStats()

	if totalRequests > 0 {
		s.SuccessRate = float64(successRequests) / float64(totalRequests) * 100
	}
	if duration > 0 {
		s.QPS = float64(totalRequests) / duration.Seconds()
	}
	return s
}

// calculateLatencyStats computes latency statistics from collected samples.
func (c *Collector) calculateLatencyStats() (lo, avg, p50, p95, p99, hi time.Duration) {
	c.latencyMu.RLock()
	samples := slices.Clone(c.latencies)
	c.latencyMu.RUnlock()

	return latencyStats(samples)
}

// latencyStats sorts samples in place and summarises them.
func latencyStats(samples []int64) (lo, avg, p50, p95, p99, hi time.Duration) {
	n := len(samples)
	if n == 0 {
		return 0, 0, 0, 0, 0, 0
	}
	slices.Sort(samples)

	var sum int64
	for _, v := range samples {
		sum += v
	}

	lo = time.Duration(samples[0])
	hi = time.Duration(samples[n-1])
	avg = time.Duration(sum / int64(n))
	p50 = time.Duration(samples[percentileIndex(n, 0.50)])
	p95 = time.Duration(samples[percentileIndex(n, 0.95)])
	p99 = time.Duration(samples[percentileIndex(n, 0.99)])
	return lo, avg, p50, p95, p99, hi
}

// percentileIndex returns the index for a given percentile.
func percentileIndex(n int, percentile float64) int {
	idx := int(float64(n) * percentile)
	if idx >= n {
		idx = n - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

func (c *Collector) copyStatusCodes() map[int]int64 {
	c.statusCodesMu.RLock()
	defer c.statusCodesMu.RUnlock()
	return maps.Clone(c.statusCodes)
}

func (c *Collector) copyVerdicts() map[classifier.Action]VerdictCounts {
	c.verdictsMu.Lock()
	defer c.verdictsMu.Unlock()

	out := make(map[classifier.Action]VerdictCounts, len(c.verdicts))
	for action, counts := range c.verdicts {
		out[action] = *counts
	}
	return out
}

// copyErrors returns tracked errors, most frequent first.
func (c *Collector) copyErrors() []ErrorCount {
	c.errorsMu.Lock()
	out := make([]ErrorCount, 0, len(c.errors))
	for _, e := range c.errors {
		out = append(out, *e)
	}
	c.errorsMu.Unlock()

	slices.SortFunc(out, func(a, b ErrorCount) int {
		if a.Count != b.Count {
			if a.Count > b.Count {
				return -1
			}
			return 1
		}
		if a.Name < b.Name {
			return -1
		}
		if a.Name > b.Name {
			return 1
		}
		return 0
	})
	return out
}

func (c *Collector) copyEndpointStats(totalDuration time.Duration) map[string]*EndpointSnapshot {
	c.endpointStatsMu.RLock()
	defer c.endpointStatsMu.RUnlock()

	result := make(map[string]*EndpointSnapshot, len(c.endpointStats))
	for name, stats := range c.endpointStats {
		result[name] = stats.snapshot(totalDuration)
	}
	return result
}

func (s *EndpointStats) snapshot(totalDuration time.Duration) *EndpointSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &EndpointSnapshot{
		Name:            s.Name,
		Method:          s.Method,
		TotalRequests:   s.TotalRequests,
		SuccessRequests: s.SuccessRequests,
		FailedRequests:  s.FailedRequests,
		TotalBytes:      s.TotalBytes,
		MinLatency:      s.MinLatency,
		MaxLatency:      s.MaxLatency,
	}

	if s.TotalRequests > 0 {
		snap.AvgLatency = time.Duration(s.TotalLatencyNs / s.TotalRequests)
		snap.SuccessRate = float64(s.SuccessRequests) / float64(s.TotalRequests) * 100
	}
	if totalDuration > 0 {
		snap.QPS = float64(s.TotalRequests) / totalDuration.Seconds()
	}

	_, _, snap.P50Latency, snap.P95Latency, snap.P99Latency, _ = latencyStats(slices.Clone(s.latencies))
	return snap
}

// Reset clears all collected metrics.
func (c *Collector) Reset() {
	c.mu.Lock()
	c.startTime = time.Time{}
	c.endTime = time.Time{}
	c.mu.Unlock()

	c.totalRequests.Store(0)
	c.successRequests.Store(0)
	c.failedRequests.Store(0)
	c.expectedResults.Store(0)
	c.totalBytes.Store(0)

	c.latencyMu.Lock()
	c.latencies = c.latencies[:0]
	c.latencyMu.Unlock()

	c.statusCodesMu.Lock()
	c.statusCodes = make(map[int]int64)
	c.statusCodesMu.Unlock()

	c.endpointStatsMu.Lock()
	c.endpointStats = make(map[string]*EndpointStats)
	c.endpointStatsMu.Unlock()

	c.verdictsMu.Lock()
	c.verdicts = make(map[classifier.Action]*VerdictCounts)
	c.verdictsMu.Unlock()

	c.errorsMu.Lock()
	c.errors = make(map[string]*ErrorCount)
	c.errorsMu.Unlock()
}

// TotalRequests returns the current total request count.
func (c *Collector) TotalRequests() int64 {
	return c.totalRequests.Load()
}

// FailedRequests returns the current failed request count.
func (c *Collector) FailedRequests() int64 {
	return c.failedRequests.Load()
}

// SuccessRate returns the current success rate (0.0 - 100.0).
func (c *Collector) SuccessRate() float64 {
	total := c.totalRequests.Load()
	if total == 0 {
		return 0
	}
	return float64(c.successRequests.Load()) / float64(total) * 100
}

// Duration returns the elapsed duration since start.
func (c *Collector) Duration() time.Duration {
	c.mu.RLock()
	startTime := c.startTime
	endTime := c.endTime
	c.mu.RUnlock()

	if startTime.IsZero() {
		return 0
	}
	if endTime.IsZero() {
		return time.Since(startTime)
	}
	return endTime.Sub(startTime)
}
