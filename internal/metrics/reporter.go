package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// JSONReport is the machine-readable end-of-run report.
type JSONReport struct {
	Metadata      ReportMetadata           `json:"metadata"`
	Configuration ReportConfiguration      `json:"configuration"`
	Summary       ReportSummary            `json:"summary"`
	Endpoints     []EndpointReport         `json:"endpoints"`
	Actions       map[string]VerdictCounts `json:"actions"`
	StatusCodes   map[string]int64         `json:"statusCodes"`
	Errors        []ErrorCount             `json:"errors,omitempty"`
}

// ReportMetadata contains metadata about the report.
type ReportMetadata struct {
	Version     string    `json:"version"`
	RunID       string    `json:"runId"`
	GeneratedAt time.Time `json:"generatedAt"`
	Generator   string    `json:"generator"`
}

// ReportConfiguration captures the run configuration.
type ReportConfiguration struct {
	Name          string         `json:"name"`
	TargetBaseURL string         `json:"targetBaseURL"`
	Users         int            `json:"users"`
	SpawnRate     float64        `json:"spawnRate"`
	Duration      Duration       `json:"duration"`
	Seed          uint64         `json:"seed,omitempty"`
	Profiles      map[string]int `json:"profiles"`
}

// Duration wraps time.Duration for JSON serialization.
type Duration struct {
	time.Duration
}

// MarshalJSON implements json.Marshaler for Duration.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{
		"seconds": d.Seconds(),
		"display": formatDuration(d.Duration),
	})
}

// ReportSummary contains overall run statistics.
type ReportSummary struct {
	StartTime       time.Time    `json:"startTime"`
	EndTime         time.Time    `json:"endTime"`
	Duration        Duration     `json:"duration"`
	TotalRequests   int64        `json:"totalRequests"`
	SuccessRequests int64        `json:"successRequests"`
	ExpectedResults int64        `json:"expectedResults"`
	FailedRequests  int64        `json:"failedRequests"`
	TotalBytes      int64        `json:"totalBytes"`
	SuccessRate     float64      `json:"successRate"`
	QPS             float64      `json:"qps"`
	Latency         LatencyStats `json:"latency"`
}

// LatencyStats contains latency statistics in milliseconds.
type LatencyStats struct {
	MinMs float64 `json:"minMs"`
	AvgMs float64 `json:"avgMs"`
	P50Ms float64 `json:"p50Ms"`
	P95Ms float64 `json:"p95Ms"`
	P99Ms float64 `json:"p99Ms"`
	MaxMs float64 `json:"maxMs"`
}

// EndpointReport contains statistics for a single request name.
type EndpointReport struct {
	Name            string       `json:"name"`
	Method          string       `json:"method"`
	TotalRequests   int64        `json:"totalRequests"`
	SuccessRequests int64        `json:"successRequests"`
	FailedRequests  int64        `json:"failedRequests"`
	SuccessRate     float64      `json:"successRate"`
	QPS             float64      `json:"qps"`
	Latency         LatencyStats `json:"latency"`
}

// Reporter generates JSON reports from collector snapshots.
type Reporter struct {
	version string
}

// NewReporter creates a new Reporter.
func NewReporter() *Reporter {
	return &Reporter{version: "1.0.0"}
}

func ms(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e6
}

// GenerateReport builds a report from a snapshot.
func (r *Reporter) GenerateReport(snapshot Snapshot, runID string, cfg ReportConfiguration) *JSONReport {
	report := &JSONReport{
		Metadata: ReportMetadata{
			Version:     r.version,
			RunID:       runID,
			GeneratedAt: time.Now().UTC(),
			Generator:   "ecommerce-loadgen",
		},
		Configuration: cfg,
		Summary: ReportSummary{
			StartTime:       snapshot.StartTime,
			EndTime:         snapshot.EndTime,
			Duration:        Duration{snapshot.Duration},
			TotalRequests:   snapshot.TotalRequests,
			SuccessRequests: snapshot.SuccessRequests,
			ExpectedResults: snapshot.ExpectedResults,
			FailedRequests:  snapshot.FailedRequests,
			TotalBytes:      snapshot.TotalBytes,
			SuccessRate:     snapshot.SuccessRate,
			QPS:             snapshot.QPS,
			Latency: LatencyStats{
				MinMs: ms(snapshot.MinLatency),
				AvgMs: ms(snapshot.AvgLatency),
				P50Ms: ms(snapshot.P50Latency),
				P95Ms: ms(snapshot.P95Latency),
				P99Ms: ms(snapshot.P99Latency),
				MaxMs: ms(snapshot.MaxLatency),
			},
		},
		Actions:     make(map[string]VerdictCounts, len(snapshot.Verdicts)),
		StatusCodes: make(map[string]int64, len(snapshot.StatusCodes)),
		Errors:      snapshot.Errors,
	}

	for _, name := range sortedKeys(snapshot.EndpointStats) {
		s := snapshot.EndpointStats[name]
		report.Endpoints = append(report.Endpoints, EndpointReport{
			Name:            name,
			Method:          s.Method,
			TotalRequests:   s.TotalRequests,
			SuccessRequests: s.SuccessRequests,
			FailedRequests:  s.FailedRequests,
			SuccessRate:     s.SuccessRate,
			QPS:             s.QPS,
			Latency: LatencyStats{
				MinMs: ms(s.MinLatency),
				AvgMs: ms(s.AvgLatency),
				P50Ms: ms(s.P50Latency),
				P95Ms: ms(s.P95Latency),
				P99Ms: ms(s.P99Latency),
				MaxMs: ms(s.MaxLatency),
			},
		})
	}
	for action, counts := range snapshot.Verdicts {
		report.Actions[string(action)] = counts
	}
	for code, count := range snapshot.StatusCodes {
		report.StatusCodes[strconv.Itoa(code)] = count
	}
	return report
}

// ToJSON serializes a report to indented JSON.
func (r *Reporter) ToJSON(report *JSONReport) ([]byte, error) {
	return json.MarshalIndent(report, "", "  ")
}

// WriteToFile writes a report to path and returns the expanded path.
// The path supports {{.Timestamp}} (YYYYMMDD-HHMMSS) and {{.Date}} (YYYY-MM-DD).
func (r *Reporter) WriteToFile(report *JSONReport, path string) (string, error) {
	expanded := filepath.Clean(expandPathTemplate(path, time.Now()))

	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	data, err := r.ToJSON(report)
	if err != nil {
		return "", fmt.Errorf("marshaling report to JSON: %w", err)
	}
	if err := os.WriteFile(expanded, data, 0o644); err != nil {
		return "", fmt.Errorf("writing report file: %w", err)
	}
	return expanded, nil
}

func expandPathTemplate(path string, now time.Time) string {
	return strings.NewReplacer(
		"{{.Timestamp}}", now.Format("20060102-150405"),
		"{{.Date}}", now.Format("2006-01-02"),
	).Replace(path)
}
