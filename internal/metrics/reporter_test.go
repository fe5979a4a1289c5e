package metrics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ecommerce/loadgen/internal/classifier"
)

func sampleSnapshot() Snapshot {
	start := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	return Snapshot{
		StartTime:       start,
		EndTime:         start.Add(time.Minute),
		Duration:        time.Minute,
		TotalRequests:   10,
		SuccessRequests: 9,
		FailedRequests:  1,
		ExpectedResults: 2,
		SuccessRate:     90,
		QPS:             10.0 / 60,
		P95Latency:      1500 * time.Microsecond,
		StatusCodes:     map[int]int64{200: 7, 409: 2, 500: 1},
		EndpointStats: map[string]*EndpointSnapshot{
			"POST /order-service/api/orders":    {Method: "POST", TotalRequests: 4, SuccessRequests: 3, FailedRequests: 1},
			"GET /product-service/api/products": {Method: "GET", TotalRequests: 6, SuccessRequests: 6},
		},
		Verdicts: map[classifier.Action]VerdictCounts{
			classifier.CreateOrder: {Success: 3, Failure: 1},
			classifier.GetProducts: {Success: 4, Expected: 2},
		},
		Errors: []ErrorCount{{Name: "POST /order-service/api/orders", StatusCode: 500, Message: "unexpected status 500", Count: 1}},
	}
}

func TestReporter_GenerateReport(t *testing.T) {
	r := NewReporter()
	cfg := ReportConfiguration{Name: "shop", TargetBaseURL: "http://localhost:8080", Users: 5, Profiles: map[string]int{"light": 3, "heavy": 2}}
	report := r.GenerateReport(sampleSnapshot(), "run-1", cfg)

	assert.Equal(t, "run-1", report.Metadata.RunID)
	assert.Equal(t, "shop", report.Configuration.Name)
	assert.Equal(t, int64(10), report.Summary.TotalRequests)
	assert.Equal(t, int64(2), report.Summary.ExpectedResults)
	assert.InDelta(t, 1.5, report.Summary.Latency.P95Ms, 0.0001)

	require.Len(t, report.Endpoints, 2)
	assert.Equal(t, "GET /product-service/api/products", report.Endpoints[0].Name, "endpoints are sorted by name")
	assert.Equal(t, "POST", report.Endpoints[1].Method)

	assert.Equal(t, VerdictCounts{Success: 3, Failure: 1}, report.Actions["create_order"])
	assert.Equal(t, int64(2), report.StatusCodes["409"])
	require.Len(t, report.Errors, 1)
}

func TestReporter_ToJSON(t *testing.T) {
	r := NewReporter()
	report := r.GenerateReport(sampleSnapshot(), "run-2", ReportConfiguration{Duration: Duration{90 * time.Second}})

	data, err := r.ToJSON(report)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	for _, key := range []string{"metadata", "configuration", "summary", "endpoints", "actions", "statusCodes", "errors"} {
		assert.Contains(t, decoded, key)
	}
	duration := decoded["configuration"].(map[string]any)["duration"].(map[string]any)
	assert.Equal(t, 90.0, duration["seconds"])
	assert.Equal(t, "1m30s", duration["display"])
}

func TestReporter_WriteToFile(t *testing.T) {
	dir := t.TempDir()
	r := NewReporter()
	report := r.GenerateReport(sampleSnapshot(), "run-3", ReportConfiguration{})

	path, err := r.WriteToFile(report, filepath.Join(dir, "nested", "report-{{.Timestamp}}.json"))
	require.NoError(t, err)
	assert.NotContains(t, path, "{{")
	assert.True(t, strings.HasPrefix(path, filepath.Join(dir, "nested")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "run-3", decoded["metadata"].(map[string]any)["runId"])
}

func TestExpandPathTemplate(t *testing.T) {
	now := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	tests := []struct {
		in   string
		want string
	}{
		{"report.json", "report.json"},
		{"report-{{.Timestamp}}.json", "report-20250304-050607.json"},
		{"{{.Date}}/report.json", "2025-03-04/report.json"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, expandPathTemplate(tt.in, now))
	}
}
