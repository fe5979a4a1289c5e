package metrics

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/example/ecommerce/loadgen/internal/classifier"
)

// ANSI color codes.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBold   = "\033[1m"
)

// Console prints progress lines during a run and a summary at the end.
type Console struct {
	writer    io.Writer
	useColors bool
}

// NewConsole creates a console writer. A nil writer means os.Stdout.
func NewConsole(w io.Writer, useColors bool) *Console {
	if w == nil {
		w = os.Stdout
	}
	return &Console{writer: w, useColors: useColors}
}

func (c *Console) color(code string) string {
	if c.useColors {
		return code
	}
	return ""
}

func (c *Console) successRateColor(rate float64) string {
	switch {
	case rate >= 99:
		return c.color(colorGreen)
	case rate >= 95:
		return c.color(colorYellow)
	default:
		return c.color(colorRed)
	}
}

// PrintProgress writes a single progress line.
func (c *Console) PrintProgress(snapshot Snapshot, activeUsers int) {
	fmt.Fprintf(c.writer, "[%s] users=%d requests=%d qps=%.1f success=%s%.1f%%%s p95=%s failures=%d\n",
		formatDuration(snapshot.Duration),
		activeUsers,
		snapshot.TotalRequests,
		snapshot.QPS,
		c.successRateColor(snapshot.SuccessRate), snapshot.SuccessRate, c.color(colorReset),
		formatLatency(snapshot.P95Latency),
		snapshot.FailedRequests,
	)
}

// PrintSummary writes the end-of-run report: totals, per-request-name
// table, verdicts per action, status codes and the most frequent errors.
func (c *Console) PrintSummary(snapshot Snapshot) {
	w := c.writer
	rule := strings.Repeat("=", 72)

	fmt.Fprintln(w)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "%sLoad Test Summary%s\n", c.color(colorBold), c.color(colorReset))
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Duration:        %s\n", formatDuration(snapshot.Duration))
	fmt.Fprintf(w, "Requests:        %d (%.1f/s)\n", snapshot.TotalRequests, snapshot.QPS)
	fmt.Fprintf(w, "Success rate:    %s%.2f%%%s (%d expected outcomes)\n",
		c.successRateColor(snapshot.SuccessRate), snapshot.SuccessRate, c.color(colorReset), snapshot.ExpectedResults)
	fmt.Fprintf(w, "Failures:        %d\n", snapshot.FailedRequests)
	fmt.Fprintf(w, "Latency:         min=%s avg=%s p50=%s p95=%s p99=%s max=%s\n",
		formatLatency(snapshot.MinLatency), formatLatency(snapshot.AvgLatency),
		formatLatency(snapshot.P50Latency), formatLatency(snapshot.P95Latency),
		formatLatency(snapshot.P99Latency), formatLatency(snapshot.MaxLatency))

	if len(snapshot.EndpointStats) > 0 {
		fmt.Fprintln(w)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tREQS\tFAILS\tAVG\tP50\tP95\tP99\tRPS")
		for _, name := range sortedKeys(snapshot.EndpointStats) {
			s := snapshot.EndpointStats[name]
			fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\t%s\t%s\t%.1f\n",
				name, s.TotalRequests, s.FailedRequests,
				formatLatency(s.AvgLatency), formatLatency(s.P50Latency),
				formatLatency(s.P95Latency), formatLatency(s.P99Latency), s.QPS)
		}
		_ = tw.Flush()
	}

	if len(snapshot.Verdicts) > 0 {
		fmt.Fprintln(w)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ACTION\tSUCCESS\tEXPECTED\tFAILURE")
		for _, action := range classifier.Actions() {
			v, ok := snapshot.Verdicts[action]
			if !ok {
				continue
			}
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", action, v.Success, v.Expected, v.Failure)
		}
		_ = tw.Flush()
	}

	if len(snapshot.StatusCodes) > 0 {
		codes := make([]int, 0, len(snapshot.StatusCodes))
		for code := range snapshot.StatusCodes {
			codes = append(codes, code)
		}
		slices.Sort(codes)
		parts := make([]string, 0, len(codes))
		for _, code := range codes {
			parts = append(parts, fmt.Sprintf("%d:%d", code, snapshot.StatusCodes[code]))
		}
		fmt.Fprintf(w, "\nStatus codes:    %s\n", strings.Join(parts, " "))
	}

	if len(snapshot.Errors) > 0 {
		fmt.Fprintf(w, "\n%sTop errors%s\n", c.color(colorBold), c.color(colorReset))
		for i, e := range snapshot.Errors {
			if i == 10 {
				break
			}
			fmt.Fprintf(w, "  %6d  %s  %s\n", e.Count, e.Name, e.Message)
		}
	}
	fmt.Fprintln(w, rule)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// formatLatency formats a latency for display.
func formatLatency(d time.Duration) string {
	switch {
	case d == 0:
		return "0"
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%.1fms", float64(d.Microseconds())/1000)
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}

// formatDuration formats an elapsed duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
}
