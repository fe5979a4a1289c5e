package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/ecommerce/loadgen/internal/classifier"
)

func TestNewCollector(t *testing.T) {
	t.Run("default config", func(t *testing.T) {
		c := NewCollector(CollectorConfig{})
		require.NotNil(t, c)
		assert.Equal(t, defaultMaxLatencies, c.maxLatencies)
		assert.Equal(t, defaultMaxErrors, c.config.MaxErrors)
	})

	t.Run("custom config", func(t *testing.T) {
		c := NewCollector(CollectorConfig{MaxLatencies: 500, MaxErrors: 3})
		assert.Equal(t, 500, c.maxLatencies)
		assert.Equal(t, 3, c.config.MaxErrors)
	})
}

func TestCollector_Record(t *testing.T) {
	tests := []struct {
		name        string
		result      Result
		wantSuccess int64
		wantFailed  int64
		wantExpect  int64
	}{
		{
			name: "success",
			result: Result{
				Name: "GET /product-service/api/products", Method: "GET",
				Action: classifier.GetProducts, Verdict: classifier.Success,
				StatusCode: 200, Latency: 10 * time.Millisecond, Success: true, ResponseSize: 128,
			},
			wantSuccess: 1,
		},
		{
			name: "expected non-success counts as success",
			result: Result{
				Name: "POST /favourite-service/api/favourites", Method: "POST",
				Action: classifier.AddFavourite, Verdict: classifier.ExpectedNonSuccess,
				StatusCode: 409, Latency: 5 * time.Millisecond, Success: true,
			},
			wantSuccess: 1,
			wantExpect:  1,
		},
		{
			name: "failure",
			result: Result{
				Name: "POST /order-service/api/orders", Method: "POST",
				Action: classifier.CreateOrder, Verdict: classifier.Failure,
				StatusCode: 500, Latency: 50 * time.Millisecond,
				Error: errors.New("unexpected status 500"),
			},
			wantFailed: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCollector(DefaultCollectorConfig())
			c.Start()
			c.Record(tt.result)

			s := c.Snapshot()
			assert.Equal(t, int64(1), s.TotalRequests)
			assert.Equal(t, tt.wantSuccess, s.SuccessRequests)
			assert.Equal(t, tt.wantFailed, s.FailedRequests)
			assert.Equal(t, tt.wantExpect, s.ExpectedResults)
			assert.Equal(t, int64(1), s.StatusCodes[tt.result.StatusCode])
			assert.Equal(t, int64(1), s.Verdicts[tt.result.Action].Total())

			ep := s.EndpointStats[tt.result.Name]
			require.NotNil(t, ep)
			assert.Equal(t, tt.result.Method, ep.Method)
			assert.Equal(t, int64(1), ep.TotalRequests)
		})
	}
}

func TestCollector_VerdictCounts(t *testing.T) {
	c := NewCollector(DefaultCollectorConfig())
	c.Start()

	for range 3 {
		c.Record(Result{Action: classifier.MakePayment, Verdict: classifier.Success, Success: true})
	}
	c.Record(Result{Action: classifier.MakePayment, Verdict: classifier.ExpectedNonSuccess, Success: true})
	c.Record(Result{Action: classifier.MakePayment, Verdict: classifier.Failure})

	v := c.Snapshot().Verdicts[classifier.MakePayment]
	assert.Equal(t, VerdictCounts{Success: 3, Expected: 1, Failure: 1}, v)
	assert.Equal(t, int64(5), v.Total())
	assert.InDelta(t, 80.0, c.SuccessRate(), 0.001)
}

func TestCollector_TransportErrorHasNoStatusCode(t *testing.T) {
	c := NewCollector(DefaultCollectorConfig())
	c.Start()
	c.Record(Result{
		Name:    "GET /product-service/api/products",
		Action:  classifier.GetProducts,
		Verdict: classifier.Failure,
		Error:   errors.New("connection refused"),
	})

	s := c.Snapshot()
	assert.Empty(t, s.StatusCodes)
	require.Len(t, s.Errors, 1)
	assert.Equal(t, "connection refused", s.Errors[0].Message)
	assert.Zero(t, s.Errors[0].StatusCode)
}

func TestCollector_Errors(t *testing.T) {
	t.Run("sorted by count", func(t *testing.T) {
		c := NewCollector(DefaultCollectorConfig())
		c.Record(Result{Name: "a", Error: errors.New("boom")})
		for range 3 {
			c.Record(Result{Name: "b", StatusCode: 500, Error: errors.New("server error")})
		}

		errs := c.Snapshot().Errors
		require.Len(t, errs, 2)
		assert.Equal(t, "b", errs[0].Name)
		assert.Equal(t, int64(3), errs[0].Count)
		assert.Equal(t, 500, errs[0].StatusCode)
		assert.Equal(t, "a", errs[1].Name)
	})

	t.Run("distinct messages are capped", func(t *testing.T) {
		c := NewCollector(CollectorConfig{MaxErrors: 2})
		c.Record(Result{Name: "x", Error: errors.New("one")})
		c.Record(Result{Name: "x", Error: errors.New("two")})
		c.Record(Result{Name: "x", Error: errors.New("three")})
		c.Record(Result{Name: "x", Error: errors.New("one")})

		errs := c.Snapshot().Errors
		assert.Len(t, errs, 2)
		assert.Equal(t, int64(2), errs[0].Count)
	})
}

func TestCollector_LatencyStats(t *testing.T) {
	c := NewCollector(DefaultCollectorConfig())
	c.Start()
	for i := 1; i <= 100; i++ {
		c.Record(Result{Name: "n", Success: true, Latency: time.Duration(i) * time.Millisecond})
	}

	s := c.Snapshot()
	assert.Equal(t, time.Millisecond, s.MinLatency)
	assert.Equal(t, 100*time.Millisecond, s.MaxLatency)
	assert.Equal(t, 51*time.Millisecond, s.P50Latency)
	assert.Equal(t, 96*time.Millisecond, s.P95Latency)
	assert.Equal(t, 100*time.Millisecond, s.P99Latency)
	assert.Equal(t, 50500*time.Microsecond, s.AvgLatency)

	ep := s.EndpointStats["n"]
	require.NotNil(t, ep)
	assert.Equal(t, time.Millisecond, ep.MinLatency)
	assert.Equal(t, 100*time.Millisecond, ep.MaxLatency)
	assert.Equal(t, 50500*time.Microsecond, ep.AvgLatency)
}

func TestCollector_LatencyWindow(t *testing.T) {
	c := NewCollector(CollectorConfig{MaxLatencies: 10})
	for i := range 25 {
		c.Record(Result{Latency: time.Duration(i)})
	}
	c.latencyMu.RLock()
	defer c.latencyMu.RUnlock()
	assert.LessOrEqual(t, len(c.latencies), 10)
	assert.Equal(t, int64(24), c.latencies[len(c.latencies)-1])
}

func TestCollector_Duration(t *testing.T) {
	c := NewCollector(DefaultCollectorConfig())
	assert.Zero(t, c.Duration())

	c.Start()
	time.Sleep(5 * time.Millisecond)
	c.Stop()
	d := c.Duration()
	assert.GreaterOrEqual(t, d, 5*time.Millisecond)

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, d, c.Duration(), "duration is frozen after Stop")
}

func TestCollector_Reset(t *testing.T) {
	c := NewCollector(DefaultCollectorConfig())
	c.Start()
	c.Record(Result{Name: "n", Action: classifier.HealthCheck, StatusCode: 200, Success: true, Error: errors.New("x")})
	c.Reset()

	s := c.Snapshot()
	assert.Zero(t, s.TotalRequests)
	assert.Empty(t, s.StatusCodes)
	assert.Empty(t, s.EndpointStats)
	assert.Empty(t, s.Verdicts)
	assert.Empty(t, s.Errors)
	assert.Zero(t, c.Duration())
}

func TestCollector_Concurrent(t *testing.T) {
	c := NewCollector(DefaultCollectorConfig())
	c.Start()

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 250 {
				c.Record(Result{
					Name:       "GET /product-service/api/products",
					Action:     classifier.GetProducts,
					Verdict:    classifier.Success,
					StatusCode: 200,
					Success:    w%2 == 0,
					Latency:    time.Millisecond,
				})
			}
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	assert.Equal(t, int64(2000), s.TotalRequests)
	assert.Equal(t, int64(1000), s.SuccessRequests)
	assert.Equal(t, int64(2000), s.EndpointStats["GET /product-service/api/products"].TotalRequests)
}

func TestRecorders_FanOut(t *testing.T) {
	a := NewCollector(DefaultCollectorConfig())
	b := NewCollector(DefaultCollectorConfig())
	Recorders{a, b}.Record(Result{Success: true})

	assert.Equal(t, int64(1), a.TotalRequests())
	assert.Equal(t, int64(1), b.TotalRequests())
}

func TestPercentileIndex(t *testing.T) {
	tests := []struct {
		n    int
		p    float64
		want int
	}{
		{1, 0.5, 0},
		{10, 0.5, 5},
		{10, 0.99, 9},
		{10, 1.0, 9},
		{100, 0.95, 95},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, percentileIndex(tt.n, tt.p))
	}
}
