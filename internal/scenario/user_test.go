package scenario

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"

	"github.com/example/ecommerce/loadgen/internal/classifier"
	"github.com/example/ecommerce/loadgen/internal/client"
	"github.com/example/ecommerce/loadgen/internal/config"
	"github.com/example/ecommerce/loadgen/internal/generator"
	"github.com/example/ecommerce/loadgen/internal/metrics"
	"github.com/example/ecommerce/loadgen/internal/session"
)

func TestNewUser(t *testing.T) {
	u, _ := newTestUser(t, newStubDoer(nil), 1)

	assert.Equal(t, session.Stats{Products: 20, Orders: 0, Users: 10}, u.State.Stats())
	assert.GreaterOrEqual(t, u.Identity.UserID, 1000)
	assert.LessOrEqual(t, u.Identity.UserID, 99999)
	assert.NotNil(t, u.Logger())
}

func TestNewUser_PoolsAreNotShared(t *testing.T) {
	a, _ := newTestUser(t, newStubDoer(nil), 1)
	b, _ := newTestUser(t, newStubDoer(nil), 1)

	a.State.RecordOrder(session.OrderRecord{OrderID: 1})
	assert.Equal(t, 1, a.State.Orders.Len())
	assert.Equal(t, 0, b.State.Orders.Len())
}

func attrValue(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestUser_Execute_RecordsSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	doer := newStubDoer(map[string]stubResponse{"POST " + OrdersPath: {status: 500}})
	u := NewUser(UserConfig{
		ID:        42,
		Profile:   Heavy,
		Client:    doer,
		Generator: generator.New(gofakeit.New(1)),
		Logger:    zaptest.NewLogger(t),
		Tracer:    tp.Tracer("test"),
	})

	out := u.Execute(context.Background(), Task{Name: "frequent_orders", Weight: 1, Run: CreateOrder})
	assert.Equal(t, classifier.Failure, out.Verdict)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "action.frequent_orders", span.Name())
	assert.Equal(t, codes.Error, span.Status().Code)

	id, ok := attrValue(span.Attributes(), "vu.id")
	require.True(t, ok)
	assert.Equal(t, int64(42), id.AsInt64())
	profile, ok := attrValue(span.Attributes(), "vu.profile")
	require.True(t, ok)
	assert.Equal(t, Heavy, profile.AsString())
	verdict, ok := attrValue(span.Attributes(), "action.verdict")
	require.True(t, ok)
	assert.Equal(t, "failure", verdict.AsString())
}

func TestUser_AgainstHTTPServer(t *testing.T) {
	var (
		mu       sync.Mutex
		received []map[string]any
		headers  []http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case OrdersPath, PaymentsPath, ShippingsPath:
			var body map[string]any
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			mu.Lock()
			received = append(received, body)
			headers = append(headers, r.Header.Clone())
			mu.Unlock()
			w.WriteHeader(http.StatusCreated)
		case ProductsPath:
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[{"productId":501},{"productId":502}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c, err := client.NewClient(config.TargetConfig{BaseURL: srv.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)
	defer c.Close()

	collector := metrics.NewCollector(metrics.DefaultCollectorConfig())
	u := NewUser(UserConfig{
		ID:        1,
		Profile:   Integration,
		Client:    c,
		Generator: generator.New(gofakeit.New(99)),
		Recorder:  collector,
		Logger:    zaptest.NewLogger(t),
	})

	out := FullFlow(context.Background(), u)
	require.Equal(t, classifier.Success, out.Verdict)
	assert.Equal(t, 20, u.State.Products.Len(), "the flow reads products without pooling them")
	assert.Equal(t, 1, u.State.Orders.Len())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 3)
	assert.Equal(t, "Complete flow test order", received[0]["orderDesc"])
	assert.Equal(t, "COMPLETED", received[1]["paymentStatus"])
	assert.Equal(t, received[0]["orderId"], received[2]["orderId"])
	for _, h := range headers {
		assert.Equal(t, "application/json", h.Get("Content-Type"))
		assert.Equal(t, "application/json", h.Get("Accept"))
		assert.Equal(t, config.DefaultUserAgent, h.Get("User-Agent"))
		assert.NotEmpty(t, h.Get(client.RequestIDHeader))
	}

	s := collector.Snapshot()
	assert.Equal(t, int64(4), s.TotalRequests)
	assert.Equal(t, int64(4), s.SuccessRequests)
}
