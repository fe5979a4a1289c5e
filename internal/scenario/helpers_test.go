package scenario

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"go.uber.org/zap/zaptest"

	"github.com/example/ecommerce/loadgen/internal/client"
	"github.com/example/ecommerce/loadgen/internal/generator"
	"github.com/example/ecommerce/loadgen/internal/metrics"
	"github.com/example/ecommerce/loadgen/internal/session"
)

var errConnRefused = errors.New("dial tcp 127.0.0.1:8080: connect: connection refused")

// stubDoer answers requests from a route table keyed by "METHOD path"
// (query excluded) and records every request it sees.
type stubDoer struct {
	mu       sync.Mutex
	routes   map[string]stubResponse
	fallback stubResponse
	requests []client.Request
}

type stubResponse struct {
	status int
	body   string
	err    error
}

func newStubDoer(routes map[string]stubResponse) *stubDoer {
	return &stubDoer{routes: routes, fallback: stubResponse{status: 200}}
}

func (d *stubDoer) Do(_ context.Context, req client.Request) (*client.Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.requests = append(d.requests, req)

	path, _, _ := strings.Cut(req.Path, "?")
	r, ok := d.routes[req.Method+" "+path]
	if !ok {
		r = d.fallback
	}
	if r.err != nil {
		return &client.Response{}, r.err
	}
	return &client.Response{StatusCode: r.status, Body: []byte(r.body)}, nil
}

func (d *stubDoer) paths() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.requests))
	for i, r := range d.requests {
		out[i] = r.Method + " " + r.Path
	}
	return out
}

func (d *stubDoer) last() client.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.requests[len(d.requests)-1]
}

func newTestUser(t *testing.T, doer Doer, seed uint64) (*User, *metrics.Collector) {
	t.Helper()
	collector := metrics.NewCollector(metrics.DefaultCollectorConfig())
	u := NewUser(UserConfig{
		ID:        1,
		Profile:   Standard,
		Client:    doer,
		Generator: generator.New(gofakeit.New(seed)),
		Pools:     session.DefaultCapacities(),
		Recorder:  collector,
		Logger:    zaptest.NewLogger(t),
	})
	return u, collector
}
