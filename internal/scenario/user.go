// Package scenario holds the action catalog virtual users draw from and
// the profiles that weight it.
package scenario

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/example/ecommerce/loadgen/internal/classifier"
	"github.com/example/ecommerce/loadgen/internal/client"
	"github.com/example/ecommerce/loadgen/internal/generator"
	"github.com/example/ecommerce/loadgen/internal/metrics"
	"github.com/example/ecommerce/loadgen/internal/session"
	"github.com/example/ecommerce/loadgen/internal/telemetry"
)

// Doer issues HTTP requests against the target gateway.
// *client.Client satisfies it.
type Doer interface {
	Do(ctx context.Context, req client.Request) (*client.Response, error)
}

// UserConfig holds the collaborators of one virtual user.
type UserConfig struct {
	ID        int
	Profile   string
	Client    Doer
	Generator *generator.Generator
	Pools     session.Capacities
	Recorder  metrics.Recorder
	Logger    *zap.Logger
	Tracer    trace.Tracer
}

// User is the context a virtual user threads through its actions. It owns
// its session pools; nothing in it is shared with other users.
type User struct {
	ID       int
	Profile  string
	State    *session.State
	Gen      *generator.Generator
	Identity generator.Profile

	client   Doer
	recorder metrics.Recorder
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewUser creates a user with freshly seeded pools and a generated identity.
func NewUser(cfg UserConfig) *User {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = noop.NewTracerProvider().Tracer(telemetry.TracerName)
	}
	if cfg.Recorder == nil {
		cfg.Recorder = metrics.Recorders{}
	}
	return &User{
		ID:       cfg.ID,
		Profile:  cfg.Profile,
		State:    session.New(cfg.Pools),
		Gen:      cfg.Generator,
		Identity: cfg.Generator.Profile(),
		client:   cfg.Client,
		recorder: cfg.Recorder,
		logger:   cfg.Logger,
		tracer:   cfg.Tracer,
	}
}

// Logger returns the user's logger.
func (u *User) Logger() *zap.Logger {
	return u.logger
}

// Execute runs one task inside an action span with profiling labels set.
func (u *User) Execute(ctx context.Context, t Task) classifier.Outcome {
	ctx, span := u.tracer.Start(ctx, "action."+t.Name,
		trace.WithAttributes(
			attribute.Int("vu.id", u.ID),
			attribute.String("vu.profile", u.Profile),
		),
	)
	defer span.End()

	var out classifier.Outcome
	telemetry.WithActionLabels(ctx, u.Profile, t.Name, func(ctx context.Context) {
		out = t.Run(ctx, u)
	})

	span.SetAttributes(attribute.String("action.verdict", out.Verdict.String()))
	if out.Verdict == classifier.Failure {
		msg := ""
		if out.Err != nil {
			msg = out.Err.Error()
		}
		span.SetStatus(codes.Error, msg)
	}
	return out
}

// call is one evaluated HTTP exchange.
type call struct {
	classifier.Outcome
	Body []byte
}

func (c call) ok() bool {
	return c.Verdict == classifier.Success
}

func (u *User) get(ctx context.Context, action classifier.Action, path, name string) call {
	return u.do(ctx, action, client.Request{Method: http.MethodGet, Path: path}, name)
}

func (u *User) post(ctx context.Context, action classifier.Action, path string, body any) call {
	return u.do(ctx, action, client.Request{Method: http.MethodPost, Path: path, Body: body}, path)
}

// do issues req, classifies the response and records it. name groups
// parameterised paths in the metrics.
func (u *User) do(ctx context.Context, action classifier.Action, req client.Request, name string) call {
	start := time.Now()
	resp, err := u.client.Do(ctx, req)

	var (
		status int
		body   []byte
		size   int64
		took   = time.Since(start)
	)
	if resp != nil {
		status = resp.StatusCode
		body = resp.Body
		size = int64(len(resp.Body))
		if resp.Duration > 0 {
			took = resp.Duration
		}
	}
	if err != nil {
		// A response that arrived but could not be read still counts as a transport failure.
		status = 0
	}

	out := classifier.Evaluate(action, status, err)
	u.recorder.Record(metrics.Result{
		Name:         req.Method + " " + name,
		Method:       req.Method,
		Path:         req.Path,
		Action:       action,
		Verdict:      out.Verdict,
		StatusCode:   status,
		Latency:      took,
		Success:      out.Verdict.CountsAsSuccess(),
		ResponseSize: size,
		Timestamp:    start,
		Error:        out.Err,
		Profile:      u.Profile,
	})

	if out.Err != nil {
		u.logger.Debug("Request failed",
			zap.String("action", string(action)),
			zap.String("path", req.Path),
			zap.Int("status", status),
			zap.Error(out.Err),
		)
	}
	return call{Outcome: out, Body: body}
}
