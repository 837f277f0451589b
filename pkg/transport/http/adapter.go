package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/angelhodar/neuro-exercises/pkg/api"
	"github.com/angelhodar/neuro-exercises/pkg/observability"
	"github.com/angelhodar/neuro-exercises/pkg/transport"
)

// Services are the lifecycle components served over HTTP. Any of them may
// be nil, in which case their routes answer 501.
type Services struct {
	Snapshots transport.SnapshotCache
	Pipeline  transport.SnapshotCreator
	Exercises transport.ExerciseService
	Agents    transport.AgentService
	Health    transport.HealthChecker
}

// Adapter serves the sandbox lifecycle API over HTTP.
// It routes requests to the appropriate service and serializes results.
type Adapter struct {
	svc     Services
	invoker transport.Invoker
	mux     *http.ServeMux
	config  Config
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	Addr            string
	MaxBodySize     int64
	ShutdownTimeout int // seconds
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		MaxBodySize:     1 << 20, // 1 MB
		ShutdownTimeout: 30,
	}
}

// StopResult is the body returned when an exercise sandbox is stopped.
type StopResult struct {
	SandboxID string `json:"sandbox_id"`
}

// AgentSandboxRequest is the body of POST /v1/agent/sandboxes.
type AgentSandboxRequest struct {
	PreviousSandboxID string `json:"previous_sandbox_id,omitempty"`
}

// CreateSnapshotRequest is the body of POST /v1/snapshots.
type CreateSnapshotRequest struct {
	SandboxID string `json:"sandbox_id,omitempty"`
}

// NewAdapter creates an HTTP adapter for the given services.
// Middleware is applied to every lifecycle operation in the given order.
func NewAdapter(svc Services, cfg Config, middlewares ...transport.Middleware) *Adapter {
	invoker := transport.Direct
	if len(middlewares) > 0 {
		invoker = transport.Chain(middlewares...)(invoker)
	}

	a := &Adapter{
		svc:     svc,
		invoker: invoker,
		mux:     http.NewServeMux(),
		config:  cfg,
	}

	a.mux.HandleFunc("POST /v1/exercises/{id}/sandbox", a.handleCreateOrConnect)
	a.mux.HandleFunc("DELETE /v1/exercises/{id}/sandbox", a.handleStop)
	a.mux.HandleFunc("POST /v1/agent/sandboxes", a.handleAgentSandbox)
	a.mux.HandleFunc("GET /v1/snapshots/current", a.handleCurrentSnapshot)
	a.mux.HandleFunc("POST /v1/snapshots", a.handleCreateSnapshot)
	a.mux.HandleFunc("GET /healthz", a.handleHealth)

	return a
}

// Handler returns the http.Handler for this adapter. Use this to integrate
// with an http.Server or test with httptest. The returned handler records
// request metrics and propagates X-Request-ID.
func (a *Adapter) Handler() http.Handler {
	return httpRequestIDMiddleware(observability.MetricsMiddleware(a.mux))
}

// httpRequestIDMiddleware is HTTP-level middleware that propagates the
// X-Request-ID header. A client-supplied ID is stored in the context;
// otherwise one is generated. The ID is echoed in the response headers.
func httpRequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = transport.NewRequestID()
		}
		r = r.WithContext(transport.ContextWithRequestID(r.Context(), id))
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func (a *Adapter) handleCreateOrConnect(w http.ResponseWriter, r *http.Request) {
	const op = "create or connect sandbox"
	if a.svc.Exercises == nil {
		notConfigured(w, op)
		return
	}
	id, apiErr := exerciseID(op, r)
	if apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}
	a.serve(w, r, op, http.StatusOK, func(ctx context.Context) (any, error) {
		return a.svc.Exercises.CreateOrConnect(ctx, id)
	})
}

func (a *Adapter) handleStop(w http.ResponseWriter, r *http.Request) {
	const op = "stop sandbox"
	if a.svc.Exercises == nil {
		notConfigured(w, op)
		return
	}
	id, apiErr := exerciseID(op, r)
	if apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return
	}
	a.serve(w, r, op, http.StatusOK, func(ctx context.Context) (any, error) {
		sandboxID, err := a.svc.Exercises.Stop(ctx, id)
		if err != nil {
			return nil, err
		}
		return StopResult{SandboxID: sandboxID}, nil
	})
}

func (a *Adapter) handleAgentSandbox(w http.ResponseWriter, r *http.Request) {
	const op = "get agent sandbox"
	if a.svc.Agents == nil {
		notConfigured(w, op)
		return
	}
	var req AgentSandboxRequest
	if !a.decode(w, r, op, &req) {
		return
	}
	a.serve(w, r, op, http.StatusOK, func(ctx context.Context) (any, error) {
		return a.svc.Agents.Acquire(ctx, req.PreviousSandboxID)
	})
}

func (a *Adapter) handleCurrentSnapshot(w http.ResponseWriter, r *http.Request) {
	const op = "get snapshot"
	if a.svc.Snapshots == nil {
		notConfigured(w, op)
		return
	}
	a.serve(w, r, op, http.StatusOK, func(ctx context.Context) (any, error) {
		return a.svc.Snapshots.GetOrRefresh(ctx)
	})
}

func (a *Adapter) handleCreateSnapshot(w http.ResponseWriter, r *http.Request) {
	const op = "create snapshot"
	if a.svc.Pipeline == nil {
		notConfigured(w, op)
		return
	}
	var req CreateSnapshotRequest
	if !a.decode(w, r, op, &req) {
		return
	}
	a.serve(w, r, op, http.StatusCreated, func(ctx context.Context) (any, error) {
		return a.svc.Pipeline.CreateSnapshot(ctx, req.SandboxID)
	})
}

func (a *Adapter) handleHealth(w http.ResponseWriter, r *http.Request) {
	if a.svc.Health != nil {
		if err := a.svc.Health.HealthCheck(r.Context()); err != nil {
			transport.WriteErrorResponse(w, api.NewPersistenceError("health check", err), http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// serve runs fn through the middleware chain and writes its result.
func (a *Adapter) serve(w http.ResponseWriter, r *http.Request, op string, status int, fn transport.OpFunc) {
	result, err := a.invoker.Invoke(r.Context(), op, fn)
	if err != nil {
		transport.WriteAPIError(w, transport.ErrorFrom(op, err))
		return
	}
	transport.WriteJSON(w, status, result)
}

// decode reads an optional JSON body into v. An empty body leaves v
// untouched. It writes the error response and returns false on failure.
func (a *Adapter) decode(w http.ResponseWriter, r *http.Request, op string, v any) bool {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError(op, "Content-Type must be application/json"),
			http.StatusUnsupportedMediaType,
		)
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError(op, fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
			http.StatusRequestEntityTooLarge,
		)
		return false
	}
	transport.WriteAPIError(w, api.NewInvalidRequestError(op, "invalid JSON: "+err.Error()))
	return false
}

func exerciseID(op string, r *http.Request) (int64, *api.Error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, api.NewInvalidRequestError(op, "exercise id must be a positive integer")
	}
	return id, nil
}

func notConfigured(w http.ResponseWriter, op string) {
	transport.WriteErrorResponse(w,
		api.NewInvalidRequestError(op, op+" is not available on this server"),
		http.StatusNotImplemented,
	)
}
