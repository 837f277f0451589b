// Package transport defines the service interfaces and middleware chain for
// the sandbox lifecycle HTTP layer.
//
// The transport layer sits between thin callers (the web application's
// server actions, operators) and the lifecycle core in pkg/snapshot,
// pkg/agent and pkg/exercise. It decodes requests, dispatches each
// lifecycle call through an Invoker, and writes results or typed errors
// back as JSON.
//
// # Services
//
// Each lifecycle component is consumed through a narrow interface
// (SnapshotCache, SnapshotCreator, ExerciseService, AgentService) so the
// HTTP adapter can be tested against fakes.
//
// # Middleware
//
// The middleware chain wraps the Invoker with cross-cutting concerns.
// Built-in middleware provides panic recovery, request ID assignment
// (X-Request-ID), and structured logging via log/slog.
package transport
