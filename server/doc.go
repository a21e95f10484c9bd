// Package server provides the engine's HTTP status API using Gin, served
// over HTTP/1.1 and h2c on one port.
//
// The server follows the component pattern with lifecycle management and
// plugs into component.Registry next to the engine.
//
// # Middleware
//
// Built-in middleware (server/middleware), applied to every route by
// ApplyMiddleware:
//
//   - Recovery: Panic recovery with structured logging
//   - RequestID: Request ID generation and propagation
//   - CORS: Cross-origin resource sharing configuration
//   - RateLimit: Per-client token bucket
//   - RequestLogger: Request logging with duration tracking
//
// # Endpoints
//
// Registered by RegisterDefaultEndpoints (server/endpoint):
//
//   - GET /health: Health aggregated over registered components
//   - GET /status: Engine and pipeline snapshots
//   - GET /pipelines/:name: One pipeline's snapshot
//   - POST /cancel: Signal the engine to stop
package server
