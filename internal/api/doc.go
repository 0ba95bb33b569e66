// Package api implements the HTTP gateway in front of the permission engine.
//
// This package provides:
//   - REST endpoints for users, groups, tracks, the action log and messaging
//   - Server-sent event streams for engine lifecycle events
//   - A bearer-key auth gate
//   - Middleware stack (request ID, logging, telemetry, recovery)
//
// # Request Flow
//
// Every handler is an operation that turns a request into a future reply.
// One adapter awaits the future, bounded by timeouts.await, and writes the
// result. Errors from parsing, the engine or the wire layer all reach the
// same translator, which maps them to a status code and a plain-text body.
//
// # Caching
//
// Reads resolve through the entity cache. Writes always load a fresh copy
// from the engine, mutate it, save it and ask the messaging service to tell
// other instances.
//
// # Graceful Degradation
//
// The server operates without a messaging service. Writes still succeed and
// the /messaging endpoints answer 501.
package api
