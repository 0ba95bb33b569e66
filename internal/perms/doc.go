// Package perms defines the permission model served by the REST gateway and
// the contract of the engine that owns it.
//
// The engine (storage, inheritance, context matching, priority resolution)
// is an external collaborator. This package only describes what the gateway
// consumes from it:
//
//	┌────────────────────────────────────────────────────────────┐
//	│                          Engine                             │
//	│                                                             │
//	│  UserManager   GroupManager   TrackManager   ActionLogger   │
//	│       │              │              │              │        │
//	│       └──────────────┴──────┬───────┴──────────────┘        │
//	│                             │ *async.Future[T]              │
//	│  Calculator (cached data)   │        EventBus               │
//	└─────────────────────────────┼───────────────────────────────┘
//	                              ▼
//	                     REST gateway (api)
//
// # Key Types
//
//   - Node: a permission grant or denial with optional context and expiry
//   - ContextSet: immutable multimap scoping where a node applies
//   - User, Group: permission holders, each with a thread-safe NodeMap
//   - Track: ordered group list used for promotion and demotion
//   - QueryOptions: mode, flags and context used to compute cached data
//   - Action: immutable audit-log record
//   - Event: transient engine lifecycle notification
//
// Entities are shared between the engine's loaded registry and in-flight
// requests, so all mutable state on them is guarded by their own locks.
package perms
