// Package engine is the reference permission engine behind the REST gateway.
//
// It keeps users, groups and tracks in an in-memory registry backed by the
// SQLite store in internal/infrastructure/database, and implements the
// contracts in internal/perms:
//
//   - storage operations run on their own goroutines, bounded by a weighted
//     semaphore, and complete an async.Future
//   - permission checks walk the inheritance graph depth first, heaviest
//     parent first, and honour wildcard and regex nodes
//   - tracks promote and demote users with the usual status codes
//   - submitted actions are persisted and published on the event bus
//
// Usage:
//
//	repo := engine.NewSQLiteRepository(db)
//	eng := engine.New(repo, engine.Options{Logger: log})
//	if err := eng.Start(ctx); err != nil {
//	    return err
//	}
//	defer eng.Close()
//
// Sync and NetworkSync reload loaded state from storage; the messaging
// service calls NetworkSync when a peer announces a change.
package engine
