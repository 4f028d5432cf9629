// Package session implements the Session State Merger and the storage side of
// sessions.
//
// Merging:
//   - Reconcile folds a bag held in memory into the bag loaded for the
//     current session id; loaded values win on collision.
//   - Propagate overwrites a delegated member's copy of the team-shared bag
//     with the coordinator's bag.
//   - PropagateUp merges the member's copy back; keys the member wrote win.
//
// Storage: Manager wraps a core.SessionStore and degrades to an in-process
// cache when the store fails. Backends live here (InMemoryStore, FileStore)
// and in sub-packages (sqlite).
package session
