// Package store provides SQLite-backed durable storage for questionnaire
// sessions.
//
// The store is an append-only answer log:
//   - Sessions: one row per session, pinned to the template hash it started on
//   - Answers: every submission in order, keyed by (session_id, seq)
//
// # Ordering
//
// seq is the session's logical clock (engine.Snapshot.Version), never a
// timestamp. Every query that returns answers orders by seq ASC, so replaying
// the log feeds ProcessAnswer the same submissions in the same order.
//
// # Replay
//
// Replay rebuilds an engine.Session by re-running the logged submissions
// against the template. It refuses to run against a template whose hash
// differs from the one the session was recorded with.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
