// Package store provides SQLite-backed durable storage for raw propagation data.
//
// Each propagation run writes one artifact: a SQLite file holding
//   - runs: run metadata (method, n, seed, ordered inputs, plan hash,
//     timestamp, status, final result)
//   - records: every evaluation record, keyed by (run_id, idx)
//
// The artifact is self-describing: replaying its records through the
// aggregator reproduces the stored result without re-running the model.
//
// # Critical Patterns
//
// Record-Level Idempotency
//   - UNIQUE(run_id, idx) constraint
//   - Re-appending an already persisted record is a no-op
//
// Deterministic Ordering
//   - All record queries use ORDER BY idx ASC
//   - created_at is metadata only and never used for ordering records
//
// Visible Failures
//   - Every write error is returned to the caller; persistence is explicit
//     user intent, so nothing is silently dropped
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
