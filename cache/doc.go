// Package cache provides the single-flight tool result cache shared by all
// agents of a sleuth run.
//
// Entries are keyed by a deterministic fingerprint, carry their own TTL and are
// evicted in least-recently-used order once the capacity is reached. Concurrent
// requests for the same missing key run the computation once; every waiter
// receives the same value. Errors are never cached.
//
// A cache can be persisted to a Store (JSON file or SQLite) and loaded back at
// the start of the next run. Expired entries are skipped on load.
package cache
