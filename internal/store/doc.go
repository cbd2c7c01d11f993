// Package store provides a SQLite-backed catalog of compiled queries.
//
// Each entry records a query model by fingerprint together with the SQL it
// compiled to. Entries are immutable: writing a fingerprint twice keeps the
// first entry.
//
// # Ordering
//
// Entries carry a logical sequence number assigned on insert. Listings are
// ordered by seq ASC, fingerprint COLLATE BINARY ASC and never by wall time.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// Fingerprints come from querymodel.Fingerprint.
package store
