// Package journal records trigger firings and clock anomalies.
//
// Drivers:
//   - "file": JSON Lines, one entry per line
//   - "sqlite": SQLite database file (build tag sqlite)
//
// The journal is an audit trail. It is never read back to replay missed
// firings after a restart.
package journal
