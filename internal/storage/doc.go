// Package storage is the persistence port for reminder tasks.
//
// Drivers:
//   - "sqlite": local database file (modernc.org/sqlite, no cgo)
//   - "postgres": server database (lib/pq)
//   - "file": dependency-free JSON Lines journal + snapshot
//
// Timestamps are stored timezone-naive ("2006-01-02 15:04") and interpreted
// in Config.Location.
package storage
