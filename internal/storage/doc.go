// Package storage is the durable home of the punishment log.
//
// The log is a single JSON object persisted as a whole document. Every driver
// replaces the document atomically, so a reader never observes a partial write
// and a crash mid-write leaves the previous document intact.
//
// Drivers:
//   - "file":   a JSON file replaced via temp file + rename (default)
//   - "bolt":   a bbolt database holding the document under one key
//   - "memory": process-local, for tests and dry runs
package storage
