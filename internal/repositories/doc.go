// Package repositories implements SQLite persistence for the scan monitor.
//
// Key Implementations:
//   - [HistoryRepository] : completed scans observed by the monitor, implementing tasks.CompletionRecorder
//   - [TrackedCourseRepository] : the watch list kept across restarts
//
// Completion rows carry a UUID and a sequence number. The [NextSequence] function atomically
// increments per-table counters kept in dedicated sequence tables.
package repositories
