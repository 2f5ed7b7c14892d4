// Package tasks keeps client-side state in sync with long-running scan jobs on the course library server.
//
// # Monitor
//
// A [Monitor] is created once per session and shared by every view. Views register interest with
// [Monitor.TrackCourses], [Monitor.TrackScans] and [Monitor.TrackScansSlice]; the monitor runs its
// update mechanism exactly while at least one course or scan is tracked and stops it when the count
// drops back to zero or [Monitor.ClearAll] is called.
//
// Each reconciliation builds a fresh course ID → status map and publishes it as a whole through
// [Monitor.StatusView]. A course that had an active scan and no longer does is treated as finished:
// its tracked record is refetched and overwritten in place, then untracked whether or not the fetch
// succeeded. Refetches run in the background and never delay publishing.
//
// # Strategies
//
// The update mechanism is a [Strategy]:
//   - [StreamStrategy] (default) : applies all_scans, scan_update, scan_deleted and error events
//     from the server-sent events channel and reopens the channel after a constant delay when it closes
//   - [PollStrategy] : lists active scans every 3s, measured from the end of the previous poll,
//     and never runs two polls at once
//
// # Concurrency
//
// Strategy goroutines call back into the monitor, which holds one mutex while it mutates tracking
// state or tracked records. Every callback first checks that the strategy run that produced it is
// still current, so results that arrive after a stop are dropped instead of resurrecting state.
//
// # Progress Reporting
//
// The optional [ProgressUpdate] channel receives status changes, completions, refresh results,
// reconnects and failures. Updates use select with default to prevent blocking.
//
// # Failures
//
// Failures never reach the callers of the tracking methods. They are logged and passed to the
// configured [Notifier] as user-facing text. A [CompletionRecorder] (the SQLite history repository)
// receives every observed completion.
//
// # Bulk Start
//
// [StartScans] requests scans for several courses with a rate-limited worker pool.
package tasks
