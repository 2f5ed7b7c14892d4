// Package services implements typed clients for the course library HTTP API.
//
// # Transport
//
// [APIService] owns the [http.Client], the base URL and the credentials (bearer token or session cookie).
// Outbound requests pass through an optional [rate.Limiter]. JSON helpers decode 2xx bodies and validate
// them with the struct tags declared in the models package.
//
// # Error Handling
//
// Failures are typed so callers can react without string matching:
//   - [*APIError] : non-2xx status (with the server's message verbatim) or a network failure (status 0)
//   - [*ValidationError] : the body did not decode or validate; surfaced as "Invalid response from the server"
//
// Both unwrap to sentinels from the shared package ([shared.ErrAPIRequest], [shared.ErrInvalidResponse]).
// 401 and 403 responses additionally trigger the handler registered with [WithUnauthorizedHandler].
//
// # Scans
//
// [ScanService] lists, starts and deletes scans and subscribes to the server-sent events channel at
// /api/scans/stream. Each frame is JSON {type, data} with type one of all_scans, scan_update,
// scan_deleted or error.
//
// # Courses
//
// [CourseService] fetches a single course (used by the scan monitor once a scan completes) and pages of courses.
package services
