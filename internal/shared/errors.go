package shared

import "fmt"

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Authentication errors
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrTimeout          = fmt.Errorf("operation timed out")

	// API and service errors
	ErrAPIRequest         = fmt.Errorf("API request failed")
	ErrInvalidResponse    = fmt.Errorf("invalid response from the server")
	ErrServiceUnavailable = fmt.Errorf("service unavailable")
	ErrChannelClosed      = fmt.Errorf("event channel closed")
	ErrCourseNotFound     = fmt.Errorf("course not found")
	ErrScanNotFound       = fmt.Errorf("scan not found")

	// Monitor errors
	ErrNotTracked = fmt.Errorf("not tracked")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)
