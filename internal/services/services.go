// package services defines clients for the course library HTTP API
//
// Scans (list, start, delete, push channel) and courses (get, list)
package services

import (
	"context"

	"github.com/desertthunder/occ/internal/models"
)

var (
	_ ScanClient   = (*ScanService)(nil)
	_ CourseClient = (*CourseService)(nil)
)

// ScanClient defines the scan operations of the course library API.
type ScanClient interface {
	// ListActiveScans returns every active scan.
	ListActiveScans(ctx context.Context) ([]models.Scan, error)

	// StartScan requests a scan of the given course.
	StartScan(ctx context.Context, courseID string) error

	// DeleteScan cancels a scan by its ID.
	DeleteScan(ctx context.Context, id string) error

	// SubscribeToScanEvents opens the push channel and returns an idempotent unsubscribe function.
	SubscribeToScanEvents(ctx context.Context, cb ScanCallbacks) func()
}

// CourseClient defines the course operations of the course library API.
type CourseClient interface {
	// GetCourse fetches a single course by ID.
	GetCourse(ctx context.Context, id string) (*models.Course, error)

	// ListCourses fetches one page of courses.
	ListCourses(ctx context.Context, page, perPage int) (*models.CourseList, error)
}
