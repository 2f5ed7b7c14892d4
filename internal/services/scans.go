// Scan resource client
package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/desertthunder/occ/internal/models"
	"github.com/desertthunder/occ/internal/shared"
)

const (
	scansPath      = "/api/scans"
	scanStreamPath = "/api/scans/stream"
)

// maxScanPages guards against a server that keeps reporting more pages.
const maxScanPages = 100

// ScanCallbacks receive events from [ScanService.SubscribeToScanEvents].
type ScanCallbacks struct {
	OnUpdate func(ev *models.ScanEvent) // each well-formed event
	OnError  func(err error)            // malformed events and channel failures
	OnClose  func()                     // exactly once, including after unsubscribe
}

// ScanService binds the scan endpoints of the course library API.
type ScanService struct {
	api *APIService
}

// NewScanService creates a scan client on top of api.
func NewScanService(api *APIService) *ScanService {
	return &ScanService{api: api}
}

// ListActiveScans returns every scan the server currently reports as active.
//
// Calls GET /api/scans, following pages when the server paginates.
func (s *ScanService) ListActiveScans(ctx context.Context) ([]models.Scan, error) {
	var scans []models.Scan
	for page := 1; page <= maxScanPages; page++ {
		path := scansPath
		if page > 1 {
			path = fmt.Sprintf("%s?%s", scansPath, url.Values{"page": {fmt.Sprint(page)}}.Encode())
		}

		var list models.ScanList
		if err := s.api.doJSON(ctx, http.MethodGet, path, nil, &list); err != nil {
			return nil, err
		}
		scans = append(scans, list.Items...)

		if list.TotalPages <= list.Page || len(list.Items) == 0 {
			break
		}
	}
	if scans == nil {
		scans = []models.Scan{}
	}
	return scans, nil
}

// GetScan returns the active scan of a course.
//
// Calls GET /api/scans/{courseId}. A 404 maps to [shared.ErrScanNotFound].
func (s *ScanService) GetScan(ctx context.Context, courseID string) (*models.Scan, error) {
	if courseID == "" {
		return nil, fmt.Errorf("%w: course id", shared.ErrMissingArgument)
	}

	var scan models.Scan
	err := s.api.doJSON(ctx, http.MethodGet, scansPath+"/"+url.PathEscape(courseID), nil, &scan)
	if isNotFound(err) {
		return nil, fmt.Errorf("%w: %w", shared.ErrScanNotFound, err)
	}
	if err != nil {
		return nil, err
	}
	return &scan, nil
}

// StartScan asks the server to scan a course.
//
// Calls POST /api/scans {courseId}. The server is assumed to no-op if the course already has an active scan.
func (s *ScanService) StartScan(ctx context.Context, courseID string) error {
	if courseID == "" {
		return fmt.Errorf("%w: course id", shared.ErrMissingArgument)
	}
	return s.api.doJSON(ctx, http.MethodPost, scansPath, models.ScanCreate{CourseID: courseID}, nil)
}

// DeleteScan cancels and removes a scan.
//
// Calls DELETE /api/scans/{id}.
func (s *ScanService) DeleteScan(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: scan id", shared.ErrMissingArgument)
	}
	return s.api.doJSON(ctx, http.MethodDelete, scansPath+"/"+url.PathEscape(id), nil, nil)
}

// SubscribeToScanEvents opens the scan push channel at GET /api/scans/stream.
//
// Malformed frames are reported to cb.OnError as [*ValidationError] and the channel stays open.
// The returned function closes the channel and may be called any number of times.
func (s *ScanService) SubscribeToScanEvents(ctx context.Context, cb ScanCallbacks) (unsubscribe func()) {
	return s.api.Stream(ctx, scanStreamPath, StreamCallbacks{
		OnMessage: func(data []byte) {
			ev, err := models.ParseScanEvent(data)
			if err != nil {
				if cb.OnError != nil {
					cb.OnError(&ValidationError{Status: http.StatusOK, Err: err})
				}
				return
			}
			if cb.OnUpdate != nil {
				cb.OnUpdate(ev)
			}
		},
		OnError: cb.OnError,
		OnClose: cb.OnClose,
	})
}
