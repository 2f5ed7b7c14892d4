package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/occ/internal/models"
	"github.com/desertthunder/occ/internal/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newScanService(t *testing.T, h http.HandlerFunc) *ScanService {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	return NewScanService(NewAPIService(server.URL, server.Client()))
}

func TestScanService(t *testing.T) {
	t.Run("ListActiveScans", func(t *testing.T) {
		t.Run("Bare Array", func(t *testing.T) {
			svc := newScanService(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/api/scans", r.URL.Path)
				w.Write([]byte(`[{"id":"s1","courseId":"c1","status":"processing","createdAt":"2025-01-02 10:00:00.000Z"}]`))
			})

			scans, err := svc.ListActiveScans(context.Background())
			require.NoError(t, err)
			require.Len(t, scans, 1)
			assert.Equal(t, "c1", scans[0].CourseID)
			assert.Equal(t, models.ScanStatusProcessing, scans[0].Status)
		})

		t.Run("Empty Envelope Is Non-Nil", func(t *testing.T) {
			svc := newScanService(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"page":1,"perPage":10,"totalItems":0,"totalPages":0,"items":[]}`))
			})

			scans, err := svc.ListActiveScans(context.Background())
			require.NoError(t, err)
			assert.NotNil(t, scans)
			assert.Empty(t, scans)
		})

		t.Run("Null Items Envelope Is Empty", func(t *testing.T) {
			svc := newScanService(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"items":null,"page":1,"perPage":0,"totalItems":0,"totalPages":1}`))
			})

			scans, err := svc.ListActiveScans(context.Background())
			require.NoError(t, err)
			assert.NotNil(t, scans)
			assert.Empty(t, scans)
		})

		t.Run("Follows Pages", func(t *testing.T) {
			svc := newScanService(t, func(w http.ResponseWriter, r *http.Request) {
				page := r.URL.Query().Get("page")
				if page == "" {
					page = "1"
				}
				fmt.Fprintf(w, `{"page":%s,"perPage":1,"totalItems":2,"totalPages":2,"items":[{"id":"s%s","courseId":"c%s","status":"waiting"}]}`, page, page, page)
			})

			scans, err := svc.ListActiveScans(context.Background())
			require.NoError(t, err)
			require.Len(t, scans, 2)
			assert.Equal(t, "c1", scans[0].CourseID)
			assert.Equal(t, "c2", scans[1].CourseID)
		})

		t.Run("Invalid Status Is ValidationError", func(t *testing.T) {
			svc := newScanService(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`[{"id":"s1","courseId":"c1","status":"exploded"}]`))
			})

			_, err := svc.ListActiveScans(context.Background())
			var valErr *ValidationError
			assert.ErrorAs(t, err, &valErr)
		})

		t.Run("Server Error Is APIError", func(t *testing.T) {
			svc := newScanService(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"message":"scanner offline"}`))
			})

			_, err := svc.ListActiveScans(context.Background())
			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
			assert.Equal(t, "scanner offline", apiErr.Message)
		})
	})

	t.Run("GetScan", func(t *testing.T) {
		t.Run("Found", func(t *testing.T) {
			svc := newScanService(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/scans/c1", r.URL.Path)
				w.Write([]byte(`{"id":"s1","courseId":"c1","status":"waiting"}`))
			})

			scan, err := svc.GetScan(context.Background(), "c1")
			require.NoError(t, err)
			assert.Equal(t, "s1", scan.ID)
		})

		t.Run("Not Found", func(t *testing.T) {
			svc := newScanService(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte(`{"message":"Scan not found"}`))
			})

			_, err := svc.GetScan(context.Background(), "c1")
			assert.ErrorIs(t, err, shared.ErrScanNotFound)
		})
	})

	t.Run("StartScan", func(t *testing.T) {
		t.Run("Posts Course ID", func(t *testing.T) {
			svc := newScanService(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

				var body models.ScanCreate
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, "c1", body.CourseID)
				w.WriteHeader(http.StatusCreated)
				w.Write([]byte(`{"id":"s1","courseId":"c1","status":"waiting"}`))
			})

			assert.NoError(t, svc.StartScan(context.Background(), "c1"))
		})

		t.Run("No Content", func(t *testing.T) {
			svc := newScanService(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			})

			assert.NoError(t, svc.StartScan(context.Background(), "c1"))
		})

		t.Run("Missing Course ID", func(t *testing.T) {
			svc := NewScanService(NewAPIService("http://example.com", nil))
			assert.ErrorIs(t, svc.StartScan(context.Background(), ""), shared.ErrMissingArgument)
		})

		t.Run("Server Message Is Verbatim", func(t *testing.T) {
			svc := newScanService(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"message":"Invalid course ID"}`))
			})

			err := svc.StartScan(context.Background(), "nope")
			assert.EqualError(t, err, "API error (status 400): Invalid course ID")
		})
	})

	t.Run("DeleteScan", func(t *testing.T) {
		var path string
		svc := newScanService(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodDelete, r.Method)
			path = r.URL.Path
			w.WriteHeader(http.StatusNoContent)
		})

		require.NoError(t, svc.DeleteScan(context.Background(), "s 1"))
		assert.Equal(t, "/api/scans/s 1", path)
		assert.ErrorIs(t, svc.DeleteScan(context.Background(), ""), shared.ErrMissingArgument)
	})
}

func TestSubscribeToScanEvents(t *testing.T) {
	t.Run("Dispatches Events In Order", func(t *testing.T) {
		svc := newScanService(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/scans/stream", r.URL.Path)
			assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, ": connected\n\n")
			fmt.Fprint(w, "data: {\"type\":\"all_scans\",\"data\":[]}\n\n")
			fmt.Fprint(w, ": keep-alive\n\n")
			fmt.Fprint(w, "data: {\"type\":\"scan_update\",\"data\":{\"id\":\"s1\",\"courseId\":\"c1\",\"status\":\"processing\"}}\n\n")
			fmt.Fprint(w, "data: {\"type\":\"scan_deleted\",\"data\":{\"id\":\"s1\"}}\n\n")
		})

		var (
			mu    sync.Mutex
			types []models.ScanEventType
		)
		closed := make(chan struct{})

		svc.SubscribeToScanEvents(context.Background(), ScanCallbacks{
			OnUpdate: func(ev *models.ScanEvent) {
				mu.Lock()
				types = append(types, ev.Type)
				mu.Unlock()
			},
			OnError: func(err error) { t.Errorf("unexpected error: %v", err) },
			OnClose: func() { close(closed) },
		})

		select {
		case <-closed:
		case <-time.After(2 * time.Second):
			t.Fatal("stream did not close")
		}

		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []models.ScanEventType{models.EventAllScans, models.EventScanUpdate, models.EventScanDeleted}, types)
	})

	t.Run("Malformed Frame Is Reported And Stream Continues", func(t *testing.T) {
		svc := newScanService(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "data: {not json}\n\n")
			fmt.Fprint(w, "data: {\"type\":\"bogus\",\"data\":null}\n\n")
			fmt.Fprint(w, "data: {\"type\":\"error\",\"message\":\"scan worker crashed\"}\n\n")
		})

		var (
			mu     sync.Mutex
			errs   []error
			events []*models.ScanEvent
		)
		closed := make(chan struct{})

		svc.SubscribeToScanEvents(context.Background(), ScanCallbacks{
			OnUpdate: func(ev *models.ScanEvent) {
				mu.Lock()
				events = append(events, ev)
				mu.Unlock()
			},
			OnError: func(err error) {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			},
			OnClose: func() { close(closed) },
		})
		<-closed

		mu.Lock()
		defer mu.Unlock()
		require.Len(t, errs, 2)
		for _, err := range errs {
			var valErr *ValidationError
			assert.ErrorAs(t, err, &valErr)
		}
		require.Len(t, events, 1)
		assert.Equal(t, "scan worker crashed", events[0].ErrorMessage())
	})
}
