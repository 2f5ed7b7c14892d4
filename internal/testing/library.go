package testing

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/occ/internal/models"
	"github.com/go-chi/chi/v5"
)

// FakeLibrary is an in-memory course library server exposing the scan and course endpoints.
//
// Scans started through the API stay in the waiting state until the test moves them along with
// [FakeLibrary.SetScanStatus] and [FakeLibrary.FinishScan]. Every change is pushed to open streams.
type FakeLibrary struct {
	Server *httptest.Server

	mu       sync.Mutex
	courses  map[string]models.Course
	scans    []models.Scan
	streams  map[*eventStream]struct{}
	failures map[string]failure
	requests map[string]int
	nextID   int
	// noSnapshot stops streams from opening with an all_scans frame.
	noSnapshot bool
}

type failure struct {
	status  int
	message string
}

type eventStream struct {
	events chan []byte
	done   chan struct{}
	once   sync.Once
}

func (s *eventStream) close() { s.once.Do(func() { close(s.done) }) }

// NewFakeLibrary starts a fake library server that is shut down when t finishes.
func NewFakeLibrary(t *testing.T) *FakeLibrary {
	t.Helper()

	f := &FakeLibrary{
		courses:  make(map[string]models.Course),
		streams:  make(map[*eventStream]struct{}),
		failures: make(map[string]failure),
		requests: make(map[string]int),
	}
	f.Server = httptest.NewServer(f.Router())
	t.Cleanup(func() {
		f.DropStreams()
		f.Server.Close()
	})
	return f
}

// URL returns the server's base URL.
func (f *FakeLibrary) URL() string { return f.Server.URL }

// Router builds the chi router serving the fake API.
func (f *FakeLibrary) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(f.countRequests)
	r.Use(f.injectFailures)

	r.Route("/api", func(r chi.Router) {
		r.Get("/scans", f.listScans)
		r.Post("/scans", f.startScan)
		r.Get("/scans/stream", f.streamScans)
		r.Get("/scans/{courseId}", f.getScan)
		r.Delete("/scans/{id}", f.deleteScan)
		r.Get("/courses", f.listCourses)
		r.Get("/courses/{id}", f.getCourse)
	})
	return r
}

// AddCourse stores a course.
func (f *FakeLibrary) AddCourse(c models.Course) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.courses[c.ID] = c
}

// UpdateCourse applies fn to a stored course.
func (f *FakeLibrary) UpdateCourse(id string, fn func(*models.Course)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.courses[id]
	fn(&c)
	f.courses[id] = c
}

// SetScanStatus creates or updates the active scan of a course and pushes a scan_update event.
func (f *FakeLibrary) SetScanStatus(courseID string, status models.ScanStatus) models.Scan {
	f.mu.Lock()
	defer f.mu.Unlock()

	scan := f.upsertLocked(courseID)
	scan.Status = status
	f.broadcastLocked(models.EventScanUpdate, *scan)
	return *scan
}

// FinishScan removes the active scan of a course and pushes a scan_deleted event.
func (f *FakeLibrary) FinishScan(courseID string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := slices.IndexFunc(f.scans, func(s models.Scan) bool { return s.CourseID == courseID })
	if i < 0 {
		return
	}
	id := f.scans[i].ID
	f.scans = slices.Delete(f.scans, i, i+1)
	f.broadcastLocked(models.EventScanDeleted, models.DeletedScan{ID: id})
}

// RemoveScanSilently removes a scan without notifying streams, as if the event was lost.
func (f *FakeLibrary) RemoveScanSilently(courseID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans = slices.DeleteFunc(f.scans, func(s models.Scan) bool { return s.CourseID == courseID })
}

// Scans returns a copy of the active scans.
func (f *FakeLibrary) Scans() []models.Scan {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.scans)
}

// Broadcast pushes a raw data frame to every open stream.
func (f *FakeLibrary) Broadcast(data string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendLocked([]byte(data))
}

// FailNext makes the next request to method and path answer with status and a {message} body.
func (f *FakeLibrary) FailNext(method, path string, status int, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method+" "+path] = failure{status: status, message: message}
}

// Requests returns how many requests were received for method and path.
func (f *FakeLibrary) Requests(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[method+" "+path]
}

// StreamCount returns the number of open event streams.
func (f *FakeLibrary) StreamCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.streams)
}

// DisableSnapshots makes new streams start with live events only, like a server that does not
// replay its state on connect.
func (f *FakeLibrary) DisableSnapshots() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.noSnapshot = true
}

// DropStreams closes every open event stream from the server side.
func (f *FakeLibrary) DropStreams() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for s := range f.streams {
		s.close()
		delete(f.streams, s)
	}
}

func (f *FakeLibrary) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests[r.Method+" "+r.URL.Path]++
		f.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (f *FakeLibrary) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		f.mu.Lock()
		fail, ok := f.failures[key]
		delete(f.failures, key)
		f.mu.Unlock()

		if ok {
			writeError(w, fail.status, fail.message)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *FakeLibrary) listScans(w http.ResponseWriter, r *http.Request) {
	scans := f.Scans()
	writeJSON(w, http.StatusOK, models.ScanList{
		Pagination: models.Pagination{Page: 1, PerPage: len(scans), TotalItems: len(scans), TotalPages: 1},
		Items:      scans,
	})
}

func (f *FakeLibrary) getScan(w http.ResponseWriter, r *http.Request) {
	courseID := chi.URLParam(r, "courseId")
	for _, s := range f.Scans() {
		if s.CourseID == courseID {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeError(w, http.StatusNotFound, "Scan not found")
}

func (f *FakeLibrary) startScan(w http.ResponseWriter, r *http.Request) {
	var req models.ScanCreate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CourseID == "" {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.courses[req.CourseID]; !ok {
		writeError(w, http.StatusBadRequest, "Invalid course ID")
		return
	}

	for _, s := range f.scans {
		if s.CourseID == req.CourseID {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}

	scan := f.upsertLocked(req.CourseID)
	f.broadcastLocked(models.EventScanUpdate, *scan)
	writeJSON(w, http.StatusCreated, *scan)
}

func (f *FakeLibrary) deleteScan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	f.mu.Lock()
	defer f.mu.Unlock()

	i := slices.IndexFunc(f.scans, func(s models.Scan) bool { return s.ID == id })
	if i < 0 {
		writeError(w, http.StatusNotFound, "Scan not found")
		return
	}
	f.scans = slices.Delete(f.scans, i, i+1)
	f.broadcastLocked(models.EventScanDeleted, models.DeletedScan{ID: id})
	w.WriteHeader(http.StatusNoContent)
}

func (f *FakeLibrary) streamScans(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	s := &eventStream{events: make(chan []byte, 64), done: make(chan struct{})}

	f.mu.Lock()
	var snapshot []byte
	if !f.noSnapshot {
		snapshot, _ = json.Marshal(map[string]any{"type": models.EventAllScans, "data": slices.Clone(f.scans)})
	}
	f.streams[s] = struct{}{}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		delete(f.streams, s)
		f.mu.Unlock()
	}()

	fmt.Fprint(w, ": connected\n\n")
	if snapshot != nil {
		fmt.Fprintf(w, "data: %s\n\n", snapshot)
	}
	flusher.Flush()

	keepAlive := time.NewTicker(15 * time.Second)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.done:
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case data := <-s.events:
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func (f *FakeLibrary) listCourses(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	items := make([]models.Course, 0, len(f.courses))
	for _, c := range f.courses {
		items = append(items, c)
	}
	f.mu.Unlock()

	slices.SortFunc(items, func(a, b models.Course) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})

	writeJSON(w, http.StatusOK, models.CourseList{
		Pagination: models.Pagination{Page: 1, PerPage: len(items), TotalItems: len(items), TotalPages: 1},
		Items:      items,
	})
}

func (f *FakeLibrary) getCourse(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	c, ok := f.courses[chi.URLParam(r, "id")]
	f.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "Course not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (f *FakeLibrary) upsertLocked(courseID string) *models.Scan {
	for i := range f.scans {
		if f.scans[i].CourseID == courseID {
			return &f.scans[i]
		}
	}

	f.nextID++
	course := f.courses[courseID]
	f.scans = append(f.scans, models.Scan{
		ID:          fmt.Sprintf("scan-%d", f.nextID),
		CourseID:    courseID,
		CourseTitle: course.Title,
		CoursePath:  course.Path,
		Status:      models.ScanStatusWaiting,
		CreatedAt:   models.Timestamp(time.Now().UTC()),
	})
	return &f.scans[len(f.scans)-1]
}

func (f *FakeLibrary) broadcastLocked(typ models.ScanEventType, data any) {
	b, err := json.Marshal(map[string]any{"type": typ, "data": data})
	if err != nil {
		return
	}
	f.sendLocked(b)
}

func (f *FakeLibrary) sendLocked(b []byte) {
	for s := range f.streams {
		select {
		case s.events <- b:
		default:
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
