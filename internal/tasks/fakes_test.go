package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/occ/internal/models"
	"github.com/desertthunder/occ/internal/services"
	"github.com/desertthunder/occ/internal/shared"
)

// fakeScans is a scripted [services.ScanClient].
type fakeScans struct {
	mu          sync.Mutex
	responses   [][]models.Scan // consumed in order; the last one repeats
	listErr     error
	gate        chan struct{} // when set, ListActiveScans waits for a value
	listCalls   int
	inFlight    int
	maxInFlight int
	startErrs   map[string]error
	started     []string
	subs        []*fakeSub
}

type fakeSub struct {
	cb     services.ScanCallbacks
	cancel context.CancelFunc
	closed chan struct{}
}

// send delivers ev as if it arrived on the channel.
func (s *fakeSub) send(ev *models.ScanEvent) { s.cb.OnUpdate(ev) }

// drop closes the channel from the server side.
func (s *fakeSub) drop() { s.cancel() }

func (f *fakeScans) ListActiveScans(ctx context.Context) ([]models.Scan, error) {
	f.mu.Lock()
	f.listCalls++
	f.inFlight++
	f.maxInFlight = max(f.maxInFlight, f.inFlight)
	gate := f.gate
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	if len(f.responses) == 0 {
		return []models.Scan{}, nil
	}
	resp := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return resp, nil
}

func (f *fakeScans) StartScan(ctx context.Context, courseID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.startErrs[courseID]; err != nil {
		return err
	}
	f.started = append(f.started, courseID)
	return nil
}

func (f *fakeScans) DeleteScan(ctx context.Context, id string) error { return nil }

func (f *fakeScans) SubscribeToScanEvents(ctx context.Context, cb services.ScanCallbacks) func() {
	ctx, cancel := context.WithCancel(ctx)
	sub := &fakeSub{cb: cb, cancel: cancel, closed: make(chan struct{})}

	f.mu.Lock()
	f.subs = append(f.subs, sub)
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		if cb.OnClose != nil {
			cb.OnClose()
		}
		close(sub.closed)
	}()
	return cancel
}

func (f *fakeScans) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

func (f *fakeScans) subscriptions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeScans) lastSub() *fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.subs) == 0 {
		return nil
	}
	return f.subs[len(f.subs)-1]
}

// fakeCourses is a scripted [services.CourseClient].
type fakeCourses struct {
	mu      sync.Mutex
	courses map[string]models.Course
	errs    map[string]error
	gate    chan struct{}
	calls   map[string]int
}

func newFakeCourses(courses ...models.Course) *fakeCourses {
	f := &fakeCourses{courses: make(map[string]models.Course), errs: make(map[string]error), calls: make(map[string]int)}
	for _, c := range courses {
		f.courses[c.ID] = c
	}
	return f
}

func (f *fakeCourses) GetCourse(ctx context.Context, id string) (*models.Course, error) {
	f.mu.Lock()
	f.calls[id]++
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[id]; err != nil {
		return nil, err
	}
	c, ok := f.courses[id]
	if !ok {
		return nil, &services.APIError{Status: 404, Message: "Course not found"}
	}
	return &c, nil
}

func (f *fakeCourses) ListCourses(ctx context.Context, page, perPage int) (*models.CourseList, error) {
	return nil, errors.New("not used")
}

func (f *fakeCourses) callCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

// fakeStrategy records lifecycle calls so the monitor's state machine can be driven by hand.
type fakeStrategy struct {
	mu      sync.Mutex
	starts  int
	stops   int
	running bool
	ctx     context.Context
}

func (s *fakeStrategy) Name() string { return "fake" }

func (s *fakeStrategy) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts++
	s.running = true
	s.ctx = ctx
}

func (s *fakeStrategy) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	s.running = false
}

func (s *fakeStrategy) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// fakeRecorder collects recorded completions.
type fakeRecorder struct {
	mu          sync.Mutex
	gate        chan struct{} // when set, RecordCompletion waits for it to close
	completions []*models.ScanCompletion
}

func (r *fakeRecorder) RecordCompletion(ctx context.Context, c *models.ScanCompletion) error {
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completions = append(r.completions, c)
	return nil
}

func (r *fakeRecorder) all() []*models.ScanCompletion {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.ScanCompletion(nil), r.completions...)
}

// notes collects notifier messages.
type notes struct {
	mu       sync.Mutex
	messages []string
}

func (n *notes) Notify(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
}

func (n *notes) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages...)
}

func quietLogger() *log.Logger {
	l := shared.NewLogger(io.Discard)
	l.SetLevel(log.FatalLevel)
	return l
}

// newManualMonitor returns a monitor whose strategy is a [fakeStrategy].
func newManualMonitor(t *testing.T, courses *fakeCourses, opts MonitorOpts) (*Monitor, *fakeStrategy) {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}

	m := NewMonitor(&fakeScans{}, courses, opts)
	strategy := &fakeStrategy{}
	m.newStrategy = func() Strategy { return strategy }
	return m, strategy
}

func scanEvent(t *testing.T, typ models.ScanEventType, data any) *models.ScanEvent {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("failed to marshal event data: %v", err)
	}
	return &models.ScanEvent{Type: typ, Data: raw}
}

func mkScan(id, courseID string, status models.ScanStatus) models.Scan {
	return models.Scan{ID: id, CourseID: courseID, Status: status}
}
