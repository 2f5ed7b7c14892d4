package tasks

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/occ/internal/models"
	"github.com/desertthunder/occ/internal/services"
	"github.com/desertthunder/occ/internal/shared"
	"github.com/desertthunder/occ/internal/store"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultPollInterval   = 3000 * time.Millisecond
	DefaultReconnectDelay = 1000 * time.Millisecond
)

// StatusMap maps a course ID to the status of its active scan.
//
// A published StatusMap is never modified; writers publish a new map.
type StatusMap map[string]models.ScanStatus

// Notifier surfaces failures to the user.
type Notifier interface {
	Notify(message string)
}

// NotifierFunc adapts a function to [Notifier].
type NotifierFunc func(message string)

func (f NotifierFunc) Notify(message string) { f(message) }

// LogNotifier reports failures through a logger.
type LogNotifier struct {
	logger *log.Logger
}

// NewLogNotifier creates a [Notifier] that logs each message at error level.
func NewLogNotifier(logger *log.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(message string) { n.logger.Error(message) }

// CompletionRecorder stores observed scan completions.
//
// Implemented by repositories.HistoryRepository. Errors are logged and otherwise ignored.
type CompletionRecorder interface {
	RecordCompletion(ctx context.Context, c *models.ScanCompletion) error
}

// Strategy is an update mechanism driven by a [Monitor].
//
// Start must not block or call back into the monitor before returning. Stop must not wait for
// in-flight work; results that arrive after Stop are discarded by the monitor.
type Strategy interface {
	Name() string
	Start(ctx context.Context)
	Stop()
}

// MonitorOpts configures a [Monitor]. Zero values select the defaults.
type MonitorOpts struct {
	Strategy       string                // shared.StrategyStream (default) or shared.StrategyPoll
	PollInterval   time.Duration         // delay between the end of one poll and the start of the next
	ReconnectDelay time.Duration         // delay before reopening a closed stream
	Logger         *log.Logger           // defaults to shared.NewLogger(nil)
	Notifier       Notifier              // defaults to a [LogNotifier]
	Recorder       CompletionRecorder    // optional
	Progress       chan<- ProgressUpdate // optional, never blocked on
	Context        context.Context       // parent of every strategy run and course refresh
}

// Monitor tracks server-side scans for the courses and scans registered with it.
//
// The update mechanism runs iff at least one course or scan is tracked. Records handed to the
// monitor stay owned by the caller; the monitor overwrites them in place and never replaces them.
// Read tracked records inside [Monitor.Inspect] when the monitor may be running.
type Monitor struct {
	scans       services.ScanClient
	courses     services.CourseClient
	logger      *log.Logger
	notifier    Notifier
	recorder    CompletionRecorder
	progress    chan<- ProgressUpdate
	base        context.Context
	newStrategy func() Strategy

	mu             sync.Mutex
	trackedCourses map[string]*models.Course
	trackedScans   map[string]*models.Scan
	trackedSlices  map[*[]*models.Scan]struct{}
	lastSeen       map[string]models.Scan // by course ID, from the latest reconciliation or event
	strategy       Strategy
	runCancel      context.CancelFunc
	idle           chan struct{} // closed while the strategy is stopped
	pending        int           // completion side effects still running
	settled        chan struct{} // closed while pending is zero

	// publishMu orders writes to status; it is taken before mu.
	publishMu sync.Mutex
	status    *store.Value[StatusMap]
	active    *store.Derived[StatusMap, int]

	refreshes singleflight.Group
}

// NewMonitor creates an idle monitor.
func NewMonitor(scans services.ScanClient, courses services.CourseClient, opts MonitorOpts) *Monitor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Notifier == nil {
		opts.Notifier = NewLogNotifier(opts.Logger)
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}

	idle := make(chan struct{})
	close(idle)
	settled := make(chan struct{})
	close(settled)

	status := store.NewValue(StatusMap{})
	m := &Monitor{
		scans:          scans,
		courses:        courses,
		logger:         shared.WithLogger(opts.Logger, "component", "monitor"),
		notifier:       opts.Notifier,
		recorder:       opts.Recorder,
		progress:       opts.Progress,
		base:           opts.Context,
		trackedCourses: make(map[string]*models.Course),
		trackedScans:   make(map[string]*models.Scan),
		trackedSlices:  make(map[*[]*models.Scan]struct{}),
		lastSeen:       make(map[string]models.Scan),
		idle:           idle,
		settled:        settled,
		status:         status,
		active:         store.Derive(status, func(s StatusMap) int { return len(s) }),
	}

	switch opts.Strategy {
	case shared.StrategyPoll:
		m.newStrategy = func() Strategy { return NewPollStrategy(m, scans, opts.PollInterval) }
	default:
		m.newStrategy = func() Strategy { return NewStreamStrategy(m, scans, opts.ReconnectDelay) }
	}
	return m
}

// TrackCourses registers courses to be refreshed in place when their scan finishes.
//
// Courses already tracked are ignored. Do not call this from a store subscriber bound to the same
// course records; the refresh writes to them and would re-trigger the subscriber.
func (m *Monitor) TrackCourses(courses ...*models.Course) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range courses {
		if c == nil || c.ID == "" {
			continue
		}
		if _, ok := m.trackedCourses[c.ID]; ok {
			continue
		}
		m.trackedCourses[c.ID] = c
	}
	m.syncLocked()
}

// UntrackCourse stops tracking a course.
func (m *Monitor) UntrackCourse(courseID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.trackedCourses, courseID)
	m.syncLocked()
}

// TrackScans registers scan records to be kept in sync in place. Scans are keyed by course ID.
func (m *Monitor) TrackScans(scans ...*models.Scan) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range scans {
		m.trackScanLocked(s)
	}
	m.syncLocked()
}

// UntrackScan stops tracking the scan of a course.
func (m *Monitor) UntrackScan(courseID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.trackedScans, courseID)
	m.syncLocked()
}

// TrackScansSlice tracks every scan in *scans and keeps the slice filtered to scans the server still reports.
//
// The slice is pruned through the pointer, so every holder of scans sees the same contents.
func (m *Monitor) TrackScansSlice(scans *[]*models.Scan) {
	if scans == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.trackedSlices[scans] = struct{}{}
	for _, s := range *scans {
		m.trackScanLocked(s)
	}
	m.syncLocked()
}

// UntrackScansSlice stops pruning scans and untracks each of its scans.
func (m *Monitor) UntrackScansSlice(scans *[]*models.Scan) {
	if scans == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.trackedSlices, scans)
	for _, s := range *scans {
		if s != nil {
			delete(m.trackedScans, s.CourseID)
		}
	}
	m.syncLocked()
}

// ClearAll stops the update mechanism and forgets every tracked record and published status.
//
// Must not be called from a status subscriber.
func (m *Monitor) ClearAll() {
	m.mu.Lock()
	m.stopLocked()
	clear(m.trackedCourses)
	clear(m.trackedScans)
	clear(m.trackedSlices)
	clear(m.lastSeen)
	m.mu.Unlock()

	m.publishMu.Lock()
	defer m.publishMu.Unlock()
	m.status.Set(StatusMap{})
}

// TrackingCount returns the number of tracked courses plus tracked scans.
func (m *Monitor) TrackingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.countLocked()
}

// Running reports whether the update mechanism is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.strategy != nil
}

// Status returns the published status of a course's scan, or [models.ScanStatusNone].
func (m *Monitor) Status(courseID string) models.ScanStatus {
	if s, ok := m.status.Get()[courseID]; ok {
		return s
	}
	return models.ScanStatusNone
}

// Statuses returns a copy of the published status map.
func (m *Monitor) Statuses() StatusMap {
	return maps.Clone(m.status.Get())
}

// StatusView exposes the published status map for subscription.
//
// Subscribers are called synchronously with each new map and must not modify it.
func (m *Monitor) StatusView() store.Readable[StatusMap] { return m.status }

// ActiveCount exposes the number of courses with an active scan.
func (m *Monitor) ActiveCount() store.Readable[int] { return m.active }

// Inspect runs fn while no tracked record is being written.
func (m *Monitor) Inspect(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn()
}

// WaitIdle blocks until nothing is tracked and pending course refreshes have finished, or ctx is done.
func (m *Monitor) WaitIdle(ctx context.Context) error {
	for {
		m.mu.Lock()
		if m.strategy == nil && m.pending == 0 {
			m.mu.Unlock()
			return nil
		}
		idle, settled := m.idle, m.settled
		m.mu.Unlock()

		// Either may reopen before the other closes, so recheck both under mu.
		for _, ch := range []chan struct{}{idle, settled} {
			select {
			case <-ch:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func (m *Monitor) countLocked() int {
	return len(m.trackedCourses) + len(m.trackedScans)
}

func (m *Monitor) trackScanLocked(s *models.Scan) {
	if s == nil || s.CourseID == "" {
		return
	}
	if _, ok := m.trackedScans[s.CourseID]; ok {
		return
	}
	m.trackedScans[s.CourseID] = s

	// A tracked active scan is known to exist, so its disappearance counts as completion
	// even if it finishes before the first reconciliation.
	if _, seen := m.lastSeen[s.CourseID]; !seen && s.Status.Active() {
		m.lastSeen[s.CourseID] = *s
	}
}

// syncLocked starts or stops the strategy so that it runs iff something is tracked.
func (m *Monitor) syncLocked() {
	n := m.countLocked()
	switch {
	case n > 0 && m.strategy == nil:
		m.startLocked()
	case n == 0 && m.strategy != nil:
		m.stopLocked()
	}
}

func (m *Monitor) startLocked() {
	ctx, cancel := context.WithCancel(m.base)
	m.runCancel = cancel
	m.idle = make(chan struct{})
	m.strategy = m.newStrategy()

	m.logger.Debug("starting", "strategy", m.strategy.Name(), "tracked", m.countLocked())
	m.strategy.Start(ctx)
	sendProgress(m.progress, startedUpdate(m.strategy.Name(), m.countLocked()))
}

func (m *Monitor) stopLocked() {
	if m.strategy == nil {
		return
	}

	m.logger.Debug("stopping", "strategy", m.strategy.Name())
	m.runCancel()
	m.strategy.Stop()
	m.strategy = nil
	m.runCancel = nil
	close(m.idle)
	sendProgress(m.progress, stoppedUpdate())
}

// reconcile applies a full list of active scans: detects completions by disappearance,
// syncs tracked records and publishes a fresh status map.
func (m *Monitor) reconcile(ctx context.Context, scans []models.Scan) {
	m.publishMu.Lock()
	defer m.publishMu.Unlock()

	m.mu.Lock()
	if ctx.Err() != nil {
		m.mu.Unlock()
		return
	}

	present := make(map[string]models.Scan, len(scans))
	fresh := make(StatusMap, len(scans))
	for _, s := range scans {
		present[s.CourseID] = s
		fresh[s.CourseID] = s.Status
	}

	var completed []models.Scan
	for courseID, seen := range m.lastSeen {
		if _, ok := present[courseID]; !ok {
			completed = append(completed, seen)
			delete(m.lastSeen, courseID)
		}
	}
	maps.Copy(m.lastSeen, present)

	for courseID, tracked := range m.trackedScans {
		if s, ok := present[courseID]; ok {
			tracked.Merge(s)
		} else {
			delete(m.trackedScans, courseID)
		}
	}
	for slice := range m.trackedSlices {
		pruneSlice(slice, present)
	}

	for _, s := range completed {
		m.completeLocked(s)
	}
	m.syncLocked()
	m.mu.Unlock()

	prev := m.status.Get()
	m.status.Set(fresh)

	for courseID, status := range fresh {
		if prev[courseID] != status {
			sendProgress(m.progress, statusUpdate(present[courseID]))
		}
	}
}

// applyUpdate handles a single changed scan.
func (m *Monitor) applyUpdate(ctx context.Context, scan models.Scan) {
	m.publishMu.Lock()
	defer m.publishMu.Unlock()

	m.mu.Lock()
	if ctx.Err() != nil {
		m.mu.Unlock()
		return
	}

	m.lastSeen[scan.CourseID] = scan
	if tracked, ok := m.trackedScans[scan.CourseID]; ok {
		tracked.Merge(scan)
	}
	for slice := range m.trackedSlices {
		for _, s := range *slice {
			if s != nil && s.CourseID == scan.CourseID {
				s.Merge(scan)
			}
		}
	}
	m.mu.Unlock()

	next := maps.Clone(m.status.Get())
	if next == nil {
		next = StatusMap{}
	}
	next[scan.CourseID] = scan.Status
	m.status.Set(next)
	sendProgress(m.progress, statusUpdate(scan))
}

// applyDeleted handles the removal of a scan. Deletions of scans the monitor never saw are ignored.
func (m *Monitor) applyDeleted(ctx context.Context, scanID string) {
	m.publishMu.Lock()
	defer m.publishMu.Unlock()

	m.mu.Lock()
	if ctx.Err() != nil {
		m.mu.Unlock()
		return
	}

	scan, ok := m.resolveLocked(scanID)
	if !ok {
		m.mu.Unlock()
		m.logger.Debug("ignoring deletion of unknown scan", "id", scanID)
		return
	}

	courseID := scan.CourseID
	delete(m.trackedScans, courseID)
	delete(m.lastSeen, courseID)
	for slice := range m.trackedSlices {
		*slice = slices.DeleteFunc(*slice, func(s *models.Scan) bool {
			return s != nil && (s.ID == scanID || s.CourseID == courseID)
		})
	}
	m.completeLocked(scan)
	m.syncLocked()
	m.mu.Unlock()

	next := maps.Clone(m.status.Get())
	delete(next, courseID)
	m.status.Set(next)
}

// resolveLocked finds the scan with the given ID among tracked scans, tracked slices and seen scans.
func (m *Monitor) resolveLocked(scanID string) (models.Scan, bool) {
	for _, s := range m.trackedScans {
		if s.ID == scanID {
			return *s, true
		}
	}
	for slice := range m.trackedSlices {
		for _, s := range *slice {
			if s != nil && s.ID == scanID {
				return *s, true
			}
		}
	}
	for _, s := range m.lastSeen {
		if s.ID == scanID {
			return s, true
		}
	}
	return models.Scan{}, false
}

// completeLocked schedules the side effects of a finished scan without waiting for them.
func (m *Monitor) completeLocked(scan models.Scan) {
	sendProgress(m.progress, completedUpdate(scan))

	course, tracked := m.trackedCourses[scan.CourseID]
	if m.pending == 0 {
		m.settled = make(chan struct{})
	}
	m.pending++

	go func() {
		defer m.settle()
		if tracked {
			m.refresh(scan, course)
			return
		}
		m.record(models.NewScanCompletion(scan.CourseID, scan.ID, scan.CourseTitle, models.OutcomeCompleted, "", time.Now()))
	}()
}

// settle marks one completion side effect as finished.
func (m *Monitor) settle() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pending--
	if m.pending == 0 {
		close(m.settled)
	}
}

// refresh refetches a completed course, merges it into dst and untracks it whatever the outcome.
func (m *Monitor) refresh(scan models.Scan, dst *models.Course) {
	v, err, _ := m.refreshes.Do(scan.CourseID, func() (any, error) {
		return m.courses.GetCourse(m.base, scan.CourseID)
	})

	m.mu.Lock()
	if m.trackedCourses[scan.CourseID] != dst {
		m.mu.Unlock()
		m.logger.Debug("discarding refresh of untracked course", "course", scan.CourseID)
		return
	}
	if err == nil {
		dst.Merge(v.(*models.Course))
	}
	delete(m.trackedCourses, scan.CourseID)
	title := dst.Title
	m.syncLocked()
	m.mu.Unlock()

	if title == "" {
		title = scan.CourseTitle
	}

	if err != nil {
		m.report(fmt.Errorf("failed to refresh course %s: %w", scan.CourseID, err))
		sendProgress(m.progress, refreshFailedUpdate(scan.CourseID, err))
		m.record(models.NewScanCompletion(scan.CourseID, scan.ID, title, models.OutcomeRefreshFailed, services.UserMessage(err), time.Now()))
		return
	}

	m.logger.Info("course refreshed", "course", scan.CourseID, "title", title)
	sendProgress(m.progress, refreshedUpdate(v.(*models.Course)))
	m.record(models.NewScanCompletion(scan.CourseID, scan.ID, title, models.OutcomeRefreshed, "", time.Now()))
}

func (m *Monitor) record(c *models.ScanCompletion) {
	if m.recorder == nil {
		return
	}
	if err := m.recorder.RecordCompletion(m.base, c); err != nil {
		m.logger.Warn("failed to record scan completion", "course", c.CourseID(), "err", err)
	}
}

// report logs err and shows its user-facing message.
func (m *Monitor) report(err error) {
	message := services.UserMessage(err)
	m.logger.Error("scan monitor failure", "err", err)
	m.notifier.Notify(message)
	sendProgress(m.progress, failureUpdate(message))
}

// handleEvent dispatches one push channel event.
func (m *Monitor) handleEvent(ctx context.Context, ev *models.ScanEvent) {
	switch ev.Type {
	case models.EventAllScans:
		scans, err := ev.Scans()
		if err != nil {
			m.reportEventError(ctx, err)
			return
		}
		m.reconcile(ctx, scans)
	case models.EventScanUpdate:
		scan, err := ev.Scan()
		if err != nil {
			m.reportEventError(ctx, err)
			return
		}
		m.applyUpdate(ctx, *scan)
	case models.EventScanDeleted:
		d, err := ev.Deleted()
		if err != nil {
			m.reportEventError(ctx, err)
			return
		}
		m.applyDeleted(ctx, d.ID)
	case models.EventError:
		if ctx.Err() != nil {
			return
		}
		message := ev.ErrorMessage()
		m.logger.Warn("server reported scan error", "message", message)
		m.notifier.Notify(message)
		sendProgress(m.progress, failureUpdate(message))
	}
}

func (m *Monitor) reportEventError(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	m.report(&services.ValidationError{Err: err})
}

// pruneSlice drops scans the server no longer reports and merges the rest, keeping the slice's backing array.
func pruneSlice(scans *[]*models.Scan, present map[string]models.Scan) {
	*scans = slices.DeleteFunc(*scans, func(s *models.Scan) bool {
		if s == nil {
			return true
		}
		p, ok := present[s.CourseID]
		if ok {
			s.Merge(p)
		}
		return !ok
	})
}
