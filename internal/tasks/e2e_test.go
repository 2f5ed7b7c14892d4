package tasks

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/desertthunder/occ/internal/models"
	"github.com/desertthunder/occ/internal/services"
	"github.com/desertthunder/occ/internal/shared"
	tu "github.com/desertthunder/occ/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLibraryMonitor(t *testing.T, strategy string, opts MonitorOpts) (*tu.FakeLibrary, *services.ScanService, *Monitor) {
	t.Helper()

	lib := tu.NewFakeLibrary(t)
	lib.AddCourse(models.Course{ID: "c1", Title: "Intro", Path: "/courses/intro"})

	api := services.NewAPIService(lib.URL(), nil)
	scans := services.NewScanService(api)

	opts.Strategy = strategy
	opts.PollInterval = 10 * time.Millisecond
	opts.ReconnectDelay = 10 * time.Millisecond
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}

	m := NewMonitor(scans, services.NewCourseService(api), opts)
	t.Cleanup(m.ClearAll)
	return lib, scans, m
}

func TestMonitorAgainstLibrary(t *testing.T) {
	for _, strategy := range []string{shared.StrategyStream, shared.StrategyPoll} {
		t.Run("Scan Lifecycle With "+strategy, func(t *testing.T) {
			rec := &fakeRecorder{}
			lib, scans, m := newLibraryMonitor(t, strategy, MonitorOpts{Recorder: rec})

			c1 := &models.Course{ID: "c1", Title: "Intro"}
			m.TrackCourses(c1)
			require.True(t, m.Running())

			require.NoError(t, scans.StartScan(context.Background(), "c1"))
			require.Eventually(t, func() bool { return m.Status("c1") == models.ScanStatusWaiting }, waitFor, tick)

			lib.SetScanStatus("c1", models.ScanStatusProcessing)
			require.Eventually(t, func() bool { return m.Status("c1") == models.ScanStatusProcessing }, waitFor, tick)
			assert.Equal(t, 1, m.ActiveCount().Get())

			lib.UpdateCourse("c1", func(c *models.Course) { c.Title = "Intro (rescanned)" })
			lib.FinishScan("c1")

			ctx, cancel := context.WithTimeout(context.Background(), waitFor)
			defer cancel()
			require.NoError(t, m.WaitIdle(ctx))

			m.Inspect(func() { assert.Equal(t, "Intro (rescanned)", c1.Title) })
			assert.Equal(t, 0, m.TrackingCount())
			assert.False(t, m.Running())
			assert.Equal(t, models.ScanStatusNone, m.Status("c1"))
			assert.Equal(t, 0, m.ActiveCount().Get())

			completions := rec.all()
			require.Len(t, completions, 1)
			assert.Equal(t, models.OutcomeRefreshed, completions[0].Outcome())
			assert.Equal(t, "c1", completions[0].CourseID())
		})
	}

	t.Run("Stream Reconnects And Resynchronizes", func(t *testing.T) {
		lib, _, m := newLibraryMonitor(t, shared.StrategyStream, MonitorOpts{})

		m.TrackCourses(&models.Course{ID: "c1"})
		require.Eventually(t, func() bool { return lib.StreamCount() == 1 }, waitFor, tick)

		lib.DropStreams()
		lib.SetScanStatus("c1", models.ScanStatusProcessing)

		require.Eventually(t, func() bool {
			return lib.Requests(http.MethodGet, "/api/scans/stream") == 2 && lib.StreamCount() == 1
		}, waitFor, tick)
		require.Eventually(t, func() bool { return m.Status("c1") == models.ScanStatusProcessing }, waitFor, tick)

		// The deletion is lost; the snapshot sent on reconnect reveals it.
		lib.RemoveScanSilently("c1")
		lib.DropStreams()

		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		require.NoError(t, m.WaitIdle(ctx))

		assert.Equal(t, 0, m.TrackingCount())
		assert.Equal(t, 1, lib.Requests(http.MethodGet, "/api/courses/c1"))
		assert.Eventually(t, func() bool { return lib.StreamCount() == 0 }, waitFor, tick)
	})

	t.Run("Stream Resynchronizes Without Snapshot", func(t *testing.T) {
		lib, scans, m := newLibraryMonitor(t, shared.StrategyStream, MonitorOpts{})
		lib.DisableSnapshots()

		c1 := &models.Course{ID: "c1", Title: "Intro"}
		m.TrackCourses(c1)
		require.Eventually(t, func() bool { return lib.StreamCount() == 1 }, waitFor, tick)

		require.NoError(t, scans.StartScan(context.Background(), "c1"))
		require.Eventually(t, func() bool { return m.Status("c1") == models.ScanStatusWaiting }, waitFor, tick)

		lib.UpdateCourse("c1", func(c *models.Course) { c.Title = "Intro (rescanned)" })
		lib.RemoveScanSilently("c1")
		lib.DropStreams()

		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		require.NoError(t, m.WaitIdle(ctx))

		assert.Equal(t, 1, lib.Requests(http.MethodGet, "/api/scans"))
		m.Inspect(func() { assert.Equal(t, "Intro (rescanned)", c1.Title) })
		assert.Equal(t, models.ScanStatusNone, m.Status("c1"))
	})

	t.Run("Server Error Events Are Surfaced", func(t *testing.T) {
		n := &notes{}
		lib, _, m := newLibraryMonitor(t, shared.StrategyStream, MonitorOpts{Notifier: n})

		m.TrackCourses(&models.Course{ID: "c1"})
		require.Eventually(t, func() bool { return lib.StreamCount() == 1 }, waitFor, tick)

		lib.Broadcast(`{"type":"error","message":"Scanner offline"}`)
		assert.Eventually(t, func() bool {
			got := n.all()
			return len(got) == 1 && got[0] == "Scanner offline"
		}, waitFor, tick)
		assert.True(t, m.Running())
	})

	t.Run("Poll Failures Keep Polling", func(t *testing.T) {
		n := &notes{}
		lib, _, m := newLibraryMonitor(t, shared.StrategyPoll, MonitorOpts{Notifier: n})
		lib.FailNext(http.MethodGet, "/api/scans", http.StatusServiceUnavailable, "Maintenance")

		m.TrackCourses(&models.Course{ID: "c1"})
		require.Eventually(t, func() bool { return lib.Requests(http.MethodGet, "/api/scans") >= 3 }, waitFor, tick)

		assert.Equal(t, []string{"Maintenance"}, n.all())
		assert.True(t, m.Running())
	})

	t.Run("Bulk Start Feeds The Monitor", func(t *testing.T) {
		lib, scans, m := newLibraryMonitor(t, shared.StrategyStream, MonitorOpts{})
		lib.AddCourse(models.Course{ID: "c2", Title: "Advanced"})

		res, err := StartScans(context.Background(), scans, []string{"c1", "c2", "missing"}, nil, BulkStartOpts{RateLimit: 100})
		require.NoError(t, err)
		assert.Equal(t, 2, res.Started)
		assert.Equal(t, 1, res.Failed)

		for _, id := range res.CourseIDs {
			m.TrackCourses(&models.Course{ID: id})
		}
		require.Eventually(t, func() bool { return m.ActiveCount().Get() == 2 }, waitFor, tick)
		assert.Len(t, lib.Scans(), 2)
	})
}
