package tasks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/occ/internal/models"
	"github.com/desertthunder/occ/internal/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPollMonitor(scans *fakeScans, courses *fakeCourses, opts MonitorOpts) *Monitor {
	opts.Strategy = shared.StrategyPoll
	if opts.PollInterval == 0 {
		opts.PollInterval = 10 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	return NewMonitor(scans, courses, opts)
}

func TestPollStrategy(t *testing.T) {
	t.Run("Completion Detection", func(t *testing.T) {
		scans := &fakeScans{responses: [][]models.Scan{
			{mkScan("s1", "c1", models.ScanStatusProcessing)},
			{},
		}}
		courses := newFakeCourses(models.Course{ID: "c1", Title: "Fresh"})
		m := newPollMonitor(scans, courses, MonitorOpts{})

		c1 := &models.Course{ID: "c1"}
		m.TrackCourses(c1)

		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		require.NoError(t, m.WaitIdle(ctx))

		assert.Equal(t, 1, courses.callCount("c1"))
		assert.Empty(t, m.Statuses())
		assert.False(t, m.Running())
		m.Inspect(func() { assert.Equal(t, "Fresh", c1.Title) })
	})

	t.Run("Stops Polling When Idle", func(t *testing.T) {
		scans := &fakeScans{}
		m := newPollMonitor(scans, newFakeCourses(), MonitorOpts{})

		m.TrackCourses(&models.Course{ID: "c1"})
		require.Eventually(t, func() bool { return scans.calls() >= 2 }, waitFor, tick)

		m.UntrackCourse("c1")
		settled := scans.calls()
		time.Sleep(50 * time.Millisecond)
		assert.LessOrEqual(t, scans.calls(), settled+1, "at most the poll already in flight finishes")
	})

	t.Run("Keeps Polling After Errors", func(t *testing.T) {
		scans := &fakeScans{listErr: errors.New("connection refused")}
		n := &notes{}
		m := newPollMonitor(scans, newFakeCourses(), MonitorOpts{Notifier: n})
		defer m.ClearAll()

		m.TrackCourses(&models.Course{ID: "c1"})

		assert.Eventually(t, func() bool { return scans.calls() >= 3 }, waitFor, tick)
		assert.True(t, m.Running())
		assert.NotEmpty(t, n.all())
		assert.Equal(t, "connection refused", n.all()[0])
	})

	t.Run("No Overlap", func(t *testing.T) {
		gate := make(chan struct{})
		scans := &fakeScans{gate: gate}
		m := newPollMonitor(scans, newFakeCourses(), MonitorOpts{PollInterval: time.Millisecond})
		defer m.ClearAll()

		m.TrackCourses(&models.Course{ID: "c1"})
		require.Eventually(t, func() bool { return scans.calls() == 1 }, waitFor, tick)

		time.Sleep(30 * time.Millisecond)
		assert.Equal(t, 1, scans.calls(), "no poll starts while one is in flight")

		for range 3 {
			gate <- struct{}{}
		}
		require.Eventually(t, func() bool { return scans.calls() >= 4 }, waitFor, tick)

		scans.mu.Lock()
		defer scans.mu.Unlock()
		assert.Equal(t, 1, scans.maxInFlight)
	})

	t.Run("Tick Guard", func(t *testing.T) {
		gate := make(chan struct{})
		scans := &fakeScans{gate: gate}
		m := newPollMonitor(scans, newFakeCourses(), MonitorOpts{})
		p := NewPollStrategy(m, scans, time.Hour)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, p.tick(context.Background()))
		}()
		require.Eventually(t, func() bool { return scans.calls() == 1 }, waitFor, tick)

		assert.False(t, p.tick(context.Background()), "overlapping tick is rejected")
		close(gate)
		wg.Wait()
		assert.True(t, p.tick(context.Background()))
	})

	t.Run("Delay Is Measured From Completion", func(t *testing.T) {
		gate := make(chan struct{})
		scans := &fakeScans{gate: gate}
		m := newPollMonitor(scans, newFakeCourses(), MonitorOpts{PollInterval: 40 * time.Millisecond})
		defer m.ClearAll()

		m.TrackCourses(&models.Course{ID: "c1"})
		require.Eventually(t, func() bool { return scans.calls() == 1 }, waitFor, tick)

		time.Sleep(60 * time.Millisecond)
		released := time.Now()
		gate <- struct{}{}

		require.Eventually(t, func() bool { return scans.calls() == 2 }, waitFor, time.Millisecond)
		assert.GreaterOrEqual(t, time.Since(released), 35*time.Millisecond)
	})
}
