package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/desertthunder/occ/internal/formatter"
	"github.com/desertthunder/occ/internal/models"
	"github.com/desertthunder/occ/internal/repositories"
	"github.com/desertthunder/occ/internal/services"
	"github.com/desertthunder/occ/internal/shared"
	"github.com/desertthunder/occ/internal/tasks"
	"github.com/urfave/cli/v3"
)

// scanGetter is implemented by clients that can look up a single scan.
type scanGetter interface {
	GetScan(ctx context.Context, courseID string) (*models.Scan, error)
}

// ScansList prints every active scan.
func (r *Runner) ScansList(ctx context.Context, cmd *cli.Command) error {
	scans, err := r.scans.ListActiveScans(ctx)
	if err != nil {
		return fmt.Errorf("failed to list scans: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(scans, true)
	}

	if len(scans) == 0 {
		r.writePlain("No active scans\n")
		return nil
	}
	r.writePlain("%s\n", formatter.ScansTable(scans, r.tableOpts()))
	return nil
}

// ScansGet prints the active scan of a course.
func (r *Runner) ScansGet(ctx context.Context, cmd *cli.Command) error {
	courseID := cmd.StringArg("course-id")
	if courseID == "" {
		return fmt.Errorf("%w: course id", shared.ErrMissingArgument)
	}

	getter, ok := r.scans.(scanGetter)
	if !ok {
		return shared.ErrNotImplemented
	}

	scan, err := getter.GetScan(ctx, courseID)
	if errors.Is(err, shared.ErrScanNotFound) {
		r.writePlain("No active scan for %s\n", courseID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get scan: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(scan, true)
	}
	r.writePlain("%s\n", formatter.ScansTable([]models.Scan{*scan}, r.tableOpts()))
	return nil
}

// ScansStart requests scans for every course id argument and optionally watches them.
func (r *Runner) ScansStart(ctx context.Context, cmd *cli.Command) error {
	ids := cmd.Args().Slice()
	if len(ids) == 0 {
		return fmt.Errorf("%w: at least one course id", shared.ErrMissingArgument)
	}

	progress := make(chan tasks.ProgressUpdate, len(ids))
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for u := range progress {
			r.writePlain("%s\n", u.Message)
		}
	}()

	result, err := tasks.StartScans(ctx, r.scans, ids, progress, tasks.BulkStartOpts{
		NumWorkers: int(cmd.Int("workers")),
		RateLimit:  cmd.Float("rate"),
	})
	close(progress)
	<-printed

	if err != nil {
		return fmt.Errorf("failed to start scans: %w", err)
	}

	r.writePlainln("Started %d of %d scan(s), %d failed", result.Started, result.Total, result.Failed)
	r.logger.Info("bulk start finished", "started", result.Started, "failed", result.Failed)

	if !cmd.Bool("watch") || len(result.CourseIDs) == 0 {
		return nil
	}
	return r.watchCourses(ctx, result.CourseIDs, watchOpts{strategy: cmd.String("strategy")})
}

// ScansDelete cancels a scan.
func (r *Runner) ScansDelete(ctx context.Context, cmd *cli.Command) error {
	scanID := cmd.StringArg("scan-id")
	if scanID == "" {
		return fmt.Errorf("%w: scan id", shared.ErrMissingArgument)
	}

	if err := r.scans.DeleteScan(ctx, scanID); err != nil {
		return fmt.Errorf("failed to delete scan: %w", err)
	}

	r.logger.Info("scan deleted", "id", scanID)
	r.writePlain("✓ Deleted scan %s\n", scanID)
	return nil
}

// ScansWatch tracks the given courses until their scans finish, refreshing each course when its scan completes.
func (r *Runner) ScansWatch(ctx context.Context, cmd *cli.Command) error {
	return r.watchCourses(ctx, cmd.Args().Slice(), watchOpts{
		strategy: cmd.String("strategy"),
		resume:   cmd.Bool("resume"),
		save:     cmd.Bool("save"),
	})
}

// ScansWatchlist prints or clears the saved watch list.
func (r *Runner) ScansWatchlist(ctx context.Context, cmd *cli.Command) error {
	db, err := r.database()
	if err != nil {
		return err
	}
	defer db.Close()

	watchlist := repositories.NewTrackedCourseRepository(db)
	if cmd.Bool("clear") {
		if err := watchlist.Clear(ctx); err != nil {
			return err
		}
		r.writePlain("✓ Watch list cleared\n")
		return nil
	}

	tracked, err := watchlist.List(ctx)
	if err != nil {
		return err
	}
	if len(tracked) == 0 {
		r.writePlain("Watch list is empty\n")
		return nil
	}

	r.writePlainHeader(fmt.Sprintf("Watch list (%d)", len(tracked)))
	now := time.Now()
	for _, c := range tracked {
		r.writePlain("%-24s %-40s added %s\n", c.CourseID, c.Title, formatter.RelativeTime(c.AddedAt, now))
	}
	return nil
}

type watchOpts struct {
	strategy string
	resume   bool
	save     bool
}

// watchCourses runs a monitor over ids until nothing is tracked or ctx is cancelled.
//
// Completions are recorded to the history database when it can be opened.
func (r *Runner) watchCourses(ctx context.Context, ids []string, opts watchOpts) error {
	if opts.strategy != "" && opts.strategy != shared.StrategyStream && opts.strategy != shared.StrategyPoll {
		return fmt.Errorf("%w: strategy must be %q or %q", shared.ErrInvalidArgument, shared.StrategyStream, shared.StrategyPoll)
	}

	var (
		db        *sql.DB
		history   *repositories.HistoryRepository
		watchlist *repositories.TrackedCourseRepository
	)
	if conn, err := r.database(); err != nil {
		if opts.resume || opts.save {
			return err
		}
		r.logger.Warn("history disabled", "error", err)
	} else {
		db = conn
		defer db.Close()
		history = repositories.NewHistoryRepository(db)
		watchlist = repositories.NewTrackedCourseRepository(db)
	}

	if opts.resume {
		saved, err := watchlist.List(ctx)
		if err != nil {
			return err
		}
		for _, c := range saved {
			ids = append(ids, c.CourseID)
		}
	}

	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return fmt.Errorf("%w: at least one course id", shared.ErrMissingArgument)
	}

	records := make([]*models.Course, 0, len(ids))
	for _, id := range ids {
		course, err := r.courses.GetCourse(ctx, id)
		if err != nil {
			r.logger.Warn("skipping course", "id", id, "error", err)
			r.writePlain("✗ %s: %s\n", id, services.UserMessage(err))
			continue
		}
		if opts.save {
			if err := watchlist.Add(ctx, course.ID, course.Title); err != nil {
				r.logger.Warn("failed to save course to watch list", "id", id, "error", err)
			}
		}
		records = append(records, course)
	}
	if len(records) == 0 {
		return fmt.Errorf("%w: none of the requested courses could be loaded", shared.ErrCourseNotFound)
	}

	progress := make(chan tasks.ProgressUpdate, 64)
	monitorOpts := tasks.MonitorOpts{Progress: progress}
	if history != nil {
		monitorOpts.Recorder = history
	}
	monitor := r.newMonitor(ctx, opts.strategy, monitorOpts)
	defer monitor.ClearAll()

	done := make(chan error, 1)
	monitor.TrackCourses(records...)
	go func() { done <- monitor.WaitIdle(ctx) }()

	handle := func(u tasks.ProgressUpdate) {
		r.writePlain("%s\n", u.Message)
		if !opts.save || watchlist == nil {
			return
		}
		switch u.Phase {
		case tasks.CourseRefreshed, tasks.RefreshFailed:
			if err := watchlist.Remove(context.WithoutCancel(ctx), u.CourseID); err != nil && !errors.Is(err, shared.ErrNotTracked) {
				r.logger.Warn("failed to remove course from watch list", "id", u.CourseID, "error", err)
			}
		}
	}

	for {
		select {
		case u := <-progress:
			handle(u)
		case err := <-done:
			for drained := false; !drained; {
				select {
				case u := <-progress:
					handle(u)
				default:
					drained = true
				}
			}

			if errors.Is(err, context.Canceled) {
				r.writePlainln("Stopped watching %d course(s)", monitor.TrackingCount())
				return nil
			}
			if err != nil {
				return err
			}

			r.writePlainln("All scans finished")
			var refreshed []models.Course
			monitor.Inspect(func() {
				for _, c := range records {
					refreshed = append(refreshed, *c)
				}
			})
			r.writePlain("%s\n", formatter.CoursesTable(refreshed, r.tableOpts()))
			return nil
		}
	}
}

func uniqueIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || slices.Contains(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}
