package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/occ/internal/repositories"
	"github.com/desertthunder/occ/internal/shared"
	"github.com/desertthunder/occ/internal/tasks"
	"github.com/desertthunder/occ/internal/ui"
	"github.com/urfave/cli/v3"
)

const defaultTUILog = "./tmp/occ-tui.log"

// TUI launches the interactive scan dashboard.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	if r.scans == nil || r.courses == nil {
		return fmt.Errorf("%w: library client not initialized", shared.ErrServiceUnavailable)
	}

	// Redirect logs to file to avoid interfering with TUI rendering
	logPath := r.config.Log.File
	if logPath == "" {
		logPath = defaultTUILog
	}
	fileLogger, closer, err := shared.NewFileLogger(logPath)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	defer closer.Close()
	shared.SetLogLevel(fileLogger, shared.ParseLogLevel(r.config.Log.Level))
	r.SetLogger(fileLogger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	progress := make(chan tasks.ProgressUpdate, 64)
	opts := tasks.MonitorOpts{Progress: progress}
	if db, err := r.database(); err != nil {
		r.logger.Warn("history disabled", "error", err)
	} else {
		defer db.Close()
		opts.Recorder = repositories.NewHistoryRepository(db)
	}
	monitor := r.newMonitor(ctx, cmd.String("strategy"), opts)

	model := ui.NewModel(ctx, ui.Deps{
		Courses:  r.courses,
		Scans:    r.scans,
		Monitor:  monitor,
		Progress: progress,
		PageSize: int(cmd.Int("page-size")),
	})
	defer model.Close()

	if _, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}
