package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/occ/internal/formatter"
	"github.com/desertthunder/occ/internal/models"
	"github.com/desertthunder/occ/internal/repositories"
	"github.com/desertthunder/occ/internal/shared"
	"github.com/urfave/cli/v3"
)

type completionJSON struct {
	ID       string                   `json:"id"`
	Sequence int                      `json:"sequence"`
	CourseID string                   `json:"courseId"`
	ScanID   string                   `json:"scanId"`
	Title    string                   `json:"title"`
	Outcome  models.CompletionOutcome `json:"outcome"`
	Detail   string                   `json:"detail,omitempty"`
	Observed time.Time                `json:"observedAt"`
}

// History prints recorded scan completions, newest first.
func (r *Runner) History(ctx context.Context, cmd *cli.Command) error {
	outcome := models.CompletionOutcome(cmd.String("outcome"))
	switch outcome {
	case "", models.OutcomeRefreshed, models.OutcomeRefreshFailed, models.OutcomeCompleted:
	default:
		return fmt.Errorf("%w: outcome must be %q, %q or %q", shared.ErrInvalidArgument,
			models.OutcomeRefreshed, models.OutcomeRefreshFailed, models.OutcomeCompleted)
	}

	db, err := r.database()
	if err != nil {
		return err
	}
	defer db.Close()

	criteria := map[string]any{
		"course_id": cmd.String("course"),
		"outcome":   string(outcome),
		"limit":     int(cmd.Int("limit")),
	}
	if since := cmd.Duration("since"); since > 0 {
		criteria["since"] = time.Now().Add(-since)
	}

	completions, err := repositories.NewHistoryRepository(db).List(criteria)
	if err != nil {
		return err
	}

	if path := cmd.String("csv"); path != "" {
		if err := formatter.WriteHistoryCSV(completions, path); err != nil {
			return err
		}
		r.logger.Info("history exported", "path", path, "count", len(completions))
		r.writePlain("✓ Wrote %d completion(s) to %s\n", len(completions), path)
		return nil
	}

	if cmd.Bool("json") {
		out := make([]completionJSON, 0, len(completions))
		for _, c := range completions {
			out = append(out, completionJSON{
				ID:       c.ID(),
				Sequence: c.Sequence(),
				CourseID: c.CourseID(),
				ScanID:   c.ScanID(),
				Title:    c.Title(),
				Outcome:  c.Outcome(),
				Detail:   c.Detail(),
				Observed: c.CreatedAt().UTC(),
			})
		}
		return r.writeJSON(out, true)
	}

	if len(completions) == 0 {
		r.writePlain("No scan completions recorded\n")
		return nil
	}
	r.writePlain("%s\n", formatter.HistoryTable(completions, r.tableOpts()))
	return nil
}

// HistoryPrune deletes completions observed before --older-than.
func (r *Runner) HistoryPrune(ctx context.Context, cmd *cli.Command) error {
	age := cmd.Duration("older-than")
	if age <= 0 {
		return fmt.Errorf("%w: older-than must be positive", shared.ErrInvalidArgument)
	}

	db, err := r.database()
	if err != nil {
		return err
	}
	defer db.Close()

	removed, err := repositories.NewHistoryRepository(db).Prune(ctx, time.Now().Add(-age))
	if err != nil {
		return err
	}

	r.logger.Info("history pruned", "removed", removed, "older_than", age)
	r.writePlain("✓ Removed %d completion(s)\n", removed)
	return nil
}
