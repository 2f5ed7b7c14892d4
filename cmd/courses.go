package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/occ/internal/formatter"
	"github.com/desertthunder/occ/internal/models"
	"github.com/desertthunder/occ/internal/shared"
	"github.com/urfave/cli/v3"
)

// CoursesList prints one page of the course library.
func (r *Runner) CoursesList(ctx context.Context, cmd *cli.Command) error {
	page, perPage := int(cmd.Int("page")), int(cmd.Int("per-page"))
	if page < 1 || perPage < 1 {
		return fmt.Errorf("%w: page and per-page must be positive", shared.ErrInvalidArgument)
	}

	list, err := r.courses.ListCourses(ctx, page, perPage)
	if err != nil {
		return fmt.Errorf("failed to list courses: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(list, true)
	}

	r.writePlain("%s\n", formatter.CoursesTable(list.Items, r.tableOpts()))
	r.writePlain("Page %d of %d (%d courses)\n", list.Page, max(list.TotalPages, 1), list.TotalItems)
	return nil
}

// CoursesGet prints a single course.
func (r *Runner) CoursesGet(ctx context.Context, cmd *cli.Command) error {
	id := cmd.StringArg("course-id")
	if id == "" {
		return fmt.Errorf("%w: course id", shared.ErrMissingArgument)
	}

	course, err := r.courses.GetCourse(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get course: %w", err)
	}

	if cmd.Bool("json") {
		return r.writeJSON(course, true)
	}

	r.writePlain("%s\n", formatter.CoursesTable([]models.Course{*course}, r.tableOpts()))
	if course.Path != "" {
		r.writePlain("Path: %s\n", course.Path)
	}
	return nil
}
