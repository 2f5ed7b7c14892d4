package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/occ/internal/shared"
)

// TrackedCourse is a course on the persisted watch list.
type TrackedCourse struct {
	CourseID string
	Title    string
	AddedAt  time.Time
}

// TrackedCourseRepository persists the courses `occ scans watch` resumes after a restart.
type TrackedCourseRepository struct {
	db *sql.DB
}

// NewTrackedCourseRepository creates a new [TrackedCourseRepository] with the given database connection
func NewTrackedCourseRepository(db *sql.DB) *TrackedCourseRepository {
	return &TrackedCourseRepository{db: db}
}

// Add stores a course. Adding a course twice updates its title and keeps the original timestamp.
func (r *TrackedCourseRepository) Add(ctx context.Context, courseID, title string) error {
	if courseID == "" {
		return fmt.Errorf("%w: course id", shared.ErrMissingArgument)
	}

	query := `
		INSERT INTO tracked_courses (course_id, title, added_at) VALUES (?, ?, ?)
		ON CONFLICT(course_id) DO UPDATE SET title = excluded.title
	`
	if _, err := r.db.ExecContext(ctx, query, courseID, title, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to add tracked course: %w", err)
	}
	return nil
}

// Remove deletes a course from the watch list.
//
// Returns [shared.ErrNotTracked] when the course was not on it.
func (r *TrackedCourseRepository) Remove(ctx context.Context, courseID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM tracked_courses WHERE course_id = ?`, courseID)
	if err != nil {
		return fmt.Errorf("failed to remove tracked course: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrNotTracked, courseID)
	}
	return nil
}

// List returns the watch list in the order courses were added.
func (r *TrackedCourseRepository) List(ctx context.Context) ([]TrackedCourse, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT course_id, title, added_at FROM tracked_courses ORDER BY added_at ASC, course_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracked courses: %w", err)
	}
	defer rows.Close()

	var courses []TrackedCourse
	for rows.Next() {
		var c TrackedCourse
		if err := rows.Scan(&c.CourseID, &c.Title, &c.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tracked course: %w", err)
		}
		courses = append(courses, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return courses, nil
}

// Clear empties the watch list.
func (r *TrackedCourseRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM tracked_courses`); err != nil {
		return fmt.Errorf("failed to clear tracked courses: %w", err)
	}
	return nil
}
