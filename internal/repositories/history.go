package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/occ/internal/models"
	"github.com/desertthunder/occ/internal/shared"
)

var _ models.Repository[*models.ScanCompletion] = (*HistoryRepository)(nil)

// ErrCompletionNotFound is returned when a completion id does not exist.
var ErrCompletionNotFound = errors.New("completion not found")

const completionColumns = `id, sequence, course_id, scan_id, title, outcome, detail, observed_at`

// HistoryRepository implements [models.Repository] for [models.ScanCompletion] persistence.
//
// Rows are append-only; the monitor records one per detected completion.
type HistoryRepository struct {
	db *sql.DB
}

// NewHistoryRepository creates a new [HistoryRepository] with the given database connection
func NewHistoryRepository(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// RecordCompletion stores c, assigning its ID and sequence.
func (r *HistoryRepository) RecordCompletion(ctx context.Context, c *models.ScanCompletion) error {
	sequence, err := NextSequence(ctx, r.db, "scan_completions")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	c.SetID(shared.GenerateID())
	c.SetSequence(sequence)

	if err := c.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	query := `
		INSERT INTO scan_completions (` + completionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		c.ID(),
		sequence,
		c.CourseID(),
		c.ScanID(),
		c.Title(),
		string(c.Outcome()),
		c.Detail(),
		c.CreatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert completion: %w", err)
	}
	return nil
}

// Create inserts a completion with a generated ID and sequence
func (r *HistoryRepository) Create(c *models.ScanCompletion) error {
	return r.RecordCompletion(context.Background(), c)
}

// Get retrieves a completion by ID
func (r *HistoryRepository) Get(id string) (*models.ScanCompletion, error) {
	query := `SELECT ` + completionColumns + ` FROM scan_completions WHERE id = ?`

	c, err := scanCompletion(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrCompletionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query completion: %w", err)
	}
	return c, nil
}

// Delete removes a completion by ID
func (r *HistoryRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM scan_completions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete completion: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", ErrCompletionNotFound, id)
	}
	return nil
}

// List retrieves completions matching the given criteria, newest first.
//
// Supported criteria: "course_id" (string), "outcome" ([models.CompletionOutcome] or string),
// "since" ([time.Time]) and "limit" (int).
func (r *HistoryRepository) List(criteria map[string]any) ([]*models.ScanCompletion, error) {
	query := `SELECT ` + completionColumns + ` FROM scan_completions WHERE 1 = 1`
	args := []any{}

	if courseID, ok := criteria["course_id"].(string); ok && courseID != "" {
		query += " AND course_id = ?"
		args = append(args, courseID)
	}

	switch outcome := criteria["outcome"].(type) {
	case models.CompletionOutcome:
		query += " AND outcome = ?"
		args = append(args, string(outcome))
	case string:
		if outcome != "" {
			query += " AND outcome = ?"
			args = append(args, outcome)
		}
	}

	if since, ok := criteria["since"].(time.Time); ok && !since.IsZero() {
		query += " AND observed_at >= ?"
		args = append(args, since.UTC())
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query completions: %w", err)
	}
	defer rows.Close()

	var completions []*models.ScanCompletion
	for rows.Next() {
		c, err := scanCompletion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan completion: %w", err)
		}
		completions = append(completions, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return completions, nil
}

// Recent returns up to limit completions, newest first.
func (r *HistoryRepository) Recent(limit int) ([]*models.ScanCompletion, error) {
	return r.List(map[string]any{"limit": limit})
}

// Prune deletes completions observed before cutoff and returns how many were removed.
func (r *HistoryRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM scan_completions WHERE observed_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune completions: %w", err)
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCompletion(row rowScanner) (*models.ScanCompletion, error) {
	var (
		id         string
		sequence   int
		courseID   string
		scanID     string
		title      string
		outcome    string
		detail     string
		observedAt time.Time
	)

	if err := row.Scan(&id, &sequence, &courseID, &scanID, &title, &outcome, &detail, &observedAt); err != nil {
		return nil, err
	}

	return models.RestoreScanCompletion(id, sequence, courseID, scanID, title, models.CompletionOutcome(outcome), detail, observedAt), nil
}
