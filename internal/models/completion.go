package models

import (
	"errors"
	"time"
)

// CompletionOutcome records how the client learned that a scan finished.
type CompletionOutcome string

const (
	// OutcomeRefreshed means the course was refetched after its scan disappeared.
	OutcomeRefreshed CompletionOutcome = "refreshed"
	// OutcomeRefreshFailed means the course refetch failed; the course was untracked anyway.
	OutcomeRefreshFailed CompletionOutcome = "refresh_failed"
	// OutcomeCompleted means the scan finished while its course was not being tracked, so nothing was refreshed.
	OutcomeCompleted CompletionOutcome = "completed"
)

var _ Model = (*ScanCompletion)(nil)

// ScanCompletion is a scan completion observed by the monitor and cached locally.
type ScanCompletion struct {
	id         string
	sequence   int
	courseID   string
	scanID     string
	title      string
	outcome    CompletionOutcome
	detail     string
	observedAt time.Time
}

// NewScanCompletion builds an unsaved completion record. The repository assigns the ID and sequence.
func NewScanCompletion(courseID, scanID, title string, outcome CompletionOutcome, detail string, observedAt time.Time) *ScanCompletion {
	return &ScanCompletion{
		courseID:   courseID,
		scanID:     scanID,
		title:      title,
		outcome:    outcome,
		detail:     detail,
		observedAt: observedAt.UTC(),
	}
}

// RestoreScanCompletion rebuilds a persisted record read from storage.
func RestoreScanCompletion(id string, sequence int, courseID, scanID, title string, outcome CompletionOutcome, detail string, observedAt time.Time) *ScanCompletion {
	c := NewScanCompletion(courseID, scanID, title, outcome, detail, observedAt)
	c.id = id
	c.sequence = sequence
	return c
}

func (c *ScanCompletion) ID() string                 { return c.id }
func (c *ScanCompletion) SetID(id string)            { c.id = id }
func (c *ScanCompletion) Sequence() int              { return c.sequence }
func (c *ScanCompletion) SetSequence(n int)          { c.sequence = n }
func (c *ScanCompletion) CourseID() string           { return c.courseID }
func (c *ScanCompletion) ScanID() string             { return c.scanID }
func (c *ScanCompletion) Title() string              { return c.title }
func (c *ScanCompletion) Outcome() CompletionOutcome { return c.outcome }
func (c *ScanCompletion) Detail() string             { return c.detail }
func (c *ScanCompletion) CreatedAt() time.Time       { return c.observedAt }

// Validate checks the required fields of a completion.
func (c *ScanCompletion) Validate() error {
	if c.id == "" {
		return errors.New("completion id is required")
	}
	if c.courseID == "" {
		return errors.New("completion course id is required")
	}
	switch c.outcome {
	case OutcomeRefreshed, OutcomeRefreshFailed, OutcomeCompleted:
	default:
		return errors.New("completion outcome is invalid")
	}
	return nil
}
