package models

// CourseProgress is the requesting user's progress through a course.
type CourseProgress struct {
	Started           bool      `json:"started"`
	StartedAt         Timestamp `json:"startedAt"`
	Percent           int       `json:"percent" validate:"gte=0,lte=100"`
	CompletedAt       Timestamp `json:"completedAt"`
	ProgressUpdatedAt Timestamp `json:"progressUpdatedAt"`
}

// Course is a course record from the library.
//
// The scan monitor only relies on ID. Callers hand the monitor pointers they own and
// the monitor overwrites the pointed-to value when a refreshed copy arrives.
type Course struct {
	ID          string          `json:"id" validate:"required"`
	Title       string          `json:"title"`
	Path        string          `json:"path,omitempty"`
	HasCard     bool            `json:"hasCard"`
	Available   bool            `json:"available"`
	Duration    int             `json:"duration" validate:"gte=0"`
	InitialScan bool            `json:"initialScan,omitempty"`
	Maintenance bool            `json:"maintenance"`
	Progress    *CourseProgress `json:"progress,omitempty"`
	CreatedAt   Timestamp       `json:"createdAt"`
	UpdatedAt   Timestamp       `json:"updatedAt"`
}

// Merge assigns every field of src onto c in place.
func (c *Course) Merge(src *Course) {
	if src == nil {
		return
	}
	*c = *src
}

// CourseList is a paginated listing of courses.
type CourseList struct {
	Pagination
	Items []Course `json:"items" validate:"dive"`
}
