package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/occ/internal/models"
)

var _ list.Item = courseItem{}

// courseItem is a snapshot of a course row. It copies the course so rendering never reads a
// record the monitor may be writing.
type courseItem struct {
	course  models.Course
	tracked bool
	status  models.ScanStatus
}

func (i courseItem) FilterValue() string { return i.course.Title }

func (i courseItem) Title() string {
	title := i.course.Title
	if title == "" {
		title = i.course.ID
	}
	if i.tracked {
		return "● " + title
	}
	return title
}

func (i courseItem) Description() string {
	desc := i.course.ID
	if i.status.Active() {
		desc = fmt.Sprintf("%s • %s", desc, styles.As(i.status.String(), statusColor(i.status)))
	}
	if i.course.Maintenance {
		desc += " • maintenance"
	}
	return desc
}
