package tasks

import (
	"fmt"

	"github.com/desertthunder/occ/internal/models"
)

// ProgressUpdate represents a change observed by the monitor or a bulk operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase    Phase             // What happened
	CourseID string            // Course the update concerns, if any
	Status   models.ScanStatus // Latest scan status for StatusChanged
	Step     int               // Current step for bulk operations
	Total    int               // Total steps for bulk operations
	Message  string            // Human-readable message for display
	Data     any               // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	MonitorStarted Phase = iota
	MonitorStopped
	StatusChanged
	ScanCompleted
	CourseRefreshed
	RefreshFailed
	Reconnecting
	Failure
	StartScan
)

func (p Phase) String() string {
	switch p {
	case MonitorStarted:
		return "monitor_started"
	case MonitorStopped:
		return "monitor_stopped"
	case StatusChanged:
		return "status_changed"
	case ScanCompleted:
		return "scan_completed"
	case CourseRefreshed:
		return "course_refreshed"
	case RefreshFailed:
		return "refresh_failed"
	case Reconnecting:
		return "reconnecting"
	case Failure:
		return "failure"
	case StartScan:
		return "start_scan"
	default:
		return ""
	}
}

// sendProgress sends an update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func startedUpdate(strategy string, tracked int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   MonitorStarted,
		Message: fmt.Sprintf("Watching %d item(s) via %s", tracked, strategy),
	}
}

func stoppedUpdate() ProgressUpdate {
	return ProgressUpdate{Phase: MonitorStopped, Message: "Nothing left to watch"}
}

func statusUpdate(scan models.Scan) ProgressUpdate {
	return ProgressUpdate{
		Phase:    StatusChanged,
		CourseID: scan.CourseID,
		Status:   scan.Status,
		Message:  fmt.Sprintf("%s: %s", scanLabel(scan), scan.Status),
		Data:     scan,
	}
}

func completedUpdate(scan models.Scan) ProgressUpdate {
	return ProgressUpdate{
		Phase:    ScanCompleted,
		CourseID: scan.CourseID,
		Status:   models.ScanStatusNone,
		Message:  fmt.Sprintf("Scan finished: %s", scanLabel(scan)),
		Data:     scan,
	}
}

func refreshedUpdate(course *models.Course) ProgressUpdate {
	return ProgressUpdate{
		Phase:    CourseRefreshed,
		CourseID: course.ID,
		Message:  fmt.Sprintf("✓ %s refreshed", courseLabel(course)),
		Data:     course,
	}
}

func refreshFailedUpdate(courseID string, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:    RefreshFailed,
		CourseID: courseID,
		Message:  fmt.Sprintf("✗ %s: %v", courseID, err),
	}
}

func reconnectingUpdate(delay fmt.Stringer) ProgressUpdate {
	return ProgressUpdate{Phase: Reconnecting, Message: fmt.Sprintf("Stream closed, reconnecting in %s", delay)}
}

func failureUpdate(message string) ProgressUpdate {
	return ProgressUpdate{Phase: Failure, Message: message}
}

func startScanUpdate(step, total int, courseID string, err error) ProgressUpdate {
	if err != nil {
		return ProgressUpdate{
			Phase:    StartScan,
			CourseID: courseID,
			Step:     step,
			Total:    total,
			Message:  fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, courseID, err),
		}
	}
	return ProgressUpdate{
		Phase:    StartScan,
		CourseID: courseID,
		Step:     step,
		Total:    total,
		Message:  fmt.Sprintf("[%d/%d] ✓ %s", step, total, courseID),
	}
}

func scanLabel(scan models.Scan) string {
	if scan.CourseTitle != "" {
		return scan.CourseTitle
	}
	return scan.CourseID
}

func courseLabel(course *models.Course) string {
	if course.Title != "" {
		return course.Title
	}
	return course.ID
}
