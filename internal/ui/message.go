package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/occ/internal/models"
	"github.com/desertthunder/occ/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgCoursesFetched MsgKind = iota
	MsgStatusChanged
	MsgProgressUpdate
	MsgScanStarted
	MsgMonitorDone
)

type coursesFetched struct {
	courses []models.Course
	err     error
}

type scanStarted struct {
	courseID string
	err      error
}

// coursesFetchedMsg is the constructor for [MsgCoursesFetched]
func coursesFetchedMsg(courses []models.Course, err error) Msg {
	return Msg{kind: MsgCoursesFetched, data: coursesFetched{courses, err}}
}

// statusChangedMsg is the constructor for [MsgStatusChanged]
func statusChangedMsg(statuses tasks.StatusMap) Msg {
	return Msg{kind: MsgStatusChanged, data: statuses}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// scanStartedMsg is the constructor for [MsgScanStarted]
func scanStartedMsg(courseID string, err error) Msg {
	return Msg{kind: MsgScanStarted, data: scanStarted{courseID, err}}
}

// monitorDoneMsg is the constructor for [MsgMonitorDone], sent when the progress channel closes.
func monitorDoneMsg() Msg {
	return Msg{kind: MsgMonitorDone}
}
