package ui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/occ/internal/models"
	"github.com/desertthunder/occ/internal/services"
	"github.com/desertthunder/occ/internal/tasks"
)

const defaultPageSize = 100

type toastKind int

const (
	toastInfo toastKind = iota
	toastOK
	toastWarn
	toastErr
)

// Deps are the collaborators of the dashboard.
type Deps struct {
	Courses  services.CourseClient
	Scans    services.ScanClient
	Monitor  *tasks.Monitor
	Progress <-chan tasks.ProgressUpdate // the channel given to the monitor as MonitorOpts.Progress
	PageSize int
}

// Model represents the TUI application state.
type Model struct {
	ctx         context.Context
	courses     services.CourseClient
	scans       services.ScanClient
	monitor     *tasks.Monitor
	progress    <-chan tasks.ProgressUpdate
	statusCh    chan tasks.StatusMap
	unsubscribe func()
	pageSize    int

	loaded   []models.Course
	records  map[string]*models.Course // handed to the monitor, keyed by course ID
	tracked  map[string]bool
	statuses tasks.StatusMap

	list      list.Model
	toast     string
	toastKind toastKind
	err       error
	width     int
	height    int
	help      help.Model
	keys      keyMap
}

// NewModel creates a dashboard bound to the monitor's status projection.
func NewModel(ctx context.Context, deps Deps) *Model {
	if deps.PageSize <= 0 {
		deps.PageSize = defaultPageSize
	}

	l := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Courses"
	l.SetShowHelp(false)

	m := &Model{
		ctx:      ctx,
		courses:  deps.Courses,
		scans:    deps.Scans,
		monitor:  deps.Monitor,
		progress: deps.Progress,
		statusCh: make(chan tasks.StatusMap, 1),
		pageSize: deps.PageSize,
		records:  make(map[string]*models.Course),
		tracked:  make(map[string]bool),
		statuses: deps.Monitor.Statuses(),
		list:     l,
		help:     help.New(),
		keys:     newKeyMap(),
	}
	m.unsubscribe = deps.Monitor.StatusView().Subscribe(func(s tasks.StatusMap) { offer(m.statusCh, s) })
	return m
}

// offer replaces any undelivered value in ch with s. Never blocks.
func offer[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Init fetches the course list and starts listening to the monitor.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.fetchCourses(), m.waitForStatus(), m.waitForProgress())
}

// Update handles incoming messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width-4, msg.Height-8)
		return m, nil

	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		return m.handleKeys(msg)

	case Msg:
		return m.handleMsg(msg)
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *Model) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		m.Close()
		return m, tea.Quit
	case key.Matches(msg, m.keys.track):
		if item, ok := m.selected(); ok {
			m.toggle(item.course)
			return m, m.rebuild()
		}
		return m, nil
	case key.Matches(msg, m.keys.start):
		if item, ok := m.selected(); ok {
			m.setToast(toastInfo, fmt.Sprintf("Starting scan of %s...", item.Title()))
			return m, m.startScan(item.course.ID)
		}
		return m, nil
	case key.Matches(msg, m.keys.clear):
		m.monitor.ClearAll()
		clear(m.tracked)
		m.setToast(toastInfo, "Stopped tracking every course")
		return m, m.rebuild()
	case key.Matches(msg, m.keys.refresh):
		return m, m.fetchCourses()
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *Model) handleMsg(msg Msg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case MsgCoursesFetched:
		data := msg.data.(coursesFetched)
		if data.err != nil {
			m.err = data.err
			m.setToast(toastErr, services.UserMessage(data.err))
			return m, nil
		}
		m.err = nil
		m.loaded = data.courses
		return m, m.rebuild()

	case MsgStatusChanged:
		m.statuses = msg.data.(tasks.StatusMap)
		return m, tea.Batch(m.rebuild(), m.waitForStatus())

	case MsgProgressUpdate:
		return m, tea.Batch(m.handleProgress(msg.data.(tasks.ProgressUpdate)), m.waitForProgress())

	case MsgScanStarted:
		data := msg.data.(scanStarted)
		if data.err != nil {
			m.setToast(toastErr, services.UserMessage(data.err))
			return m, nil
		}
		if !m.tracked[data.courseID] {
			m.track(data.courseID)
		}
		m.setToast(toastOK, fmt.Sprintf("Scan requested for %s", data.courseID))
		return m, m.rebuild()
	}
	return m, nil
}

func (m *Model) handleProgress(u tasks.ProgressUpdate) tea.Cmd {
	switch u.Phase {
	case tasks.CourseRefreshed:
		delete(m.tracked, u.CourseID)
		m.setToast(toastOK, u.Message)
		return m.rebuild()
	case tasks.RefreshFailed:
		delete(m.tracked, u.CourseID)
		m.setToast(toastErr, u.Message)
		return m.rebuild()
	case tasks.Failure:
		m.setToast(toastErr, u.Message)
	case tasks.Reconnecting:
		m.setToast(toastWarn, u.Message)
	case tasks.ScanCompleted, tasks.MonitorStopped:
		m.setToast(toastInfo, u.Message)
	}
	return nil
}

// View renders the dashboard.
func (m *Model) View() string {
	if m.err != nil && len(m.loaded) == 0 {
		return styles.err.Render(fmt.Sprintf("Error: %s\n\nPress r to retry, q to quit", services.UserMessage(m.err)))
	}

	summary := fmt.Sprintf("%d tracked • %d active scans", len(m.tracked), m.monitor.ActiveCount().Get())
	if m.monitor.Running() {
		summary += " • " + styles.ok.Render("watching")
	} else {
		summary += " • " + styles.help.Render("idle")
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.list.View(),
		"",
		summary,
		m.renderToast(),
		m.help.View(m.keys),
	)
}

// Close detaches the dashboard from the monitor and stops tracking.
func (m *Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	m.monitor.ClearAll()
}

func (m *Model) renderToast() string {
	switch m.toastKind {
	case toastOK:
		return styles.ok.Render(m.toast)
	case toastWarn:
		return styles.warn.Render(m.toast)
	case toastErr:
		return styles.err.Render(m.toast)
	default:
		return m.toast
	}
}

func (m *Model) setToast(kind toastKind, message string) {
	m.toastKind = kind
	m.toast = message
}

func (m *Model) selected() (courseItem, bool) {
	item, ok := m.list.SelectedItem().(courseItem)
	return item, ok
}

func (m *Model) toggle(c models.Course) {
	if m.tracked[c.ID] {
		m.monitor.UntrackCourse(c.ID)
		delete(m.tracked, c.ID)
		return
	}
	m.track(c.ID)
}

func (m *Model) track(courseID string) {
	record, ok := m.records[courseID]
	if !ok {
		record = &models.Course{ID: courseID}
		for _, c := range m.loaded {
			if c.ID == courseID {
				*record = c
				break
			}
		}
		m.records[courseID] = record
	}
	m.monitor.TrackCourses(record)
	m.tracked[courseID] = true
}

// rebuild regenerates list items from the loaded page, the tracked records and the latest statuses.
func (m *Model) rebuild() tea.Cmd {
	items := make([]list.Item, 0, len(m.loaded))
	m.monitor.Inspect(func() {
		for _, c := range m.loaded {
			if r, ok := m.records[c.ID]; ok {
				c = *r
			}
			items = append(items, courseItem{course: c, tracked: m.tracked[c.ID], status: m.statuses[c.ID]})
		}
	})
	return m.list.SetItems(items)
}

func (m *Model) fetchCourses() tea.Cmd {
	return func() tea.Msg {
		page, err := m.courses.ListCourses(m.ctx, 1, m.pageSize)
		if err != nil {
			return coursesFetchedMsg(nil, err)
		}
		return coursesFetchedMsg(page.Items, nil)
	}
}

func (m *Model) startScan(courseID string) tea.Cmd {
	return func() tea.Msg {
		return scanStartedMsg(courseID, m.scans.StartScan(m.ctx, courseID))
	}
}

func (m *Model) waitForStatus() tea.Cmd {
	ch, ctx := m.statusCh, m.ctx
	return func() tea.Msg {
		select {
		case s := <-ch:
			return statusChangedMsg(s)
		case <-ctx.Done():
			return nil
		}
	}
}

func (m *Model) waitForProgress() tea.Cmd {
	if m.progress == nil {
		return nil
	}
	ch, ctx := m.progress, m.ctx
	return func() tea.Msg {
		select {
		case u, ok := <-ch:
			if !ok {
				return monitorDoneMsg()
			}
			return progressUpdateMsg(u)
		case <-ctx.Done():
			return nil
		}
	}
}
