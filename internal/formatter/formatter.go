// package formatter renders scans, courses and scan history as terminal tables and CSV
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/desertthunder/occ/internal/models"
	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

// Options controls table rendering.
type Options struct {
	Color bool      // colorize statuses and outcomes
	Now   time.Time // reference for relative times; zero means time.Now
}

func (o Options) now() time.Time {
	if o.Now.IsZero() {
		return time.Now()
	}
	return o.Now
}

// ShouldColorize reports whether w is a terminal.
func ShouldColorize(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// RelativeTime renders t relative to now ("3 minutes ago"). Zero times render as "-".
func RelativeTime(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}

// Status renders a scan status, colored when color is set.
func Status(s models.ScanStatus, color bool) string {
	if !color {
		return s.String()
	}
	switch s {
	case models.ScanStatusWaiting:
		return text.Colors{text.FgYellow}.Sprint(s.String())
	case models.ScanStatusProcessing:
		return text.Colors{text.FgCyan, text.Bold}.Sprint(s.String())
	default:
		return text.Colors{text.FgHiBlack}.Sprint(s.String())
	}
}

// Outcome renders a completion outcome, colored when color is set.
func Outcome(o models.CompletionOutcome, color bool) string {
	if !color {
		return string(o)
	}
	switch o {
	case models.OutcomeRefreshed:
		return text.Colors{text.FgGreen}.Sprint(string(o))
	case models.OutcomeRefreshFailed:
		return text.Colors{text.FgRed}.Sprint(string(o))
	default:
		return text.Colors{text.FgHiBlack}.Sprint(string(o))
	}
}

// ScansTable renders active scans with their course and age.
func ScansTable(scans []models.Scan, opts Options) string {
	now := opts.now()
	rows := make([][]string, 0, len(scans))
	for _, s := range scans {
		rows = append(rows, []string{
			s.ID,
			s.CourseID,
			orDash(s.CourseTitle),
			Status(s.Status, opts.Color),
			RelativeTime(s.CreatedAt.Time(), now),
			orDash(s.Message),
		})
	}
	return renderTable(
		[]string{"Scan", "Course", "Title", "Status", "Started", "Message"},
		rows,
		nil,
	)
}

// CoursesTable renders a page of courses.
func CoursesTable(courses []models.Course, opts Options) string {
	now := opts.now()
	rows := make([][]string, 0, len(courses))
	for _, c := range courses {
		progress := "-"
		if c.Progress != nil && c.Progress.Started {
			progress = fmt.Sprintf("%d%%", c.Progress.Percent)
		}
		rows = append(rows, []string{
			c.ID,
			orDash(c.Title),
			yesNo(c.Available),
			yesNo(c.Maintenance),
			Duration(c.Duration),
			progress,
			RelativeTime(c.UpdatedAt.Time(), now),
		})
	}
	return renderTable(
		[]string{"ID", "Title", "Available", "Maintenance", "Duration", "Progress", "Updated"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	)
}

// HistoryTable renders recorded completions in the order given.
func HistoryTable(completions []*models.ScanCompletion, opts Options) string {
	now := opts.now()
	rows := make([][]string, 0, len(completions))
	for _, c := range completions {
		rows = append(rows, []string{
			humanize.Comma(int64(c.Sequence())),
			c.CourseID(),
			orDash(c.Title()),
			Outcome(c.Outcome(), opts.Color),
			RelativeTime(c.CreatedAt(), now),
			orDash(c.Detail()),
		})
	}
	return renderTable(
		[]string{"#", "Course", "Title", "Outcome", "Observed", "Detail"},
		rows,
		[]columnAlignment{alignRight},
	)
}

// StatusSummary renders a published status map as "course: status" lines sorted by course id.
func StatusSummary(statuses map[string]models.ScanStatus, color bool) string {
	if len(statuses) == 0 {
		return "No active scans"
	}

	ids := make([]string, 0, len(statuses))
	for id := range statuses {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var b strings.Builder
	for _, id := range ids {
		fmt.Fprintf(&b, "%s: %s\n", id, Status(statuses[id], color))
	}
	return strings.TrimRight(b.String(), "\n")
}

// HistoryToCSV converts completions to CSV with columns: Sequence, ID, Course, Scan, Title, Outcome, Detail, Observed
func HistoryToCSV(completions []*models.ScanCompletion) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Sequence", "ID", "Course", "Scan", "Title", "Outcome", "Detail", "Observed"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, c := range completions {
		record := []string{
			fmt.Sprint(c.Sequence()),
			c.ID(),
			c.CourseID(),
			c.ScanID(),
			c.Title(),
			string(c.Outcome()),
			c.Detail(),
			c.CreatedAt().UTC().Format(time.RFC3339),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// WriteHistoryCSV writes completions to path as CSV.
func WriteHistoryCSV(completions []*models.ScanCompletion, path string) error {
	if path == "" {
		return fmt.Errorf("empty output path")
	}

	data, err := HistoryToCSV(completions)
	if err != nil {
		return fmt.Errorf("failed to generate CSV: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write CSV file: %w", err)
	}
	return nil
}

// Duration formats a course length in seconds as "1h02m" or "4m05s".
func Duration(seconds int) string {
	if seconds <= 0 {
		return "-"
	}
	h, m, s := seconds/3600, (seconds%3600)/60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm", h, m)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range columns {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
