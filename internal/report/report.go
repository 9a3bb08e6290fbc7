// Package report turns a session into terminal output and text exports.
package report

import (
	_ "embed"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/cbroglie/mustache"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"timesheet/internal/domain"
	"timesheet/internal/timecalc"
)

//go:embed default.mustache
var DefaultTemplate string

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1)

	cellStyle = lipgloss.NewStyle().
			Padding(0, 1)

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("246"))
)

// FormatMinutes renders minutes as "1h 30m", "45m" or "0m".
func FormatMinutes(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	h, m := minutes/60, minutes%60
	switch {
	case h == 0:
		return fmt.Sprintf("%dm", m)
	case m == 0:
		return fmt.Sprintf("%dh", h)
	default:
		return fmt.Sprintf("%dh %dm", h, m)
	}
}

func slot(e domain.TimeEntry) string {
	if e.StartTime == "" && e.EndTime == "" {
		return "-"
	}
	return e.StartTime + "-" + e.EndTime
}

func taskCell(t domain.WorkTask) string {
	if t.Content == "" && t.Time == 0 {
		return ""
	}
	if t.Time == 0 {
		return t.Content
	}
	return fmt.Sprintf("%s (%dm)", t.Content, t.Time)
}

// Render writes s as a styled grid: one row per entry, one column per task.
func Render(w io.Writer, s domain.Session) error {
	headers := []string{"#", "Time"}
	for i := range domain.TasksPerEntry {
		headers = append(headers, "Task "+strconv.Itoa(i+1))
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, e := range domain.NormalizeEntries(s.Entries) {
		row := []string{e.ID, slot(e)}
		for _, task := range e.Tasks {
			row = append(row, taskCell(task))
		}
		t.Row(row...)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(timecalc.DisplayFormat(s.SessionDate)))
	b.WriteString("\n")
	b.WriteString(t.Render())
	b.WriteString("\n")
	fmt.Fprintf(&b, "Total: %s (%d min)", FormatMinutes(s.TotalHours), s.TotalHours)
	if s.ID == "" {
		b.WriteString(metaStyle.Render("  unsaved"))
	} else if !s.UpdatedAt.IsZero() {
		b.WriteString(metaStyle.Render("  updated " + humanize.Time(s.UpdatedAt)))
	}
	b.WriteString("\n")
	if s.Memo != "" {
		b.WriteString("\n")
		b.WriteString(metaStyle.Render("Memo"))
		b.WriteString("\n")
		b.WriteString(s.Memo)
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// TemplateData is the context a mustache export template sees.
func TemplateData(s domain.Session, now time.Time) map[string]any {
	var rows []map[string]any
	for _, e := range s.Entries {
		var tasks []map[string]any
		for _, task := range e.Tasks {
			if task.Content == "" && task.Time == 0 {
				continue
			}
			tasks = append(tasks, map[string]any{
				"content": task.Content,
				"minutes": task.Time,
			})
		}
		if len(tasks) == 0 {
			continue
		}
		rows = append(rows, map[string]any{
			"id":    e.ID,
			"slot":  slot(e),
			"start": e.StartTime,
			"end":   e.EndTime,
			"tasks": tasks,
		})
	}

	updatedAgo := ""
	if !s.UpdatedAt.IsZero() {
		updatedAgo = humanize.RelTime(s.UpdatedAt, now, "ago", "from now")
	}
	total := domain.CalculateTotalHours(s.Entries)
	return map[string]any{
		"id":            s.ID,
		"date":          s.SessionDate,
		"display_date":  timecalc.DisplayFormat(s.SessionDate),
		"month":         timecalc.MonthLabelOf(s.SessionDate),
		"total":         FormatMinutes(total),
		"total_minutes": total,
		"updated_ago":   updatedAgo,
		"rows":          rows,
		"memo":          s.Memo,
		"has_memo":      s.Memo != "",
	}
}

// Export renders s through the mustache template tmpl. An empty template
// uses DefaultTemplate.
func Export(tmpl string, s domain.Session, now time.Time) (string, error) {
	if tmpl == "" {
		tmpl = DefaultTemplate
	}
	out, err := mustache.Render(tmpl, TemplateData(s, now))
	if err != nil {
		return "", fmt.Errorf("rendering export template: %w", err)
	}
	return out, nil
}
