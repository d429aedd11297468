package main

import (
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	servercommon "github.com/hylla/waypoint/internal/adapters/server/common"
)

const minRoadmapWidth = 20

var (
	headerStyle  = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Faint(true)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	acceptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#22C55E")).Bold(true)
	rejectStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	barText      = lipgloss.Color("#FFFFFF")
)

// newTable builds a bordered table with bold headers.
func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
}

func renderMilestoneTable(w io.Writer, views []servercommon.MilestoneView) {
	if len(views) == 0 {
		_, _ = fmt.Fprintln(w, mutedStyle.Render("no milestones"))
		return
	}
	t := newTable("ID", "NAME", "START", "DUE", "STATUS", "PROGRESS", "DEPENDS ON")
	for _, v := range views {
		status := v.Status
		if v.Overdue {
			status += " (overdue)"
		}
		t.Row(v.ID, v.Name, v.StartDate, v.DueDate, status, formatPercent(v.Progress), strings.Join(v.DependsOn, ", "))
	}
	_, _ = fmt.Fprintln(w, t)
}

func renderMilestoneDetail(w io.Writer, v servercommon.MilestoneView, report servercommon.ProgressReport) {
	_, _ = fmt.Fprintln(w, headerStyle.Render(v.Name)+" "+mutedStyle.Render(v.ID))
	if v.Description != "" {
		_, _ = fmt.Fprintln(w, v.Description)
	}
	_, _ = fmt.Fprintf(w, "dates:      %s to %s\n", v.StartDate, v.DueDate)
	_, _ = fmt.Fprintf(w, "status:     %s (%s priority)\n", v.Status, v.Priority)
	_, _ = fmt.Fprintf(w, "progress:   %s (%s)\n", formatPercent(report.Progress), report.Mode)
	if v.Overdue {
		_, _ = fmt.Fprintln(w, warningStyle.Render("overdue"))
	}
	if len(v.DependsOn) > 0 {
		_, _ = fmt.Fprintf(w, "depends on: %s\n", strings.Join(v.DependsOn, ", "))
	}
	if len(v.Dependents) > 0 {
		_, _ = fmt.Fprintf(w, "blocks:     %s\n", strings.Join(v.Dependents, ", "))
	}
	if len(report.Tasks) == 0 {
		return
	}
	t := newTable("TASK", "TITLE", "STATUS", "WEIGHT")
	for _, task := range report.Tasks {
		t.Row(task.TaskID, task.Title, task.Status, strconv.Itoa(task.Weight))
	}
	_, _ = fmt.Fprintln(w, t)
	_, _ = fmt.Fprintf(w, "completed weight %d of %d\n", report.CompletedWeight, report.TotalWeight)
	if len(report.DegenerateTaskIDs) > 0 {
		_, _ = fmt.Fprintln(w, warningStyle.Render("weights floored to 1: "+strings.Join(report.DegenerateTaskIDs, ", ")))
	}
}

func renderDependencyTable(w io.Writer, deps []servercommon.Dependency) {
	if len(deps) == 0 {
		_, _ = fmt.Fprintln(w, mutedStyle.Render("no dependencies"))
		return
	}
	t := newTable("ID", "MILESTONE", "DEPENDS ON", "TYPE", "LAG")
	for _, d := range deps {
		t.Row(d.ID, d.MilestoneID, d.DependsOnMilestoneID, d.Type, strconv.Itoa(d.LagDays))
	}
	_, _ = fmt.Fprintln(w, t)
}

func renderDecision(w io.Writer, d servercommon.DependencyDecision) {
	if d.Accepted {
		_, _ = fmt.Fprintln(w, acceptStyle.Render("accepted"))
		return
	}
	line := rejectStyle.Render("rejected") + " " + d.Reason + ": " + d.Message
	if len(d.CyclePath) > 0 {
		line += " (" + strings.Join(d.CyclePath, " -> ") + ")"
	}
	_, _ = fmt.Fprintln(w, line)
}

// renderRoadmap draws one line per layout row with each milestone as a coloured bar.
func renderRoadmap(w io.Writer, r servercommon.Roadmap, width int) {
	if len(r.Placements) == 0 {
		_, _ = fmt.Fprintln(w, mutedStyle.Render("no milestones"))
		return
	}
	width = max(width, minRoadmapWidth)

	byID := make(map[string]servercommon.MilestoneView, len(r.Milestones))
	for _, m := range r.Milestones {
		byID[m.ID] = m
	}
	rows := make([][]servercommon.Placement, r.RowCount)
	for _, p := range r.Placements {
		if p.Row < 0 || p.Row >= len(rows) {
			continue
		}
		rows[p.Row] = append(rows[p.Row], p)
	}

	start, end := dateOnly(r.WindowStart), dateOnly(r.WindowEnd)
	gap := max(width-len(start)-len(end), 1)
	_, _ = fmt.Fprintln(w, mutedStyle.Render(start+strings.Repeat(" ", gap)+end))
	for _, row := range rows {
		_, _ = fmt.Fprintln(w, renderRoadmapRow(row, byID, width))
	}

	if len(r.Arrows) > 0 {
		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprintln(w, headerStyle.Render("dependencies"))
		for _, a := range r.Arrows {
			_, _ = fmt.Fprintf(w, "  %s -> %s %s\n", nameOf(byID, a.FromID), nameOf(byID, a.ToID), mutedStyle.Render(a.Type))
		}
	}
	if len(r.Warnings) > 0 {
		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprintln(w, headerStyle.Render("schedule warnings"))
		for _, sw := range r.Warnings {
			_, _ = fmt.Fprintln(w, warningStyle.Render(fmt.Sprintf("  %s %s on %s: required %s, actual %s (%d days)",
				nameOf(byID, sw.MilestoneID), sw.Type, nameOf(byID, sw.DependsOnMilestoneID), sw.Required, sw.Actual, sw.SlipDays)))
		}
	}
}

// renderRoadmapRow maps fractions onto columns. Bars never overlap and are at least one column wide.
func renderRoadmapRow(row []servercommon.Placement, byID map[string]servercommon.MilestoneView, width int) string {
	slices.SortFunc(row, func(a, b servercommon.Placement) int {
		switch {
		case a.StartFraction < b.StartFraction:
			return -1
		case a.StartFraction > b.StartFraction:
			return 1
		default:
			return strings.Compare(a.MilestoneID, b.MilestoneID)
		}
	})

	var b strings.Builder
	cursor := 0
	for _, p := range row {
		from := max(int(math.Round(p.StartFraction*float64(width))), cursor)
		to := min(max(int(math.Round(p.EndFraction*float64(width))), from+1), width)
		if from >= width {
			break
		}
		b.WriteString(strings.Repeat(" ", from-cursor))

		m := byID[p.MilestoneID]
		color := m.Color
		if color == "" {
			color = "#3B82F6"
		}
		style := lipgloss.NewStyle().Background(lipgloss.Color(color)).Foreground(barText)
		b.WriteString(style.Render(fitLabel(m.Name, to-from)))
		cursor = to
	}
	b.WriteString(strings.Repeat(" ", width-cursor))
	return b.String()
}

// fitLabel truncates or pads name to exactly n runes.
func fitLabel(name string, n int) string {
	runes := []rune(name)
	if len(runes) > n {
		runes = runes[:n]
	}
	return string(runes) + strings.Repeat(" ", n-len(runes))
}

func renderRollup(w io.Writer, r servercommon.Rollup) {
	_, _ = fmt.Fprintln(w, headerStyle.Render("dependency rollup for "+r.TenantID))
	lines := []struct {
		label string
		value int
	}{
		{"milestones", r.Milestones},
		{"completed", r.CompletedMilestones},
		{"overdue", r.OverdueMilestones},
		{"with dependencies", r.MilestonesWithDependencies},
		{"dependency edges", r.DependencyEdges},
		{"blocked", r.BlockedMilestones},
		{"unresolved edges", r.UnresolvedDependencyEdges},
		{"schedule warnings", r.ScheduleWarnings},
	}
	for _, l := range lines {
		_, _ = fmt.Fprintf(w, "  %-18s %d\n", l.label, l.value)
	}
}

func nameOf(byID map[string]servercommon.MilestoneView, id string) string {
	if m, ok := byID[id]; ok && m.Name != "" {
		return m.Name
	}
	return id
}

// dateOnly trims an RFC3339 timestamp to its date.
func dateOnly(ts string) string {
	if len(ts) >= 10 {
		return ts[:10]
	}
	return ts
}
