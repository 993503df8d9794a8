// Package reports builds the admin task reports and writes them as CSV or
// XLSX.
package reports

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"task-manager/models"
	"task-manager/store"
)

const (
	TypeSummary  = "summary"
	TypeDetailed = "detailed"

	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// rangeDays maps a date range name to how far back it reaches. Unknown names
// fall back to a year.
var rangeDays = map[string]int{
	"week":    7,
	"month":   30,
	"quarter": 90,
	"year":    365,
}

func NormalizeRange(r string) string {
	if r == "" {
		return "week"
	}
	if _, ok := rangeDays[r]; ok {
		return r
	}
	return "year"
}

// StartDate returns local midnight of the first day in range r, counting back
// from today.
func StartDate(r string, today time.Time) time.Time {
	days := rangeDays[NormalizeRange(r)]
	y, m, d := today.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, today.Location()).AddDate(0, 0, -days)
}

type Report struct {
	Type  string
	Range string
	Start time.Time
	Today time.Time
	Rows  [][]string
}

// Filename is task_report_<range>_<today>.<ext>.
func (r *Report) Filename(ext string) string {
	return fmt.Sprintf("task_report_%s_%s.%s", r.Range, r.Today.Format(models.DateLayout), ext)
}

// Build collects the tasks created since the start of the range. now is read
// in loc to decide what "today" is.
func Build(ctx context.Context, q store.Querier, reportType, dateRange string, now time.Time, loc *time.Location) (*Report, error) {
	if loc == nil {
		loc = time.UTC
	}
	today := now.In(loc)
	rep := &Report{
		Type:  reportType,
		Range: NormalizeRange(dateRange),
		Today: today,
	}
	rep.Start = StartDate(rep.Range, today)

	var err error
	if reportType == TypeSummary || reportType == "" {
		rep.Type = TypeSummary
		rep.Rows, err = summaryRows(ctx, q, rep)
	} else {
		rep.Type = TypeDetailed
		rep.Rows, err = detailedRows(ctx, q, rep, loc)
	}
	if err != nil {
		return nil, err
	}
	return rep, nil
}

func summaryRows(ctx context.Context, q store.Querier, rep *Report) ([][]string, error) {
	since := store.TaskFilter{CreatedSince: rep.Start}
	total, err := store.CountTasks(ctx, q, since)
	if err != nil {
		return nil, err
	}
	since.Status = models.StatusCompleted
	completed, err := store.CountTasks(ctx, q, since)
	if err != nil {
		return nil, err
	}
	since.Status = models.StatusPending
	pending, err := store.CountTasks(ctx, q, since)
	if err != nil {
		return nil, err
	}
	byRole, err := store.CountTasksByCreatorRole(ctx, q, rep.Start)
	if err != nil {
		return nil, err
	}

	rows := [][]string{
		{"Report Type", "Summary"},
		{"Date Range", rep.Start.Format(models.DateLayout) + " to " + rep.Today.Format(models.DateLayout)},
		{"Total Tasks", strconv.Itoa(total)},
		{"Completed Tasks", strconv.Itoa(completed)},
		{"Pending Tasks", strconv.Itoa(pending)},
		{},
		{"Tasks by Role"},
	}
	roles := make([]string, 0, len(byRole))
	for role := range byRole {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	for _, role := range roles {
		rows = append(rows, []string{role, strconv.Itoa(byRole[role])})
	}
	return rows, nil
}

func person(u *models.UserSummary) string {
	if u == nil {
		return "Unassigned ()"
	}
	return fmt.Sprintf("%s (%s)", u.FullName, u.Role)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func detailedRows(ctx context.Context, q store.Querier, rep *Report, loc *time.Location) ([][]string, error) {
	tasks, err := store.ListTasks(ctx, q, store.TaskFilter{CreatedSince: rep.Start})
	if err != nil {
		return nil, err
	}
	rows := [][]string{{"Title", "Description", "Created By", "Assigned To", "Due Date", "Status", "Created At"}}
	for _, t := range tasks {
		rows = append(rows, []string{
			t.Title,
			truncate(t.Description, 100),
			person(t.CreatedBy),
			person(t.AssignedTo),
			t.DueDate,
			string(t.Status),
			t.CreatedAt.In(loc).Format(models.DateLayout),
		})
	}
	return rows, nil
}
