package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"

	"task-manager/models"
)

const taskSelect = `SELECT t.id, t.title, t.description, t.assigned_to_id, t.created_by_id, t.status,
	t.due_date, t.task_type, t.attachment, t.created_at,
	c.username, c.first_name, c.last_name, c.role,
	a.username, a.first_name, a.last_name, a.role
	FROM tasks t
	JOIN users c ON c.id = t.created_by_id
	LEFT JOIN users a ON a.id = t.assigned_to_id`

// TaskFilter narrows ListTasks and CountTasks. Zero fields are ignored.
type TaskFilter struct {
	CreatedBy    int
	AssignedTo   int
	Status       models.TaskStatus
	CreatedSince time.Time
	DueOn        string
}

func (f TaskFilter) where() (string, []interface{}) {
	var conds []string
	var args []interface{}
	if f.CreatedBy != 0 {
		conds = append(conds, "t.created_by_id = ?")
		args = append(args, f.CreatedBy)
	}
	if f.AssignedTo != 0 {
		conds = append(conds, "t.assigned_to_id = ?")
		args = append(args, f.AssignedTo)
	}
	if f.Status != "" {
		conds = append(conds, "t.status = ?")
		args = append(args, string(f.Status))
	}
	if !f.CreatedSince.IsZero() {
		conds = append(conds, "t.created_at >= ?")
		args = append(args, f.CreatedSince.UTC())
	}
	if f.DueOn != "" {
		conds = append(conds, "t.due_date = ?")
		args = append(args, dateArg(f.DueOn))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// dateArg turns a YYYY-MM-DD string into the UTC midnight stored for dates.
func dateArg(s string) interface{} {
	if s == "" {
		return nil
	}
	d, err := time.Parse(models.DateLayout, s)
	if err != nil {
		return s
	}
	return d
}

func scanTask(s scanner) (models.Task, error) {
	var t models.Task
	var assigned sql.NullInt64
	var due sql.NullTime
	var taskType, attachment sql.NullString
	var creator models.UserSummary
	var aUser, aFirst, aLast, aRole sql.NullString
	var cFirst, cLast string

	err := s.Scan(&t.ID, &t.Title, &t.Description, &assigned, &t.CreatedByID, &t.Status,
		&due, &taskType, &attachment, &t.CreatedAt,
		&creator.Username, &cFirst, &cLast, &creator.Role,
		&aUser, &aFirst, &aLast, &aRole)
	if err != nil {
		return t, err
	}
	creator.ID = t.CreatedByID
	creator.FullName = strings.TrimSpace(cFirst + " " + cLast)
	t.CreatedBy = &creator

	if assigned.Valid {
		id := int(assigned.Int64)
		t.AssignedToID = &id
		t.AssignedTo = &models.UserSummary{
			ID:       id,
			Username: aUser.String,
			FullName: strings.TrimSpace(aFirst.String + " " + aLast.String),
			Role:     aRole.String,
		}
	}
	if due.Valid {
		t.DueDate = due.Time.Format(models.DateLayout)
	}
	t.TaskType = taskType.String
	t.Attachment = attachment.String
	return t, nil
}

// ListTasks returns tasks matching f, newest first.
func ListTasks(ctx context.Context, q Querier, f TaskFilter) ([]models.Task, error) {
	where, args := f.where()
	rows, err := q.QueryContext(ctx, taskSelect+where+" ORDER BY t.created_at DESC, t.id DESC", args...)
	if err != nil {
		return nil, errors.Wrap(err, "query tasks")
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan task")
		}
		tasks = append(tasks, t)
	}
	return tasks, errors.Wrap(rows.Err(), "iterate tasks")
}

func CountTasks(ctx context.Context, q Querier, f TaskFilter) (int, error) {
	where, args := f.where()
	var n int
	err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks t"+where, args...).Scan(&n)
	return n, errors.Wrap(err, "count tasks")
}

func GetTask(ctx context.Context, q Querier, id int) (models.Task, error) {
	t, err := scanTask(q.QueryRowContext(ctx, taskSelect+" WHERE t.id = ?", id))
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, errors.Wrap(err, "get task")
}

func assignedArg(id *int) interface{} {
	if id == nil {
		return nil
	}
	return *id
}

// CreateTask inserts t and fills in its id, default status and creation time.
func CreateTask(ctx context.Context, q Querier, t *models.Task) error {
	if t.Status == "" {
		t.Status = models.StatusPending
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now()
	}
	res, err := q.ExecContext(ctx, `INSERT INTO tasks
		(title, description, assigned_to_id, created_by_id, status, due_date, task_type, attachment, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Title, t.Description, assignedArg(t.AssignedToID), t.CreatedByID, string(t.Status),
		dateArg(t.DueDate), nullIfEmpty(t.TaskType), nullIfEmpty(t.Attachment), t.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "insert task")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "task id")
	}
	t.ID = int(id)
	return nil
}

// UpdateTask saves every editable field of t.
func UpdateTask(ctx context.Context, q Querier, t models.Task) error {
	res, err := q.ExecContext(ctx, `UPDATE tasks SET title = ?, description = ?, assigned_to_id = ?, status = ?,
		due_date = ?, task_type = ?, attachment = ? WHERE id = ?`,
		t.Title, t.Description, assignedArg(t.AssignedToID), string(t.Status),
		dateArg(t.DueDate), nullIfEmpty(t.TaskType), nullIfEmpty(t.Attachment), t.ID)
	if err != nil {
		return errors.Wrap(err, "update task")
	}
	return expectRow(res)
}

func UpdateTaskStatus(ctx context.Context, q Querier, id int, status models.TaskStatus) error {
	res, err := q.ExecContext(ctx, "UPDATE tasks SET status = ? WHERE id = ?", string(status), id)
	if err != nil {
		return errors.Wrap(err, "update task status")
	}
	return expectRow(res)
}

func AssignTask(ctx context.Context, q Querier, id, userID int) error {
	res, err := q.ExecContext(ctx, "UPDATE tasks SET assigned_to_id = ? WHERE id = ?", userID, id)
	if err != nil {
		return errors.Wrap(err, "assign task")
	}
	return expectRow(res)
}

func DeleteTask(ctx context.Context, q Querier, id int) error {
	res, err := q.ExecContext(ctx, "DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "delete task")
	}
	return expectRow(res)
}

// CountTasksByCreatorRole counts tasks created since the given time, keyed by
// the role of the creator.
func CountTasksByCreatorRole(ctx context.Context, q Querier, since time.Time) (map[string]int, error) {
	rows, err := q.QueryContext(ctx, `SELECT u.role, COUNT(t.id) FROM tasks t
		JOIN users u ON u.id = t.created_by_id
		WHERE t.created_at >= ? GROUP BY u.role ORDER BY u.role`, since.UTC())
	if err != nil {
		return nil, errors.Wrap(err, "query tasks by role")
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var role string
		var n int
		if err := rows.Scan(&role, &n); err != nil {
			return nil, errors.Wrap(err, "scan role count")
		}
		counts[role] = n
	}
	return counts, errors.Wrap(rows.Err(), "iterate role counts")
}
