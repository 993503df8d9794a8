package store

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"task-manager/models"
)

func CreateNote(ctx context.Context, q Querier, n *models.NotesUpload) error {
	if n.UploadedAt.IsZero() {
		n.UploadedAt = now()
	}
	res, err := q.ExecContext(ctx, "INSERT INTO notes_uploads (uploaded_by_id, file, uploaded_at) VALUES (?, ?, ?)",
		n.UploadedByID, n.File, n.UploadedAt)
	if err != nil {
		return errors.Wrap(err, "insert note")
	}
	id, err := res.LastInsertId()
	n.ID = int(id)
	return errors.Wrap(err, "note id")
}

// ListNotes returns every uploaded note, newest first.
func ListNotes(ctx context.Context, q Querier) ([]models.NotesUpload, error) {
	rows, err := q.QueryContext(ctx, `SELECT n.id, n.uploaded_by_id, u.username, u.first_name, u.last_name, n.file, n.uploaded_at
		FROM notes_uploads n JOIN users u ON u.id = n.uploaded_by_id
		ORDER BY n.uploaded_at DESC, n.id DESC`)
	if err != nil {
		return nil, errors.Wrap(err, "query notes")
	}
	defer rows.Close()

	notes := []models.NotesUpload{}
	for rows.Next() {
		var n models.NotesUpload
		var username, first, last string
		if err := rows.Scan(&n.ID, &n.UploadedByID, &username, &first, &last, &n.File, &n.UploadedAt); err != nil {
			return nil, errors.Wrap(err, "scan note")
		}
		n.UploadedBy = strings.TrimSpace(first + " " + last)
		if n.UploadedBy == "" {
			n.UploadedBy = username
		}
		notes = append(notes, n)
	}
	return notes, errors.Wrap(rows.Err(), "iterate notes")
}

func CreateTaskFile(ctx context.Context, q Querier, f *models.TaskFile) error {
	if f.UploadedAt.IsZero() {
		f.UploadedAt = now()
	}
	res, err := q.ExecContext(ctx, "INSERT INTO task_files (task_id, file, uploaded_at) VALUES (?, ?, ?)",
		f.TaskID, f.File, f.UploadedAt)
	if err != nil {
		return errors.Wrap(err, "insert task file")
	}
	id, err := res.LastInsertId()
	f.ID = int(id)
	return errors.Wrap(err, "task file id")
}

func ListTaskFiles(ctx context.Context, q Querier, taskID int) ([]models.TaskFile, error) {
	rows, err := q.QueryContext(ctx, "SELECT id, task_id, file, uploaded_at FROM task_files WHERE task_id = ? ORDER BY id", taskID)
	if err != nil {
		return nil, errors.Wrap(err, "query task files")
	}
	defer rows.Close()

	files := []models.TaskFile{}
	for rows.Next() {
		var f models.TaskFile
		if err := rows.Scan(&f.ID, &f.TaskID, &f.File, &f.UploadedAt); err != nil {
			return nil, errors.Wrap(err, "scan task file")
		}
		files = append(files, f)
	}
	return files, errors.Wrap(rows.Err(), "iterate task files")
}
