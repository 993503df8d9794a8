package controllers

import (
	"database/sql"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/go-multierror"

	"task-manager/logging"
	"task-manager/models"
	"task-manager/permissions"
	"task-manager/storage"
	"task-manager/store"
	"task-manager/utils"
)

type TaskController struct {
	*App
}

const (
	maxTitleLength    = 255
	maxTaskTypeLength = 50
)

// checkLength records a field error when value is longer than max characters.
func checkLength(result *multierror.Error, field, value string, max int) *multierror.Error {
	if utf8.RuneCountInString(value) > max {
		return multierror.Append(result, utils.FieldError{Field: field, Message: fmt.Sprintf("Ensure this value has at most %d characters.", max)})
	}
	return result
}

func (c TaskController) withURLs(tasks []models.Task) []models.Task {
	for i := range tasks {
		tasks[i].AttachmentURL = c.fileURL(tasks[i].Attachment)
	}
	if tasks == nil {
		return []models.Task{}
	}
	return tasks
}

// dueDate accepts an empty value or a YYYY-MM-DD date.
func dueDate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	if _, err := time.Parse(models.DateLayout, raw); err != nil {
		return "", utils.FieldError{Field: "due_date", Message: "Enter a valid date."}
	}
	return raw, nil
}

// student loads id and checks it belongs to a Student account.
func student(r *http.Request, db *sql.DB, id int) (models.User, error) {
	u, err := store.GetUserByID(r.Context(), db, id)
	if err != nil {
		return u, err
	}
	if !u.IsStudent() {
		return u, store.ErrNotFound
	}
	return u, nil
}

// loadTask fetches the task named by the {id} route variable, writing the
// error response itself when it fails.
func loadTask(w http.ResponseWriter, r *http.Request, db *sql.DB, id int) (models.Task, bool) {
	task, err := store.GetTask(r.Context(), db, id)
	if err == store.ErrNotFound {
		notFound(w, "not_found", "Task not found.")
		return task, false
	}
	if err != nil {
		serverError(w, "TASK_LOOKUP_FAILED", err)
		return task, false
	}
	return task, true
}

func routeTask(w http.ResponseWriter, r *http.Request, db *sql.DB) (models.Task, bool) {
	id, err := pathID(r, "id")
	if err != nil {
		notFound(w, "not_found", "Task not found.")
		return models.Task{}, false
	}
	return loadTask(w, r, db, id)
}

func (c TaskController) CreateTask(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r)
		values, err := readParams(w, r)
		if err != nil {
			badRequest(w, "invalid_body", "Invalid request body.")
			return
		}

		title := strings.TrimSpace(values.Get("title"))
		assignedRaw := values.Get("assigned_to")
		if title == "" || assignedRaw == "" {
			badRequest(w, "missing_fields", "Title and Assignee are required.")
			return
		}
		assignedID, err := utils.StrToInt(assignedRaw)
		if err != nil {
			notFound(w, "assignee_not_found", "Selected student not found.")
			return
		}
		assignee, err := student(r, db, assignedID)
		if err == store.ErrNotFound {
			notFound(w, "assignee_not_found", "Selected student not found.")
			return
		}
		if err != nil {
			serverError(w, "TASK_ASSIGNEE_LOOKUP_FAILED", err)
			return
		}

		taskType := strings.TrimSpace(values.Get("task_type"))
		result := checkLength(nil, "title", title, maxTitleLength)
		result = checkLength(result, "task_type", taskType, maxTaskTypeLength)
		due, err := dueDate(values.Get("due_date"))
		if err != nil {
			result = multierror.Append(result, err)
		}
		if err := result.ErrorOrNil(); err != nil {
			formError(w, "Please fix the errors below.", err)
			return
		}

		key, err := c.saveUpload(r.Context(), r, "attachment", storage.PrefixAttachments)
		if err != nil {
			serverError(w, "TASK_ATTACHMENT_FAILED", err)
			return
		}
		task := models.Task{
			Title:        title,
			Description:  values.Get("description"),
			AssignedToID: &assignee.ID,
			CreatedByID:  user.ID,
			DueDate:      due,
			TaskType:     taskType,
			Attachment:   key,
		}
		if err := store.CreateTask(r.Context(), db, &task); err != nil {
			c.discardUpload(r.Context(), key)
			serverError(w, "TASK_CREATE_FAILED", err)
			return
		}

		logging.Logger.Infof("Event ID: TASK_CREATED, Description: task %d created by %d for %d", task.ID, user.ID, assignee.ID)
		utils.ResponseJSONStatus(w, http.StatusCreated, map[string]interface{}{
			"success": true,
			"id":      task.ID,
			"title":   task.Title,
		})
	}
}

// AssignTask creates one task per selected student. Unknown ids and
// non-students are skipped.
func (c TaskController) AssignTask(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r)
		values, err := readParams(w, r)
		if err != nil {
			badRequest(w, "invalid_body", "Invalid request body.")
			return
		}

		title := strings.TrimSpace(values.Get("title"))
		if title == "" {
			badRequest(w, "missing_fields", "Please enter a task title.")
			return
		}
		ids := intList(values, "students", "selected_students")
		if len(ids) == 0 {
			badRequest(w, "no_students", "Please select at least one student.")
			return
		}
		taskType := strings.TrimSpace(values.Get("task_type"))
		result := checkLength(nil, "title", title, maxTitleLength)
		result = checkLength(result, "task_type", taskType, maxTaskTypeLength)
		due, err := dueDate(values.Get("due_date"))
		if err != nil {
			result = multierror.Append(result, err)
		}
		if err := result.ErrorOrNil(); err != nil {
			formError(w, "Please fix the errors below.", err)
			return
		}

		key, err := c.saveUpload(r.Context(), r, "attachment", storage.PrefixAttachments)
		if err != nil {
			serverError(w, "TASK_ATTACHMENT_FAILED", err)
			return
		}

		created := 0
		err = store.WithTx(r.Context(), db, func(tx *sql.Tx) error {
			for _, id := range ids {
				u, err := store.GetUserByID(r.Context(), tx, id)
				if err == store.ErrNotFound || (err == nil && !u.IsStudent()) {
					continue
				}
				if err != nil {
					return err
				}
				studentID := u.ID
				task := models.Task{
					Title:        title,
					TaskType:     taskType,
					CreatedByID:  user.ID,
					AssignedToID: &studentID,
					DueDate:      due,
					Attachment:   key,
					Status:       models.StatusPending,
				}
				if err := store.CreateTask(r.Context(), tx, &task); err != nil {
					return err
				}
				created++
			}
			return nil
		})
		if err != nil {
			c.discardUpload(r.Context(), key)
			serverError(w, "TASK_BULK_ASSIGN_FAILED", err)
			return
		}
		if created == 0 {
			c.discardUpload(r.Context(), key)
		}

		logging.Logger.Infof("Event ID: TASK_BULK_ASSIGNED, Description: %q assigned to %d student(s) by %d", title, created, user.ID)
		utils.ResponseJSON(w, map[string]interface{}{
			"success": true,
			"created": created,
			"message": fmt.Sprintf("Task '%s' assigned to %d student(s).", title, created),
		})
	}
}

func (c TaskController) AssignTaskAjax(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r)
		values, err := readParams(w, r)
		if err != nil {
			badRequest(w, "invalid_body", "Invalid request body.")
			return
		}
		taskID, err1 := utils.StrToInt(values.Get("task_id"))
		studentID, err2 := utils.StrToInt(values.Get("student_id"))
		if err1 != nil || err2 != nil {
			badRequest(w, "missing_ids", "task_id and student_id are required.")
			return
		}

		task, ok := loadTask(w, r, db, taskID)
		if !ok {
			return
		}
		if !permissions.CanEditTask(user, task) {
			forbidden(w, "You do not have permission to edit this task.")
			return
		}
		if _, err := student(r, db, studentID); err == store.ErrNotFound {
			notFound(w, "not_found", "Student not found.")
			return
		} else if err != nil {
			serverError(w, "TASK_ASSIGNEE_LOOKUP_FAILED", err)
			return
		}

		if err := store.AssignTask(r.Context(), db, task.ID, studentID); err != nil {
			serverError(w, "TASK_ASSIGN_FAILED", err)
			return
		}
		utils.ResponseJSON(w, map[string]interface{}{"success": true, "message": "Task assigned successfully"})
	}
}

// CreateTaskAjax is the quick-add form: a title only, owned by the caller and
// not yet assigned.
func (c TaskController) CreateTaskAjax(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r)
		values, err := readParams(w, r)
		if err != nil {
			badRequest(w, "invalid_body", "Invalid request body.")
			return
		}
		title := strings.TrimSpace(values.Get("title"))
		if title == "" {
			badRequest(w, "missing_fields", "Title missing")
			return
		}
		if err := checkLength(nil, "title", title, maxTitleLength).ErrorOrNil(); err != nil {
			formError(w, "Please fix the errors below.", err)
			return
		}

		task := models.Task{Title: title, CreatedByID: user.ID, Status: models.StatusPending}
		if err := store.CreateTask(r.Context(), db, &task); err != nil {
			serverError(w, "TASK_CREATE_FAILED", err)
			return
		}
		logging.Logger.Infof("Event ID: TASK_CREATED, Description: task %d created by %d", task.ID, user.ID)
		utils.ResponseJSON(w, map[string]interface{}{
			"success": true,
			"message": "Task created",
			"task_id": task.ID,
		})
	}
}

// applyTaskForm overwrites the fields present in values and validates the
// result.
func applyTaskForm(r *http.Request, db *sql.DB, task *models.Task, values url.Values) (invalid error, err error) {
	var result *multierror.Error
	if _, ok := values["title"]; ok {
		task.Title = strings.TrimSpace(values.Get("title"))
	}
	if task.Title == "" {
		result = multierror.Append(result, utils.FieldError{Field: "title", Message: "This field is required."})
	} else {
		result = checkLength(result, "title", task.Title, maxTitleLength)
	}
	if _, ok := values["description"]; ok {
		task.Description = values.Get("description")
	}
	if _, ok := values["task_type"]; ok {
		task.TaskType = strings.TrimSpace(values.Get("task_type"))
		result = checkLength(result, "task_type", task.TaskType, maxTaskTypeLength)
	}
	if _, ok := values["status"]; ok {
		status := models.TaskStatus(values.Get("status"))
		if !status.Valid() {
			result = multierror.Append(result, utils.FieldError{Field: "status", Message: "Select a valid choice."})
		} else {
			task.Status = status
		}
	}
	if _, ok := values["due_date"]; ok {
		due, derr := dueDate(values.Get("due_date"))
		if derr != nil {
			result = multierror.Append(result, derr)
		} else {
			task.DueDate = due
		}
	}
	if _, ok := values["assigned_to"]; ok {
		raw := strings.TrimSpace(values.Get("assigned_to"))
		if raw == "" {
			task.AssignedToID = nil
		} else if id, cerr := utils.StrToInt(raw); cerr != nil {
			result = multierror.Append(result, utils.FieldError{Field: "assigned_to", Message: "Select a valid choice."})
		} else if _, serr := student(r, db, id); serr == store.ErrNotFound {
			result = multierror.Append(result, utils.FieldError{Field: "assigned_to", Message: "Select a valid choice."})
		} else if serr != nil {
			return nil, serr
		} else {
			task.AssignedToID = &id
		}
	}
	return result.ErrorOrNil(), nil
}

func (c TaskController) UpdateTask(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r)
		task, ok := routeTask(w, r, db)
		if !ok {
			return
		}
		if !permissions.CanEditTask(user, task) {
			forbidden(w, "You do not have permission to edit this task.")
			return
		}
		values, err := readParams(w, r)
		if err != nil {
			badRequest(w, "invalid_body", "Invalid request body.")
			return
		}
		invalid, err := applyTaskForm(r, db, &task, values)
		if err != nil {
			serverError(w, "TASK_FORM_LOOKUP_FAILED", err)
			return
		}
		if invalid != nil {
			formError(w, "Please fix the errors below.", invalid)
			return
		}

		oldAttachment := task.Attachment
		key, err := c.saveUpload(r.Context(), r, "attachment", storage.PrefixAttachments)
		if err != nil {
			serverError(w, "TASK_ATTACHMENT_FAILED", err)
			return
		}
		if key != "" {
			task.Attachment = key
		}
		if err := store.UpdateTask(r.Context(), db, task); err != nil {
			c.discardUpload(r.Context(), key)
			serverError(w, "TASK_UPDATE_FAILED", err)
			return
		}
		if key != "" && oldAttachment != "" {
			c.discardUpload(r.Context(), oldAttachment)
		}

		updated, ok := loadTask(w, r, db, task.ID)
		if !ok {
			return
		}
		updated.AttachmentURL = c.fileURL(updated.Attachment)
		utils.ResponseJSON(w, map[string]interface{}{"success": true, "message": "Task updated.", "task": updated})
	}
}

func (c TaskController) writeStatus(w http.ResponseWriter, r *http.Request, db *sql.DB, task models.Task, raw string) {
	status := models.TaskStatus(raw)
	if !status.Valid() {
		formError(w, "Please fix the errors below.", utils.FieldError{Field: "status", Message: "Select a valid choice."})
		return
	}
	if err := store.UpdateTaskStatus(r.Context(), db, task.ID, status); err != nil {
		serverError(w, "TASK_STATUS_FAILED", err)
		return
	}
	logging.Logger.Infof("Event ID: TASK_STATUS_CHANGED, Description: task %d %s -> %s by %d", task.ID, task.Status, status, currentUser(r).ID)
	utils.ResponseJSON(w, map[string]interface{}{"success": true, "status": status})
}

// UpdateTaskStatus lets the assigned student move their task along.
func (c TaskController) UpdateTaskStatus(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r)
		task, ok := routeTask(w, r, db)
		if !ok {
			return
		}
		if !task.IsAssignedTo(user.ID) {
			forbidden(w, "You do not have permission to update this task.")
			return
		}
		values, err := readParams(w, r)
		if err != nil {
			badRequest(w, "invalid_body", "Invalid request body.")
			return
		}
		c.writeStatus(w, r, db, task, values.Get("status"))
	}
}

func (c TaskController) StudentUpdateStatus(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r)
		values, err := readParams(w, r)
		if err != nil {
			badRequest(w, "invalid_body", "Invalid request body.")
			return
		}
		taskID, err := utils.StrToInt(values.Get("task_id"))
		if err != nil || values.Get("status") == "" {
			badRequest(w, "invalid", "task_id and status are required.")
			return
		}
		task, ok := loadTask(w, r, db, taskID)
		if !ok {
			return
		}
		if !permissions.CanUpdateStatus(user, task) {
			forbidden(w, "You do not have permission to update this task.")
			return
		}
		c.writeStatus(w, r, db, task, values.Get("status"))
	}
}

// DeleteTask removes a task. Only its creator or an admin may do so; anyone
// else gets 403 and the task is left untouched.
func (c TaskController) DeleteTask(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r)
		task, ok := routeTask(w, r, db)
		if !ok {
			return
		}
		if !permissions.CanDeleteTask(user, task) {
			logging.Logger.Warnf("Event ID: TASK_DELETE_DENIED, Description: user %d (%s) tried to delete task %d", user.ID, user.Role, task.ID)
			forbidden(w, "You do not have permission to delete this task.")
			return
		}

		files, err := store.ListTaskFiles(r.Context(), db, task.ID)
		if err != nil {
			serverError(w, "TASK_FILES_LOOKUP_FAILED", err)
			return
		}
		if err := store.DeleteTask(r.Context(), db, task.ID); err != nil {
			serverError(w, "TASK_DELETE_FAILED", err)
			return
		}
		c.discardUpload(r.Context(), task.Attachment)
		for _, f := range files {
			c.discardUpload(r.Context(), f.File)
		}

		logging.Logger.Infof("Event ID: TASK_DELETED, Description: task %d deleted by %d", task.ID, user.ID)
		utils.ResponseJSON(w, map[string]interface{}{"success": true, "message": "Task deleted."})
	}
}

func (c TaskController) GetTask(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		task, ok := routeTask(w, r, db)
		if !ok {
			return
		}
		if !permissions.CanViewTask(currentUser(r), task) {
			forbidden(w, "You do not have permission to view this task.")
			return
		}
		task.AttachmentURL = c.fileURL(task.Attachment)
		utils.ResponseJSON(w, task)
	}
}

// TeacherTasks lists the caller's own tasks, optionally only those with status.
func (c TaskController) TeacherTasks(db *sql.DB, status models.TaskStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tasks, err := store.ListTasks(r.Context(), db, store.TaskFilter{CreatedBy: currentUser(r).ID, Status: status})
		if err != nil {
			serverError(w, "TEACHER_TASKS_FAILED", err)
			return
		}
		utils.ResponseJSON(w, map[string]interface{}{"tasks": c.withURLs(tasks)})
	}
}

func (c TaskController) AddTaskFile(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		task, ok := routeTask(w, r, db)
		if !ok {
			return
		}
		if !permissions.CanEditTask(currentUser(r), task) {
			forbidden(w, "You do not have permission to edit this task.")
			return
		}
		if _, err := readParams(w, r); err != nil {
			badRequest(w, "invalid_body", "Invalid request body.")
			return
		}
		key, err := c.saveUpload(r.Context(), r, "file", storage.PrefixTaskFiles)
		if err != nil {
			serverError(w, "TASK_FILE_UPLOAD_FAILED", err)
			return
		}
		if key == "" {
			badRequest(w, "missing_file", "Please select a file to upload.")
			return
		}
		file := models.TaskFile{TaskID: task.ID, File: key}
		if err := store.CreateTaskFile(r.Context(), db, &file); err != nil {
			c.discardUpload(r.Context(), key)
			serverError(w, "TASK_FILE_SAVE_FAILED", err)
			return
		}
		file.URL = c.fileURL(file.File)
		utils.ResponseJSONStatus(w, http.StatusCreated, file)
	}
}

func (c TaskController) ListTaskFiles(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		task, ok := routeTask(w, r, db)
		if !ok {
			return
		}
		if !permissions.CanViewTask(currentUser(r), task) {
			forbidden(w, "You do not have permission to view this task.")
			return
		}
		files, err := store.ListTaskFiles(r.Context(), db, task.ID)
		if err != nil {
			serverError(w, "TASK_FILES_LOOKUP_FAILED", err)
			return
		}
		for i := range files {
			files[i].URL = c.fileURL(files[i].File)
		}
		if files == nil {
			files = []models.TaskFile{}
		}
		utils.ResponseJSON(w, map[string]interface{}{"files": files})
	}
}
