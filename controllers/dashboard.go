package controllers

import (
	"database/sql"
	"net/http"
	"time"

	"task-manager/models"
	"task-manager/store"
	"task-manager/utils"
)

type DashboardController struct {
	*App
}

func (c DashboardController) Home() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		utils.ResponseJSON(w, map[string]interface{}{
			"name":  "task-manager",
			"roles": models.Roles,
			"links": map[string]string{
				"register": "/register",
				"login":    "/login",
			},
		})
	}
}

func (c DashboardController) Health(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			utils.RespondWithError(w, http.StatusServiceUnavailable, models.Error{Message: "database unavailable", Code: "unavailable"})
			return
		}
		utils.ResponseJSON(w, map[string]string{"status": "ok"})
	}
}

// statusCounts runs CountTasks for base and each status.
func statusCounts(r *http.Request, db *sql.DB, base store.TaskFilter) (map[models.TaskStatus]int, int, error) {
	total, err := store.CountTasks(r.Context(), db, base)
	if err != nil {
		return nil, 0, err
	}
	counts := map[models.TaskStatus]int{}
	for _, s := range models.TaskStatuses {
		f := base
		f.Status = s
		if counts[s], err = store.CountTasks(r.Context(), db, f); err != nil {
			return nil, 0, err
		}
	}
	return counts, total, nil
}

func (c DashboardController) TeacherDashboard(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r)
		students, err := store.ListUsersByRole(r.Context(), db, models.RoleStudent)
		if err != nil {
			serverError(w, "TEACHER_DASHBOARD_FAILED", err)
			return
		}
		own := store.TaskFilter{CreatedBy: user.ID}
		tasks, err := store.ListTasks(r.Context(), db, own)
		if err != nil {
			serverError(w, "TEACHER_DASHBOARD_FAILED", err)
			return
		}
		counts, total, err := statusCounts(r, db, own)
		if err != nil {
			serverError(w, "TEACHER_DASHBOARD_FAILED", err)
			return
		}
		dueToday, err := store.ListTasks(r.Context(), db, store.TaskFilter{CreatedBy: user.ID, DueOn: c.today()})
		if err != nil {
			serverError(w, "TEACHER_DASHBOARD_FAILED", err)
			return
		}

		progress := 0
		if total > 0 {
			progress = int(float64(counts[models.StatusCompleted])/float64(total)*100 + 0.5)
		}
		students = userList(students)
		utils.ResponseJSON(w, map[string]interface{}{
			"teacher":  user.Summary(),
			"students": students,
			"tasks":    TaskController{c.App}.withURLs(tasks),
			"stats": map[string]int{
				"total_tasks":    total,
				"completed":      counts[models.StatusCompleted],
				"pending":        counts[models.StatusPending],
				"in_progress":    counts[models.StatusInProgress],
				"progress":       progress,
				"total_students": len(students),
			},
			"tasks_due_today": TaskController{c.App}.withURLs(dueToday),
		})
	}
}

func (c DashboardController) StudentDashboard(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := currentUser(r)
		mine := store.TaskFilter{AssignedTo: user.ID}
		tasks, err := store.ListTasks(r.Context(), db, mine)
		if err != nil {
			serverError(w, "STUDENT_DASHBOARD_FAILED", err)
			return
		}
		counts, total, err := statusCounts(r, db, mine)
		if err != nil {
			serverError(w, "STUDENT_DASHBOARD_FAILED", err)
			return
		}
		notes, err := NotesController{c.App}.notes(r, db)
		if err != nil {
			serverError(w, "STUDENT_DASHBOARD_FAILED", err)
			return
		}
		utils.ResponseJSON(w, map[string]interface{}{
			"tasks":             TaskController{c.App}.withURLs(tasks),
			"assigned_count":    total,
			"in_progress_count": counts[models.StatusInProgress],
			"completed_count":   counts[models.StatusCompleted],
			"pending_count":     counts[models.StatusPending],
			"total_count":       total,
			"notes":             notes,
		})
	}
}

func (c DashboardController) AdminDashboard(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		loc := c.location()
		today, _ := time.ParseInLocation(models.DateLayout, c.today(), loc)
		weekAgo := today.AddDate(0, 0, -7)

		stats := map[string]int{}
		var err error
		load := func(key string, fn func() (int, error)) {
			if err != nil {
				return
			}
			stats[key], err = fn()
		}
		load("total_users", func() (int, error) { return store.CountUsers(ctx, db) })
		load("total_tasks", func() (int, error) { return store.CountTasks(ctx, db, store.TaskFilter{}) })
		load("completed_tasks", func() (int, error) {
			return store.CountTasks(ctx, db, store.TaskFilter{Status: models.StatusCompleted})
		})
		load("pending_tasks", func() (int, error) {
			return store.CountTasks(ctx, db, store.TaskFilter{Status: models.StatusPending})
		})
		load("in_progress_tasks", func() (int, error) {
			return store.CountTasks(ctx, db, store.TaskFilter{Status: models.StatusInProgress})
		})
		load("total_teachers", func() (int, error) { return store.CountUsersByRole(ctx, db, models.RoleTeacher) })
		load("total_students", func() (int, error) { return store.CountUsersByRole(ctx, db, models.RoleStudent) })
		load("new_tasks_this_week", func() (int, error) {
			return store.CountTasks(ctx, db, store.TaskFilter{CreatedSince: weekAgo})
		})
		if err != nil {
			serverError(w, "ADMIN_DASHBOARD_FAILED", err)
			return
		}

		utils.ResponseJSON(w, map[string]interface{}{
			"stats":    stats,
			"today":    today.Format(models.DateLayout),
			"week_ago": weekAgo.Format(models.DateLayout),
		})
	}
}
