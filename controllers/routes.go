package controllers

import (
	"database/sql"
	"net/http"

	"github.com/gorilla/mux"

	"task-manager/middleware"
	"task-manager/models"
	"task-manager/permissions"
	"task-manager/ratelimit"
)

type guard = func(http.Handler) http.Handler

// NewRouter wires every endpoint of the application onto a mux router.
func NewRouter(app *App, db *sql.DB) *mux.Router {
	authController := AuthController{app}
	dashboardController := DashboardController{app}
	taskController := TaskController{app}
	notesController := NotesController{app}
	adminController := AdminController{app}
	reportController := ReportController{app}

	auth := &middleware.Authenticator{DB: db, Secret: app.Secret}
	limit := func(name string, rule ratelimit.Rule, h http.Handler) http.Handler {
		return ratelimit.Middleware(app.Limiter, name, rule, app.Config.TrustProxy)(h)
	}
	// protect requires a session, then applies guards in order.
	protect := func(h http.Handler, guards ...guard) http.Handler {
		for i := len(guards) - 1; i >= 0; i-- {
			h = guards[i](h)
		}
		return auth.Required(h)
	}
	teacher := middleware.RequireRole(models.RoleTeacher)
	admin := middleware.RequireAdmin()
	staff := middleware.RequireStaff()
	perm := middleware.RequirePerm

	router := mux.NewRouter()
	router.Use(middleware.RequestLogger)

	router.Handle("/", limit("home", ratelimit.HomeRule, dashboardController.Home())).Methods("GET")
	router.HandleFunc("/healthz", dashboardController.Health(db)).Methods("GET")

	router.HandleFunc("/register", authController.Register(db)).Methods("POST")
	router.HandleFunc("/register/verify-otp", authController.VerifyRegistrationOTP(db)).Methods("POST")
	router.Handle("/login", limit("login", ratelimit.LoginRule, authController.Login(db))).Methods("POST")
	router.Handle("/verify-otp", limit("verify_otp", ratelimit.VerifyOTPRule, authController.VerifyOTP(db))).Methods("POST")
	router.Handle("/resend-otp", limit("resend_otp", ratelimit.ResendRule, authController.ResendOTP(db))).Methods("POST")
	router.Handle("/logout", limit("logout", ratelimit.LogoutRule, authController.Logout())).Methods("POST")
	router.HandleFunc("/password-reset", authController.PasswordReset(db)).Methods("POST")
	router.HandleFunc("/password-reset/confirm", authController.PasswordResetConfirm(db)).Methods("POST")

	router.Handle("/teacher_dashboard", protect(dashboardController.TeacherDashboard(db), teacher)).Methods("GET")
	router.Handle("/student_dashboard", protect(dashboardController.StudentDashboard(db))).Methods("GET")
	router.Handle("/admin_dashboard", protect(dashboardController.AdminDashboard(db), staff)).Methods("GET")

	router.Handle("/create-task", protect(taskController.CreateTask(db), teacher)).Methods("POST")
	router.Handle("/assign_task", protect(taskController.AssignTask(db), teacher)).Methods("POST")
	router.Handle("/ajax/create-task", protect(taskController.CreateTaskAjax(db), teacher)).Methods("POST")
	router.Handle("/ajax/assign-task", protect(taskController.AssignTaskAjax(db), teacher)).Methods("POST")
	router.Handle("/update-task/{id:[0-9]+}", protect(taskController.UpdateTask(db))).Methods("POST", "PUT")
	router.Handle("/update-task-status/{id:[0-9]+}", protect(taskController.UpdateTaskStatus(db))).Methods("POST")
	router.Handle("/student/update-status", protect(taskController.StudentUpdateStatus(db))).Methods("POST")
	router.Handle("/delete-task/{id:[0-9]+}", protect(taskController.DeleteTask(db))).Methods("POST", "DELETE")
	router.Handle("/tasks/{id:[0-9]+}", protect(taskController.GetTask(db))).Methods("GET")
	router.Handle("/tasks/{id:[0-9]+}/files", protect(taskController.AddTaskFile(db))).Methods("POST")
	router.Handle("/tasks/{id:[0-9]+}/files", protect(taskController.ListTaskFiles(db))).Methods("GET")
	router.Handle("/teacher/tasks", protect(taskController.TeacherTasks(db, ""))).Methods("GET")
	router.Handle("/teacher/completed", protect(taskController.TeacherTasks(db, models.StatusCompleted))).Methods("GET")
	router.Handle("/teacher/pending", protect(taskController.TeacherTasks(db, models.StatusPending))).Methods("GET")

	router.Handle("/upload_notes", protect(notesController.UploadNotes(db), teacher)).Methods("POST")
	router.Handle("/notes", protect(notesController.ListNotes(db))).Methods("GET")

	router.Handle("/generate-task-report", protect(reportController.GenerateTaskReport(db), staff)).Methods("POST")

	router.Handle("/admin-panel/students", protect(adminController.UsersByRole(db, models.RoleStudent, "students"), admin)).Methods("GET")
	router.Handle("/admin-panel/teachers", protect(adminController.UsersByRole(db, models.RoleTeacher, "teachers"), admin)).Methods("GET")
	router.Handle("/admin-panel/users", protect(adminController.AllUsers(db), admin)).Methods("GET")
	router.Handle("/list-teachers", protect(adminController.UsersByRole(db, models.RoleTeacher, "teachers"), admin)).Methods("GET")
	router.Handle("/students", protect(adminController.UsersByRole(db, models.RoleStudent, "students"))).Methods("GET")
	router.Handle("/teachers", protect(adminController.UsersByRole(db, models.RoleTeacher, "teachers"))).Methods("GET")
	router.Handle("/edit-student/{id:[0-9]+}", protect(adminController.EditStudent(db), admin)).Methods("POST")
	router.Handle("/delete-student/{id:[0-9]+}", protect(adminController.DeleteStudent(db), admin)).Methods("POST", "DELETE")

	router.Handle("/admin/manage-users", protect(adminController.ManageUsers(db), staff, perm(permissions.AddCustomUser))).Methods("GET")
	router.Handle("/admin/manage-roles", protect(adminController.ManageRoles(db), staff, perm(permissions.ChangeCustomUser))).Methods("GET")
	router.Handle("/admin/all-tasks", protect(adminController.AllTasks(db), staff, perm(permissions.ViewTask))).Methods("GET")
	router.Handle("/admin/list-students", protect(adminController.UsersByRole(db, models.RoleStudent, "students"), staff)).Methods("GET")
	router.Handle("/admin/list-teachers", protect(adminController.UsersByRole(db, models.RoleTeacher, "teachers"), staff)).Methods("GET")
	router.Handle("/admin/bulk-role-change", protect(adminController.BulkRoleChange(db), staff, perm(permissions.ChangeCustomUser))).Methods("POST")
	router.Handle("/admin/groups", protect(adminController.ListGroups(db), staff, perm(permissions.ViewCustomUser))).Methods("GET")
	router.Handle("/admin/groups/{name}/add", protect(adminController.GroupMembership(db, true), staff, perm(permissions.ChangeCustomUser))).Methods("POST")
	router.Handle("/admin/groups/{name}/remove", protect(adminController.GroupMembership(db, false), staff, perm(permissions.ChangeCustomUser))).Methods("POST")

	return router
}
