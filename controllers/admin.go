package controllers

import (
	"database/sql"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-multierror"

	"task-manager/logging"
	"task-manager/models"
	"task-manager/store"
	"task-manager/utils"
)

type AdminController struct {
	*App
}

func userList(users []models.User) []models.User {
	if users == nil {
		return []models.User{}
	}
	return users
}

// UsersByRole lists the users of role under key, ordered by name.
func (c AdminController) UsersByRole(db *sql.DB, role, key string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := store.ListUsersByRole(r.Context(), db, role)
		if err != nil {
			serverError(w, "USER_LIST_FAILED", err)
			return
		}
		utils.ResponseJSON(w, map[string]interface{}{key: userList(users)})
	}
}

func (c AdminController) AllUsers(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := store.ListUsers(r.Context(), db)
		if err != nil {
			serverError(w, "USER_LIST_FAILED", err)
			return
		}
		utils.ResponseJSON(w, map[string]interface{}{"users": userList(users)})
	}
}

func routeStudent(w http.ResponseWriter, r *http.Request, db *sql.DB) (models.User, bool) {
	id, err := pathID(r, "id")
	if err != nil {
		notFound(w, "not_found", "Student not found.")
		return models.User{}, false
	}
	u, err := student(r, db, id)
	if err == store.ErrNotFound {
		notFound(w, "not_found", "Student not found.")
		return u, false
	}
	if err != nil {
		serverError(w, "STUDENT_LOOKUP_FAILED", err)
		return u, false
	}
	return u, true
}

func (c AdminController) EditStudent(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, ok := routeStudent(w, r, db)
		if !ok {
			return
		}
		values, err := readParams(w, r)
		if err != nil {
			badRequest(w, "invalid_body", "Invalid request body.")
			return
		}

		var result *multierror.Error
		if v, ok := values["username"]; ok && len(v) > 0 {
			username := strings.TrimSpace(v[0])
			switch {
			case username == "":
				result = multierror.Append(result, utils.FieldError{Field: "username", Message: "This field is required."})
			case utf8.RuneCountInString(username) > 150 || !usernamePattern.MatchString(username):
				result = multierror.Append(result, utils.FieldError{Field: "username", Message: "Enter a valid username."})
			default:
				st.Username = username
			}
		}
		if v, ok := values["email"]; ok && len(v) > 0 {
			email := strings.TrimSpace(v[0])
			if err := utils.Validate(struct {
				Email string `json:"email" validate:"omitempty,email,max=254"`
			}{email}); err != nil {
				result = multierror.Append(result, err)
			} else {
				st.Email = email
			}
		}
		if err := result.ErrorOrNil(); err != nil {
			formError(w, "Please correct the errors below.", err)
			return
		}

		if err := store.UpdateUser(r.Context(), db, st); err == store.ErrDuplicate {
			formError(w, "Please correct the errors below.", utils.FieldError{Field: "username", Message: "A user with that username already exists."})
			return
		} else if err != nil {
			serverError(w, "STUDENT_UPDATE_FAILED", err)
			return
		}
		utils.ResponseJSON(w, map[string]interface{}{
			"success": true,
			"message": "Student details updated successfully!",
			"student": st,
		})
	}
}

func (c AdminController) DeleteStudent(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, ok := routeStudent(w, r, db)
		if !ok {
			return
		}
		if err := store.DeleteUser(r.Context(), db, st.ID); err != nil {
			serverError(w, "STUDENT_DELETE_FAILED", err)
			return
		}
		logging.Logger.Infof("Event ID: STUDENT_DELETED, Description: student %d deleted by %d", st.ID, currentUser(r).ID)
		utils.ResponseJSON(w, map[string]interface{}{"success": true, "message": "Student deleted successfully!"})
	}
}

// ManageUsers lists every user, most recently joined first.
func (c AdminController) ManageUsers(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := store.ListUsers(r.Context(), db)
		if err != nil {
			serverError(w, "USER_LIST_FAILED", err)
			return
		}
		sort.SliceStable(users, func(i, j int) bool {
			if !users[i].DateJoined.Equal(users[j].DateJoined) {
				return users[i].DateJoined.After(users[j].DateJoined)
			}
			return users[i].ID > users[j].ID
		})
		utils.ResponseJSON(w, map[string]interface{}{"title": "Manage Users", "users": userList(users)})
	}
}

// ManageRoles lists every user ordered by role, then username.
func (c AdminController) ManageRoles(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := store.ListUsers(r.Context(), db)
		if err != nil {
			serverError(w, "USER_LIST_FAILED", err)
			return
		}
		sort.SliceStable(users, func(i, j int) bool { return users[i].Role < users[j].Role })
		utils.ResponseJSON(w, map[string]interface{}{
			"title": "Manage User Roles",
			"roles": models.Roles,
			"users": userList(users),
		})
	}
}

func (c AdminController) AllTasks(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tasks, err := store.ListTasks(r.Context(), db, store.TaskFilter{})
		if err != nil {
			serverError(w, "ALL_TASKS_FAILED", err)
			return
		}
		utils.ResponseJSON(w, map[string]interface{}{
			"title": "All Tasks Overview",
			"tasks": TaskController{c.App}.withURLs(tasks),
		})
	}
}

// BulkRoleChange sets new_role on every id in user_ids and moves those users
// into the matching role group.
func (c AdminController) BulkRoleChange(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		values, err := readParams(w, r)
		if err != nil {
			badRequest(w, "invalid_body", "Invalid request body.")
			return
		}
		ids := intList(values, "user_ids")
		role := values.Get("new_role")
		if len(ids) == 0 || role == "" {
			badRequest(w, "missing_fields", "user_ids and new_role are required.")
			return
		}
		if !models.ValidRole(role) {
			formError(w, "Please correct the errors below.", utils.FieldError{Field: "new_role", Message: "Select a valid choice."})
			return
		}

		var updated int
		err = store.WithTx(r.Context(), db, func(tx *sql.Tx) error {
			var err error
			updated, err = store.SetRole(r.Context(), tx, ids, role)
			return err
		})
		if err != nil {
			serverError(w, "BULK_ROLE_CHANGE_FAILED", err)
			return
		}

		logging.Logger.Infof("Event ID: ROLES_CHANGED, Description: %d user(s) set to %s by %d", updated, role, currentUser(r).ID)
		utils.ResponseJSON(w, map[string]interface{}{
			"success": true,
			"updated": updated,
			"message": fmt.Sprintf("Successfully updated roles for %d users.", updated),
		})
	}
}

// GroupMembership adds users to (add true) or removes them from the group
// named in the route. Role groups are created on first use.
func (c AdminController) GroupMembership(db *sql.DB, add bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		values, err := readParams(w, r)
		if err != nil {
			badRequest(w, "invalid_body", "Invalid request body.")
			return
		}
		ids := intList(values, "user_ids")
		if len(ids) == 0 {
			badRequest(w, "missing_fields", "Select at least one user.")
			return
		}

		var changed int
		err = store.WithTx(r.Context(), db, func(tx *sql.Tx) error {
			var err error
			if add {
				if models.ValidRole(name) {
					if _, _, err = store.GetOrCreateGroup(r.Context(), tx, name); err != nil {
						return err
					}
				}
				changed, err = store.AddUsersToGroup(r.Context(), tx, name, ids)
				return err
			}
			changed, err = store.RemoveUsersFromGroup(r.Context(), tx, name, ids)
			return err
		})
		if err == store.ErrNotFound {
			notFound(w, "not_found", fmt.Sprintf("%s group does not exist.", name))
			return
		}
		if err != nil {
			serverError(w, "GROUP_MEMBERSHIP_FAILED", err)
			return
		}

		message := fmt.Sprintf("Removed %d user(s) from %s group.", changed, name)
		if add {
			message = fmt.Sprintf("Added %d user(s) to %s group.", changed, name)
		}
		utils.ResponseJSON(w, map[string]interface{}{"success": true, "changed": changed, "message": message})
	}
}

func (c AdminController) ListGroups(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groups, err := store.ListGroups(r.Context(), db)
		if err != nil {
			serverError(w, "GROUP_LIST_FAILED", err)
			return
		}
		utils.ResponseJSON(w, map[string]interface{}{"groups": groups})
	}
}
