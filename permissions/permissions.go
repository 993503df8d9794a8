// Package permissions holds the role group policy and the object level checks
// for tasks.
package permissions

import (
	"context"
	"database/sql"
	"sort"

	"task-manager/logging"
	"task-manager/models"
	"task-manager/store"
)

const (
	AddTask          = "add_task"
	ChangeTask       = "change_task"
	DeleteTask       = "delete_task"
	ViewTask         = "view_task"
	AddCustomUser    = "add_customuser"
	ChangeCustomUser = "change_customuser"
	DeleteCustomUser = "delete_customuser"
	ViewCustomUser   = "view_customuser"
	ManageUsers      = "manage_users"
	AssignRoles      = "assign_roles"
	ViewAllTasks     = "view_all_tasks"
)

// Catalog lists every permission the application knows about.
func Catalog() []models.Permission {
	return []models.Permission{
		{Codename: AddTask, Name: "Can add task", ContentType: models.ContentTypeTask},
		{Codename: ChangeTask, Name: "Can change task", ContentType: models.ContentTypeTask},
		{Codename: DeleteTask, Name: "Can delete task", ContentType: models.ContentTypeTask},
		{Codename: ViewTask, Name: "Can view task", ContentType: models.ContentTypeTask},
		{Codename: AddCustomUser, Name: "Can add user", ContentType: models.ContentTypeUser},
		{Codename: ChangeCustomUser, Name: "Can change user", ContentType: models.ContentTypeUser},
		{Codename: DeleteCustomUser, Name: "Can delete user", ContentType: models.ContentTypeUser},
		{Codename: ViewCustomUser, Name: "Can view user", ContentType: models.ContentTypeUser},
		{Codename: ManageUsers, Name: "Can manage users", ContentType: models.ContentTypeUser},
		{Codename: AssignRoles, Name: "Can assign roles", ContentType: models.ContentTypeUser},
		{Codename: ViewAllTasks, Name: "Can view all tasks", ContentType: models.ContentTypeUser},
	}
}

// DefaultGroups is the permission set of each role group. Teachers may edit
// tasks but never hold delete_task; deletion goes through CanDeleteTask.
func DefaultGroups() map[string][]string {
	all := make([]string, 0, len(Catalog()))
	for _, p := range Catalog() {
		all = append(all, p.Codename)
	}
	groups := map[string][]string{
		models.RoleAdmin:   all,
		models.RoleTeacher: {AddTask, ChangeTask, ViewTask, ViewAllTasks},
		models.RoleStudent: {ViewTask},
	}
	for _, perms := range groups {
		sort.Strings(perms)
	}
	return groups
}

// SyncResult describes what SyncGroups changed.
type SyncResult struct {
	Created []string
	Updated []string
	// Joined counts users added to the group of their role.
	Joined int
}

// SyncGroups makes the role groups match DefaultGroups exactly. It is safe to
// run any number of times and leaves the same state as the group data
// migration.
func SyncGroups(ctx context.Context, db *sql.DB) (SyncResult, error) {
	var result SyncResult
	err := store.WithTx(ctx, db, func(tx *sql.Tx) error {
		ids := map[string]int{}
		for _, p := range Catalog() {
			id, err := store.EnsurePermission(ctx, tx, p)
			if err != nil {
				return err
			}
			ids[p.Codename] = id
		}

		for _, role := range models.Roles {
			groupID, created, err := store.GetOrCreateGroup(ctx, tx, role)
			if err != nil {
				return err
			}
			perms := DefaultGroups()[role]
			permIDs := make([]int, 0, len(perms))
			for _, c := range perms {
				permIDs = append(permIDs, ids[c])
			}
			if err := store.SetGroupPermissions(ctx, tx, groupID, permIDs); err != nil {
				return err
			}
			if created {
				result.Created = append(result.Created, role)
			} else {
				result.Updated = append(result.Updated, role)
			}
		}
		joined, err := store.JoinRoleGroups(ctx, tx)
		result.Joined = joined
		return err
	})
	if err != nil {
		return SyncResult{}, err
	}
	logging.Logger.Infof("Event ID: GROUPS_SYNCED, Description: created %v, updated %v, %d user(s) joined", result.Created, result.Updated, result.Joined)
	return result, nil
}

// HasPerm reports whether u holds codename through its loaded group
// permissions. Superusers hold everything; inactive users hold nothing.
func HasPerm(u models.User, codename string) bool {
	if !u.IsActive {
		return false
	}
	if u.IsSuperuser {
		return true
	}
	for _, p := range u.Permissions {
		if p == codename {
			return true
		}
	}
	return false
}

func isAdmin(u models.User) bool {
	return u.IsAdmin() || u.IsSuperuser
}

// CanDeleteTask allows only the creator of t or an admin.
func CanDeleteTask(u models.User, t models.Task) bool {
	return u.IsActive && (t.CreatedByID == u.ID || isAdmin(u))
}

func CanEditTask(u models.User, t models.Task) bool {
	return u.IsActive && (t.CreatedByID == u.ID || isAdmin(u))
}

// CanUpdateStatus allows the assignee of t or an admin.
func CanUpdateStatus(u models.User, t models.Task) bool {
	return u.IsActive && (t.IsAssignedTo(u.ID) || isAdmin(u))
}

// CanViewTask allows the creator, the assignee and anyone who sees all tasks.
func CanViewTask(u models.User, t models.Task) bool {
	if !u.IsActive {
		return false
	}
	return t.CreatedByID == u.ID || t.IsAssignedTo(u.ID) || u.CanViewAllTasks() || HasPerm(u, ViewAllTasks)
}
