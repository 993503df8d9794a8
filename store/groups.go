package store

import (
	"context"
	"database/sql"
	"sort"

	"github.com/pkg/errors"

	"task-manager/models"
)

func GetGroupByName(ctx context.Context, q Querier, name string) (models.Group, error) {
	var g models.Group
	err := q.QueryRowContext(ctx, "SELECT id, name FROM auth_groups WHERE name = ?", name).Scan(&g.ID, &g.Name)
	if err == sql.ErrNoRows {
		return g, ErrNotFound
	}
	if err != nil {
		return g, errors.Wrap(err, "get group")
	}
	g.Permissions, err = GroupPermissions(ctx, q, g.ID)
	return g, err
}

// GetOrCreateGroup returns the id of the named group, creating it when missing.
func GetOrCreateGroup(ctx context.Context, q Querier, name string) (id int, created bool, err error) {
	err = q.QueryRowContext(ctx, "SELECT id FROM auth_groups WHERE name = ?", name).Scan(&id)
	if err == nil {
		return id, false, nil
	}
	if err != sql.ErrNoRows {
		return 0, false, errors.Wrap(err, "find group")
	}
	res, err := q.ExecContext(ctx, "INSERT INTO auth_groups (name) VALUES (?)", name)
	if err != nil {
		return 0, false, errors.Wrap(err, "create group")
	}
	lastID, err := res.LastInsertId()
	return int(lastID), true, errors.Wrap(err, "group id")
}

// ListGroups returns every group with its permission codenames.
func ListGroups(ctx context.Context, q Querier) ([]models.Group, error) {
	rows, err := q.QueryContext(ctx, "SELECT id, name FROM auth_groups ORDER BY name")
	if err != nil {
		return nil, errors.Wrap(err, "query groups")
	}
	groups := []models.Group{}
	for rows.Next() {
		var g models.Group
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan group")
		}
		groups = append(groups, g)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate groups")
	}

	for i := range groups {
		if groups[i].Permissions, err = GroupPermissions(ctx, q, groups[i].ID); err != nil {
			return nil, err
		}
	}
	return groups, nil
}

func GroupPermissions(ctx context.Context, q Querier, groupID int) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT p.codename FROM auth_permissions p
		JOIN auth_group_permissions gp ON gp.permission_id = p.id
		WHERE gp.group_id = ?`, groupID)
	if err != nil {
		return nil, errors.Wrap(err, "query group permissions")
	}
	defer rows.Close()

	perms := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, errors.Wrap(err, "scan group permission")
		}
		perms = append(perms, c)
	}
	sort.Strings(perms)
	return perms, errors.Wrap(rows.Err(), "iterate group permissions")
}

// EnsurePermission inserts p when its codename is unknown and returns its id.
func EnsurePermission(ctx context.Context, q Querier, p models.Permission) (int, error) {
	var id int
	err := q.QueryRowContext(ctx, "SELECT id FROM auth_permissions WHERE codename = ?", p.Codename).Scan(&id)
	if err == nil {
		_, err = q.ExecContext(ctx, "UPDATE auth_permissions SET name = ?, content_type = ? WHERE id = ?", p.Name, p.ContentType, id)
		return id, errors.Wrapf(err, "update permission %s", p.Codename)
	}
	if err != sql.ErrNoRows {
		return 0, errors.Wrap(err, "find permission")
	}
	res, err := q.ExecContext(ctx, "INSERT INTO auth_permissions (codename, name, content_type) VALUES (?, ?, ?)",
		p.Codename, p.Name, p.ContentType)
	if err != nil {
		return 0, errors.Wrapf(err, "create permission %s", p.Codename)
	}
	lastID, err := res.LastInsertId()
	return int(lastID), errors.Wrap(err, "permission id")
}

// SetGroupPermissions replaces the permissions of a group with permissionIDs.
func SetGroupPermissions(ctx context.Context, q Querier, groupID int, permissionIDs []int) error {
	if _, err := q.ExecContext(ctx, "DELETE FROM auth_group_permissions WHERE group_id = ?", groupID); err != nil {
		return errors.Wrap(err, "clear group permissions")
	}
	for _, pid := range permissionIDs {
		if _, err := q.ExecContext(ctx, "INSERT INTO auth_group_permissions (group_id, permission_id) VALUES (?, ?)",
			groupID, pid); err != nil {
			return errors.Wrap(err, "add group permission")
		}
	}
	return nil
}

// AddUsersToGroup adds existing users to the named group, skipping members.
// It returns how many memberships were created.
func AddUsersToGroup(ctx context.Context, q Querier, groupName string, userIDs []int) (int, error) {
	g, err := GetGroupByName(ctx, q, groupName)
	if err != nil {
		return 0, err
	}
	added := 0
	for _, uid := range userIDs {
		member, err := exists(ctx, q, "SELECT COUNT(*) FROM user_groups WHERE user_id = ? AND group_id = ?", uid, g.ID)
		if err != nil {
			return added, err
		}
		if member {
			continue
		}
		known, err := exists(ctx, q, "SELECT COUNT(*) FROM users WHERE id = ?", uid)
		if err != nil {
			return added, err
		}
		if !known {
			continue
		}
		if _, err := q.ExecContext(ctx, "INSERT INTO user_groups (user_id, group_id) VALUES (?, ?)", uid, g.ID); err != nil {
			return added, errors.Wrap(err, "add user to group")
		}
		added++
	}
	return added, nil
}

func RemoveUsersFromGroup(ctx context.Context, q Querier, groupName string, userIDs []int) (int, error) {
	if len(userIDs) == 0 {
		return 0, nil
	}
	g, err := GetGroupByName(ctx, q, groupName)
	if err != nil {
		return 0, err
	}
	res, err := q.ExecContext(ctx, "DELETE FROM user_groups WHERE group_id = ? AND user_id IN ("+placeholders(len(userIDs))+")",
		append([]interface{}{g.ID}, intArgs(userIDs)...)...)
	if err != nil {
		return 0, errors.Wrap(err, "remove users from group")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "remove users rows affected")
	}
	return int(n), nil
}

// JoinRoleGroups adds every user missing from the group named after their
// role. It returns how many memberships were added.
func JoinRoleGroups(ctx context.Context, q Querier) (int, error) {
	res, err := q.ExecContext(ctx, `INSERT INTO user_groups (user_id, group_id)
		SELECT u.id, g.id FROM users u JOIN auth_groups g ON g.name = u.role
		WHERE NOT EXISTS (SELECT 1 FROM user_groups ug WHERE ug.user_id = u.id AND ug.group_id = g.id)`)
	if err != nil {
		return 0, errors.Wrap(err, "join role groups")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "join role groups rows affected")
	}
	return int(n), nil
}

// SyncUserRoleGroup leaves userID in exactly the role group named role.
// Memberships of non-role groups are kept.
func SyncUserRoleGroup(ctx context.Context, q Querier, userID int, role string) error {
	args := []interface{}{userID}
	for _, r := range models.Roles {
		args = append(args, r)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM user_groups WHERE user_id = ? AND group_id IN
		(SELECT id FROM auth_groups WHERE name IN (`+placeholders(len(models.Roles))+`))`, args...); err != nil {
		return errors.Wrap(err, "clear role groups")
	}
	_, err := AddUsersToGroup(ctx, q, role, []int{userID})
	return err
}

// GroupMembers returns the ids of users in the named group.
func GroupMembers(ctx context.Context, q Querier, groupName string) ([]int, error) {
	rows, err := q.QueryContext(ctx, `SELECT ug.user_id FROM user_groups ug
		JOIN auth_groups g ON g.id = ug.group_id WHERE g.name = ? ORDER BY ug.user_id`, groupName)
	if err != nil {
		return nil, errors.Wrap(err, "query group members")
	}
	defer rows.Close()
	ids := []int{}
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan member")
		}
		ids = append(ids, id)
	}
	return ids, errors.Wrap(rows.Err(), "iterate members")
}
