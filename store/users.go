package store

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/pkg/errors"

	"task-manager/models"
	"task-manager/utils"
)

const userColumns = `id, username, password, email, phone, first_name, last_name, role,
	is_superuser, is_staff, is_active, otp, otp_created_at, date_joined, last_login`

func scanUser(s scanner) (models.User, error) {
	var u models.User
	var lastLogin sql.NullTime
	err := s.Scan(&u.ID, &u.Username, &u.Password, &u.Email, &u.Phone, &u.FirstName, &u.LastName, &u.Role,
		&u.IsSuperuser, &u.IsStaff, &u.IsActive, &u.OTP, &u.OTPCreatedAt, &u.DateJoined, &lastLogin)
	if err != nil {
		return u, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}
	return u, nil
}

func queryUsers(ctx context.Context, q Querier, query string, args ...interface{}) ([]models.User, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query users")
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan user")
		}
		users = append(users, u)
	}
	return users, errors.Wrap(rows.Err(), "iterate users")
}

func getUser(ctx context.Context, q Querier, where string, arg interface{}) (models.User, error) {
	row := q.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE "+where+" ORDER BY id LIMIT 1", arg)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, errors.Wrap(err, "get user")
}

// InsertUser stores u with u.Password already hashed and sets u.ID.
func InsertUser(ctx context.Context, q Querier, u *models.User) error {
	if u.Role == "" {
		u.Role = models.RoleStudent
	}
	if u.DateJoined.IsZero() {
		u.DateJoined = now()
	}
	res, err := q.ExecContext(ctx, `INSERT INTO users
		(username, password, email, phone, first_name, last_name, role, is_superuser, is_staff, is_active, date_joined)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.Username, u.Password, u.Email, u.Phone, u.FirstName, u.LastName, u.Role,
		u.IsSuperuser, u.IsStaff, u.IsActive, u.DateJoined)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return errors.Wrap(err, "insert user")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return errors.Wrap(err, "user id")
	}
	u.ID = int(id)
	return nil
}

// CreateUser hashes password and inserts the user.
func CreateUser(ctx context.Context, q Querier, u *models.User, password string) error {
	hash, err := utils.HashPassword(password)
	if err != nil {
		return errors.Wrap(err, "hash password")
	}
	u.Password = hash
	return InsertUser(ctx, q, u)
}

func GetUserByID(ctx context.Context, q Querier, id int) (models.User, error) {
	return getUser(ctx, q, "id = ?", id)
}

func GetUserByUsername(ctx context.Context, q Querier, username string) (models.User, error) {
	return getUser(ctx, q, "username = ?", username)
}

func GetUserByEmail(ctx context.Context, q Querier, email string) (models.User, error) {
	return getUser(ctx, q, "LOWER(email) = LOWER(?)", email)
}

func UsernameTaken(ctx context.Context, q Querier, username string) (bool, error) {
	return exists(ctx, q, "SELECT COUNT(*) FROM users WHERE username = ?", username)
}

func EmailTaken(ctx context.Context, q Querier, email string) (bool, error) {
	return exists(ctx, q, "SELECT COUNT(*) FROM users WHERE LOWER(email) = LOWER(?)", email)
}

func exists(ctx context.Context, q Querier, query string, args ...interface{}) (bool, error) {
	var n int
	if err := q.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return false, errors.Wrap(err, "exists")
	}
	return n > 0, nil
}

// ListUsersByRole returns users of role ordered by first then last name.
func ListUsersByRole(ctx context.Context, q Querier, role string) ([]models.User, error) {
	return queryUsers(ctx, q, "SELECT "+userColumns+" FROM users WHERE role = ? ORDER BY first_name, last_name, id", role)
}

func ListUsers(ctx context.Context, q Querier) ([]models.User, error) {
	return queryUsers(ctx, q, "SELECT "+userColumns+" FROM users ORDER BY username")
}

func CountUsers(ctx context.Context, q Querier) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&n)
	return n, errors.Wrap(err, "count users")
}

func CountUsersByRole(ctx context.Context, q Querier, role string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE role = ?", role).Scan(&n)
	return n, errors.Wrap(err, "count users by role")
}

// UpdateUser saves the editable profile fields of u.
func UpdateUser(ctx context.Context, q Querier, u models.User) error {
	res, err := q.ExecContext(ctx, `UPDATE users SET username = ?, email = ?, phone = ?, first_name = ?, last_name = ?,
		is_active = ?, is_staff = ? WHERE id = ?`,
		u.Username, u.Email, u.Phone, u.FirstName, u.LastName, u.IsActive, u.IsStaff, u.ID)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicate
		}
		return errors.Wrap(err, "update user")
	}
	return expectRow(res)
}

func DeleteUser(ctx context.Context, q Querier, id int) error {
	res, err := q.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "delete user")
	}
	return expectRow(res)
}

// SetRole changes the role of every listed user and moves them into the
// matching role group. It returns how many users were updated.
func SetRole(ctx context.Context, q Querier, ids []int, role string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := q.ExecContext(ctx, "UPDATE users SET role = ? WHERE id IN ("+placeholders(len(ids))+")",
		append([]interface{}{role}, intArgs(ids)...)...)
	if err != nil {
		return 0, errors.Wrap(err, "set role")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "set role rows affected")
	}
	for _, id := range ids {
		if err := SyncUserRoleGroup(ctx, q, id, role); err != nil && err != ErrNotFound {
			return 0, err
		}
	}
	return int(n), nil
}

func SetUserOTP(ctx context.Context, q Querier, id int, code string, at time.Time) error {
	res, err := q.ExecContext(ctx, "UPDATE users SET otp = ?, otp_created_at = ? WHERE id = ?", code, at.UTC(), id)
	if err != nil {
		return errors.Wrap(err, "set otp")
	}
	return expectRow(res)
}

func ClearUserOTP(ctx context.Context, q Querier, id int) error {
	_, err := q.ExecContext(ctx, "UPDATE users SET otp = NULL, otp_created_at = NULL WHERE id = ?", id)
	return errors.Wrap(err, "clear otp")
}

// SetPassword stores an already hashed password.
func SetPassword(ctx context.Context, q Querier, id int, hash string) error {
	res, err := q.ExecContext(ctx, "UPDATE users SET password = ? WHERE id = ?", hash, id)
	if err != nil {
		return errors.Wrap(err, "set password")
	}
	return expectRow(res)
}

func TouchLastLogin(ctx context.Context, q Querier, id int, at time.Time) error {
	_, err := q.ExecContext(ctx, "UPDATE users SET last_login = ? WHERE id = ?", at.UTC(), id)
	return errors.Wrap(err, "touch last login")
}

// UserPermissions returns the sorted codenames granted through the user's groups.
func UserPermissions(ctx context.Context, q Querier, userID int) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT DISTINCT p.codename FROM auth_permissions p
		JOIN auth_group_permissions gp ON gp.permission_id = p.id
		JOIN user_groups ug ON ug.group_id = gp.group_id
		WHERE ug.user_id = ?`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "query user permissions")
	}
	defer rows.Close()

	perms := []string{}
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, errors.Wrap(err, "scan permission")
		}
		perms = append(perms, c)
	}
	sort.Strings(perms)
	return perms, errors.Wrap(rows.Err(), "iterate permissions")
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
