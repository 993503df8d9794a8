package models

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"task-manager/otp"
)

const (
	RoleAdmin   = "Admin"
	RoleTeacher = "Teacher"
	RoleStudent = "Student"
)

// Roles lists every assignable role in display order.
var Roles = []string{RoleAdmin, RoleTeacher, RoleStudent}

func ValidRole(role string) bool {
	for _, r := range Roles {
		if r == role {
			return true
		}
	}
	return false
}

type User struct {
	ID           int            `json:"id"`
	Username     string         `json:"username"`
	Password     string         `json:"-"`
	Email        string         `json:"email,omitempty"`
	Phone        string         `json:"phone,omitempty"`
	FirstName    string         `json:"first_name,omitempty"`
	LastName     string         `json:"last_name,omitempty"`
	Role         string         `json:"role"`
	IsSuperuser  bool           `json:"is_superuser"`
	IsStaff      bool           `json:"is_staff"`
	IsActive     bool           `json:"is_active"`
	OTP          sql.NullString `json:"-"`
	OTPCreatedAt sql.NullTime   `json:"-"`
	DateJoined   time.Time      `json:"date_joined"`
	LastLogin    *time.Time     `json:"last_login,omitempty"`

	// Loaded on demand from group membership.
	Permissions []string `json:"permissions,omitempty"`
}

func (u User) String() string {
	return fmt.Sprintf("%s (%s)", u.Username, u.Role)
}

// FullName joins first and last name, empty parts dropped.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (u User) IsAdmin() bool   { return u.Role == RoleAdmin }
func (u User) IsTeacher() bool { return u.Role == RoleTeacher }
func (u User) IsStudent() bool { return u.Role == RoleStudent }

func (u User) CanManageUsers() bool  { return u.IsAdmin() || u.IsSuperuser }
func (u User) CanAssignRoles() bool  { return u.IsAdmin() || u.IsSuperuser }
func (u User) CanViewAllTasks() bool { return u.IsAdmin() || u.IsSuperuser }

// SetOTP records a freshly issued one-time code.
func (u *User) SetOTP(code string, now time.Time) {
	u.OTP = sql.NullString{String: code, Valid: true}
	u.OTPCreatedAt = sql.NullTime{Time: now, Valid: true}
}

// VerifyOTP reports whether code matches the stored one and is still fresh.
func (u User) VerifyOTP(code string, now time.Time) bool {
	if !u.OTP.Valid || !u.OTPCreatedAt.Valid {
		return false
	}
	return otp.Verify(u.OTP.String, u.OTPCreatedAt.Time, code, now)
}

// Summary is the compact form embedded in task payloads.
func (u User) Summary() *UserSummary {
	return &UserSummary{ID: u.ID, Username: u.Username, FullName: u.FullName(), Role: u.Role}
}

type UserSummary struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name,omitempty"`
	Role     string `json:"role"`
}
