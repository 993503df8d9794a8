package store_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"task-manager/migrations/migratetest"
	"task-manager/models"
	"task-manager/store"
)

func newUser(t *testing.T, db *sql.DB, username, role string) models.User {
	t.Helper()
	u := models.User{Username: username, Email: username + "@example.com", FirstName: username, LastName: "Tester", Role: role, IsActive: true}
	if err := store.CreateUser(context.Background(), db, &u, "Secr3t-pass"); err != nil {
		t.Fatalf("create %s: %v", username, err)
	}
	if err := store.SyncUserRoleGroup(context.Background(), db, u.ID, role); err != nil {
		t.Fatalf("group %s: %v", username, err)
	}
	return u
}

func TestUsers_CreateAndLookup(t *testing.T) {
	db, _ := migratetest.NewDB(t)
	ctx := context.Background()
	u := newUser(t, db, "alice", models.RoleTeacher)

	got, err := store.GetUserByUsername(ctx, db, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != u.ID || got.Role != models.RoleTeacher || !got.IsActive {
		t.Fatalf("got %+v", got)
	}
	if got.Password == "Secr3t-pass" {
		t.Fatal("password stored in clear text")
	}
	if _, err := store.GetUserByEmail(ctx, db, "ALICE@example.com"); err != nil {
		t.Fatalf("email lookup is case sensitive: %v", err)
	}
	if _, err := store.GetUserByID(ctx, db, 9999); err != store.ErrNotFound {
		t.Fatalf("missing user err = %v", err)
	}

	dup := models.User{Username: "alice"}
	if err := store.CreateUser(ctx, db, &dup, "x"); err != store.ErrDuplicate {
		t.Fatalf("duplicate username err = %v", err)
	}
	taken, _ := store.EmailTaken(ctx, db, "alice@example.com")
	if !taken {
		t.Fatal("email should be taken")
	}
}

func TestUsers_ListByRoleOrdered(t *testing.T) {
	db, _ := migratetest.NewDB(t)
	ctx := context.Background()
	for _, name := range []string{"zoe", "adam", "mia"} {
		newUser(t, db, name, models.RoleStudent)
	}
	newUser(t, db, "teach", models.RoleTeacher)

	students, err := store.ListUsersByRole(ctx, db, models.RoleStudent)
	if err != nil {
		t.Fatal(err)
	}
	if len(students) != 3 || students[0].Username != "adam" || students[2].Username != "zoe" {
		t.Fatalf("unexpected order: %v", students)
	}
	if n, _ := store.CountUsersByRole(ctx, db, models.RoleTeacher); n != 1 {
		t.Fatalf("teachers = %d", n)
	}
}

func TestUsers_SetRoleMovesGroup(t *testing.T) {
	db, _ := migratetest.NewDB(t)
	ctx := context.Background()
	u := newUser(t, db, "bob", models.RoleStudent)

	perms, _ := store.UserPermissions(ctx, db, u.ID)
	if len(perms) != 1 || perms[0] != "view_task" {
		t.Fatalf("student perms = %v", perms)
	}

	n, err := store.SetRole(ctx, db, []int{u.ID}, models.RoleTeacher)
	if err != nil || n != 1 {
		t.Fatalf("set role: n=%d err=%v", n, err)
	}
	perms, _ = store.UserPermissions(ctx, db, u.ID)
	want := []string{"add_task", "change_task", "view_all_tasks", "view_task"}
	if len(perms) != len(want) {
		t.Fatalf("teacher perms = %v", perms)
	}
	for i := range want {
		if perms[i] != want[i] {
			t.Fatalf("teacher perms = %v", perms)
		}
	}
	students, _ := store.GroupMembers(ctx, db, models.RoleStudent)
	if len(students) != 0 {
		t.Fatalf("still in Student group: %v", students)
	}
}

func TestUsers_OTPAndPassword(t *testing.T) {
	db, _ := migratetest.NewDB(t)
	ctx := context.Background()
	u := newUser(t, db, "carl", models.RoleStudent)
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	if err := store.SetUserOTP(ctx, db, u.ID, "123456", at); err != nil {
		t.Fatal(err)
	}
	got, _ := store.GetUserByID(ctx, db, u.ID)
	if !got.OTP.Valid || got.OTP.String != "123456" || !got.OTPCreatedAt.Time.Equal(at) {
		t.Fatalf("otp not stored: %+v %+v", got.OTP, got.OTPCreatedAt)
	}
	if err := store.ClearUserOTP(ctx, db, u.ID); err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetUserByID(ctx, db, u.ID)
	if got.OTP.Valid || got.OTPCreatedAt.Valid {
		t.Fatal("otp not cleared")
	}

	if err := store.SetPassword(ctx, db, 4242, "hash"); err != store.ErrNotFound {
		t.Fatalf("unknown user err = %v", err)
	}
	if err := store.TouchLastLogin(ctx, db, u.ID, at); err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetUserByID(ctx, db, u.ID)
	if got.LastLogin == nil || !got.LastLogin.Equal(at) {
		t.Fatalf("last login = %v", got.LastLogin)
	}
}

func TestGroups_AddRemove(t *testing.T) {
	db, _ := migratetest.NewDB(t)
	ctx := context.Background()
	a := newUser(t, db, "amy", models.RoleStudent)
	b := newUser(t, db, "ben", models.RoleStudent)

	added, err := store.AddUsersToGroup(ctx, db, models.RoleTeacher, []int{a.ID, b.ID, a.ID, 777})
	if err != nil || added != 2 {
		t.Fatalf("added=%d err=%v", added, err)
	}
	removed, err := store.RemoveUsersFromGroup(ctx, db, models.RoleTeacher, []int{a.ID})
	if err != nil || removed != 1 {
		t.Fatalf("removed=%d err=%v", removed, err)
	}
	members, _ := store.GroupMembers(ctx, db, models.RoleTeacher)
	if len(members) != 1 || members[0] != b.ID {
		t.Fatalf("members = %v", members)
	}
	if _, err := store.AddUsersToGroup(ctx, db, "Nope", []int{a.ID}); err != store.ErrNotFound {
		t.Fatalf("unknown group err = %v", err)
	}
}

func TestTasks_CRUDAndFilters(t *testing.T) {
	db, _ := migratetest.NewDB(t)
	ctx := context.Background()
	teacher := newUser(t, db, "tina", models.RoleTeacher)
	student := newUser(t, db, "sam", models.RoleStudent)

	sid := student.ID
	task := models.Task{Title: "Essay", Description: "Write it", AssignedToID: &sid, CreatedByID: teacher.ID, DueDate: "2024-05-10", TaskType: "homework"}
	if err := store.CreateTask(ctx, db, &task); err != nil {
		t.Fatal(err)
	}
	other := models.Task{Title: "Unassigned", CreatedByID: teacher.ID}
	if err := store.CreateTask(ctx, db, &other); err != nil {
		t.Fatal(err)
	}

	got, err := store.GetTask(ctx, db, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusPending || got.DueDate != "2024-05-10" || got.TaskType != "homework" {
		t.Fatalf("got %+v", got)
	}
	if got.CreatedBy == nil || got.CreatedBy.FullName != "tina Tester" {
		t.Fatalf("creator = %+v", got.CreatedBy)
	}
	if got.AssignedTo == nil || got.AssignedTo.ID != student.ID {
		t.Fatalf("assignee = %+v", got.AssignedTo)
	}

	mine, _ := store.ListTasks(ctx, db, store.TaskFilter{AssignedTo: student.ID})
	if len(mine) != 1 || mine[0].ID != task.ID {
		t.Fatalf("student tasks = %v", mine)
	}
	due, _ := store.CountTasks(ctx, db, store.TaskFilter{DueOn: "2024-05-10"})
	if due != 1 {
		t.Fatalf("due on = %d", due)
	}
	all, _ := store.CountTasks(ctx, db, store.TaskFilter{CreatedBy: teacher.ID})
	if all != 2 {
		t.Fatalf("created by = %d", all)
	}

	if err := store.UpdateTaskStatus(ctx, db, task.ID, models.StatusCompleted); err != nil {
		t.Fatal(err)
	}
	done, _ := store.CountTasks(ctx, db, store.TaskFilter{Status: models.StatusCompleted})
	if done != 1 {
		t.Fatalf("completed = %d", done)
	}

	if err := store.AssignTask(ctx, db, other.ID, student.ID); err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetTask(ctx, db, other.ID)
	if !got.IsAssignedTo(student.ID) {
		t.Fatal("assign did not persist")
	}

	got.Title = "Renamed"
	got.DueDate = ""
	if err := store.UpdateTask(ctx, db, got); err != nil {
		t.Fatal(err)
	}
	got, _ = store.GetTask(ctx, db, other.ID)
	if got.Title != "Renamed" || got.DueDate != "" {
		t.Fatalf("update = %+v", got)
	}

	if err := store.DeleteTask(ctx, db, task.ID); err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteTask(ctx, db, task.ID); err != store.ErrNotFound {
		t.Fatalf("second delete err = %v", err)
	}
}

func TestTasks_AssigneeDeletedSetsNull(t *testing.T) {
	db, _ := migratetest.NewDB(t)
	ctx := context.Background()
	teacher := newUser(t, db, "tom", models.RoleTeacher)
	student := newUser(t, db, "sue", models.RoleStudent)
	sid := student.ID
	task := models.Task{Title: "Read", AssignedToID: &sid, CreatedByID: teacher.ID}
	if err := store.CreateTask(ctx, db, &task); err != nil {
		t.Fatal(err)
	}

	if err := store.DeleteUser(ctx, db, student.ID); err != nil {
		t.Fatal(err)
	}
	got, err := store.GetTask(ctx, db, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.AssignedToID != nil {
		t.Fatal("assignee should be cleared")
	}

	if err := store.DeleteUser(ctx, db, teacher.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetTask(ctx, db, task.ID); err != store.ErrNotFound {
		t.Fatalf("task should cascade with creator, err = %v", err)
	}
}

func TestTasks_CountByCreatorRole(t *testing.T) {
	db, _ := migratetest.NewDB(t)
	ctx := context.Background()
	teacher := newUser(t, db, "tara", models.RoleTeacher)
	admin := newUser(t, db, "root", models.RoleAdmin)
	for _, creator := range []int{teacher.ID, teacher.ID, admin.ID} {
		if err := store.CreateTask(ctx, db, &models.Task{Title: "x", CreatedByID: creator}); err != nil {
			t.Fatal(err)
		}
	}
	old := models.Task{Title: "old", CreatedByID: teacher.ID, CreatedAt: time.Now().UTC().AddDate(0, 0, -40).Truncate(time.Second)}
	if err := store.CreateTask(ctx, db, &old); err != nil {
		t.Fatal(err)
	}

	counts, err := store.CountTasksByCreatorRole(ctx, db, time.Now().UTC().AddDate(0, 0, -7))
	if err != nil {
		t.Fatal(err)
	}
	if counts[models.RoleTeacher] != 2 || counts[models.RoleAdmin] != 1 {
		t.Fatalf("counts = %v", counts)
	}
}

func TestNotesAndFiles(t *testing.T) {
	db, _ := migratetest.NewDB(t)
	ctx := context.Background()
	teacher := newUser(t, db, "nora", models.RoleTeacher)

	first := models.NotesUpload{UploadedByID: teacher.ID, File: "notes/a.pdf", UploadedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	second := models.NotesUpload{UploadedByID: teacher.ID, File: "notes/b.pdf", UploadedAt: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)}
	for _, n := range []*models.NotesUpload{&first, &second} {
		if err := store.CreateNote(ctx, db, n); err != nil {
			t.Fatal(err)
		}
	}
	notes, err := store.ListNotes(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	if len(notes) != 2 || notes[0].File != "notes/b.pdf" || notes[0].UploadedBy != "nora Tester" {
		t.Fatalf("notes = %+v", notes)
	}

	task := models.Task{Title: "T", CreatedByID: teacher.ID}
	if err := store.CreateTask(ctx, db, &task); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateTaskFile(ctx, db, &models.TaskFile{TaskID: task.ID, File: "task_files/x.txt"}); err != nil {
		t.Fatal(err)
	}
	files, _ := store.ListTaskFiles(ctx, db, task.ID)
	if len(files) != 1 || files[0].File != "task_files/x.txt" {
		t.Fatalf("files = %+v", files)
	}
}

func TestWithTx_RollsBack(t *testing.T) {
	db, _ := migratetest.NewDB(t)
	ctx := context.Background()
	err := store.WithTx(ctx, db, func(tx *sql.Tx) error {
		u := models.User{Username: "ghost"}
		if err := store.CreateUser(ctx, tx, &u, "pw"); err != nil {
			return err
		}
		return store.ErrDuplicate
	})
	if err != store.ErrDuplicate {
		t.Fatalf("err = %v", err)
	}
	if _, err := store.GetUserByUsername(ctx, db, "ghost"); err != store.ErrNotFound {
		t.Fatal("transaction was not rolled back")
	}
}

type uncountedResult struct{ sql.Result }

func (uncountedResult) RowsAffected() (int64, error) {
	return 0, errors.New("row count unavailable")
}

// uncounted runs statements for real but hides how many rows changed.
type uncounted struct{ *sql.DB }

func (u uncounted) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	res, err := u.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return uncountedResult{res}, nil
}

func TestRowCountErrorsAreReturned(t *testing.T) {
	db, _ := migratetest.NewDB(t)
	ctx := context.Background()
	u := newUser(t, db, "carol", models.RoleStudent)

	if n, err := store.SetRole(ctx, uncounted{db}, []int{u.ID}, models.RoleTeacher); err == nil {
		t.Fatalf("SetRole = %d, nil error", n)
	}
	if n, err := store.RemoveUsersFromGroup(ctx, uncounted{db}, models.RoleStudent, []int{u.ID}); err == nil {
		t.Fatalf("RemoveUsersFromGroup = %d, nil error", n)
	}
}
