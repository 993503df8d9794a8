package models

import "time"

type TaskStatus string

const (
	StatusPending    TaskStatus = "Pending"
	StatusInProgress TaskStatus = "In Progress"
	StatusCompleted  TaskStatus = "Completed"
)

var TaskStatuses = []TaskStatus{StatusPending, StatusInProgress, StatusCompleted}

func (s TaskStatus) Valid() bool {
	for _, v := range TaskStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// DateLayout is the wire and storage format of due dates.
const DateLayout = "2006-01-02"

type Task struct {
	ID            int          `json:"id"`
	Title         string       `json:"title"`
	Description   string       `json:"description,omitempty"`
	AssignedToID  *int         `json:"assigned_to_id"`
	AssignedTo    *UserSummary `json:"assigned_to,omitempty"`
	CreatedByID   int          `json:"created_by_id"`
	CreatedBy     *UserSummary `json:"created_by,omitempty"`
	Status        TaskStatus   `json:"status"`
	DueDate       string       `json:"due_date,omitempty"`
	TaskType      string       `json:"task_type,omitempty"`
	Attachment    string       `json:"attachment,omitempty"`
	AttachmentURL string       `json:"attachment_url,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
}

func (t Task) String() string {
	return t.Title
}

func (t Task) IsAssignedTo(userID int) bool {
	return t.AssignedToID != nil && *t.AssignedToID == userID
}

type TaskFile struct {
	ID         int       `json:"id"`
	TaskID     int       `json:"task_id"`
	File       string    `json:"file"`
	URL        string    `json:"url,omitempty"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type NotesUpload struct {
	ID           int       `json:"id"`
	UploadedByID int       `json:"uploaded_by_id"`
	UploadedBy   string    `json:"uploaded_by"`
	File         string    `json:"file"`
	URL          string    `json:"url,omitempty"`
	UploadedAt   time.Time `json:"uploaded_at"`
}
