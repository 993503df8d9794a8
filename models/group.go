package models

// Content types a permission can belong to.
const (
	ContentTypeTask = "task"
	ContentTypeUser = "user"
)

type Permission struct {
	ID          int    `json:"id"`
	Codename    string `json:"codename"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
}

type Group struct {
	ID          int      `json:"id"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}
