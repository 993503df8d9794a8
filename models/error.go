package models

// Error is the JSON body of every failed request.
type Error struct {
	Message string            `json:"message"`
	Code    string            `json:"error,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}
