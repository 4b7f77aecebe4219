package models

import "time"

// Attachment is a file reference attached to an issue.
type Attachment struct {
	ID        string    `json:"id"`
	IssueID   string    `json:"issue"`
	FileName  string    `json:"fileName"`
	Path      string    `json:"path"`
	MediaType string    `json:"mediaType,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
