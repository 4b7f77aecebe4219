package models

import "time"

// User is an account that reports, is assigned, and browses issues.
type User struct {
	ID                string    `json:"id"`
	Email             string    `json:"email"`
	FirstName         string    `json:"firstName"`
	LastName          string    `json:"lastName"`
	PasswordHash      string    `json:"-"`
	SelectedProjectID string    `json:"selectedProject,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Person is the public projection of a user listed as a project member.
type Person struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// AsPerson projects u to its public fields.
func (u *User) AsPerson() Person {
	return Person{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName}
}
