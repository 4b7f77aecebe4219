// Package service holds the issue, user and project operations shared by
// the REST API, the MCP server, the CLI and the issue browser.
package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joescharf/tracker/internal/models"
	"github.com/joescharf/tracker/internal/store"
)

var (
	// ErrValidation marks input that was rejected before touching storage.
	ErrValidation = errors.New("validation failed")
	// ErrTransitionNotAllowed marks a status change the workflow forbids.
	ErrTransitionNotAllowed = errors.New("transition not allowed")
	// ErrConflict marks a write that collides with existing data.
	ErrConflict = errors.New("conflict")
)

// ErrNotFound is re-exported so callers need not import store.
var ErrNotFound = store.ErrNotFound

func validationf(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, a...))
}

// ParseStatus parses a status from user input, wrapping failures as
// validation errors.
func ParseStatus(v string) (models.IssueStatus, error) {
	s, err := models.ParseIssueStatus(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return s, nil
}

// ParseType parses an issue type from user input, wrapping failures as
// validation errors.
func ParseType(v string) (models.IssueType, error) {
	t, err := models.ParseIssueType(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return t, nil
}

// ParseRef extracts the id from a reference that is either a bare id or an
// IRI such as "/api/users/7". An IRI pointing at another collection is
// rejected.
func ParseRef(ref, collection string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", nil
	}
	if !strings.HasPrefix(ref, "/") {
		return ref, nil
	}
	parts := strings.Split(strings.Trim(ref, "/"), "/")
	if len(parts) != 3 || parts[0] != "api" || parts[1] != collection || parts[2] == "" {
		return "", validationf("%q is not a /api/%s/{id} reference", ref, collection)
	}
	return parts[2], nil
}
