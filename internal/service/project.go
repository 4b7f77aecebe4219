package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/joescharf/tracker/internal/models"
	"github.com/joescharf/tracker/internal/store"
)

// ProjectService manages projects and their people.
type ProjectService struct {
	store store.Store
}

func NewProjectService(st store.Store) *ProjectService {
	return &ProjectService{store: st}
}

// Create stores a new project. Names are unique.
func (s *ProjectService) Create(ctx context.Context, name, description string) (*models.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationf("name is required")
	}
	if _, err := s.store.GetProject(ctx, name); err == nil {
		return nil, fmt.Errorf("%w: project %s already exists", ErrConflict, name)
	}
	p := &models.Project{Name: name, Description: description}
	if err := s.store.CreateProject(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Get returns a project by id or name.
func (s *ProjectService) Get(ctx context.Context, ref string) (*models.Project, error) {
	id, err := ParseRef(ref, "projects")
	if err != nil {
		return nil, err
	}
	return s.store.GetProject(ctx, id)
}

func (s *ProjectService) List(ctx context.Context) ([]*models.Project, error) {
	projects, err := s.store.ListProjects(ctx)
	if err != nil {
		return nil, err
	}
	if projects == nil {
		projects = []*models.Project{}
	}
	return projects, nil
}

// AddMember makes a user eligible as an assignee in a project.
func (s *ProjectService) AddMember(ctx context.Context, projectRef, userRef string) error {
	p, err := s.Get(ctx, projectRef)
	if err != nil {
		return err
	}
	userID, err := ParseRef(userRef, "users")
	if err != nil {
		return err
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return referenceError("user", userID, err)
	}
	return s.store.AddProjectMember(ctx, p.ID, userID)
}

// People returns the public projection of a project's members.
func (s *ProjectService) People(ctx context.Context, projectRef string) ([]models.Person, error) {
	p, err := s.Get(ctx, projectRef)
	if err != nil {
		return nil, err
	}
	users, err := s.store.ListProjectMembers(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	people := make([]models.Person, len(users))
	for i, u := range users {
		people[i] = u.AsPerson()
	}
	return people, nil
}
