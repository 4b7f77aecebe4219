package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/joescharf/tracker/internal/models"
	"github.com/joescharf/tracker/internal/store"
)

const minPasswordLength = 8

// maxPasswordLength is the bcrypt input limit in bytes.
const maxPasswordLength = 72

// UserService implements signup, user lookup and project selection.
type UserService struct {
	store    store.Store
	hashCost int
}

// NewUserService creates a UserService hashing with the given bcrypt cost.
// A cost of zero uses bcrypt.DefaultCost.
func NewUserService(st store.Store, hashCost int) *UserService {
	if hashCost == 0 {
		hashCost = bcrypt.DefaultCost
	}
	return &UserService{store: st, hashCost: hashCost}
}

// SignupInput carries the fields accepted at signup.
type SignupInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Signup creates a user with a hashed password.
func (s *UserService) Signup(ctx context.Context, in SignupInput) (*models.User, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(in.Email))
	if err != nil {
		return nil, validationf("invalid email %q", in.Email)
	}
	if len(in.Password) < minPasswordLength {
		return nil, validationf("password must be at least %d characters", minPasswordLength)
	}
	if len(in.Password) > maxPasswordLength {
		return nil, validationf("password must be at most %d bytes", maxPasswordLength)
	}

	_, err = s.store.GetUserByEmail(ctx, addr.Address)
	switch {
	case err == nil:
		return nil, fmt.Errorf("%w: email %s is already registered", ErrConflict, addr.Address)
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &models.User{
		Email:        addr.Address,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		PasswordHash: string(hash),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// FindByID returns a single user.
func (s *UserService) FindByID(ctx context.Context, id string) (*models.User, error) {
	return s.store.GetUser(ctx, id)
}

// FindByQuery returns users whose email or name contains q.
func (s *UserService) FindByQuery(ctx context.Context, q string) ([]*models.User, error) {
	users, err := s.store.ListUsers(ctx, strings.TrimSpace(q))
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []*models.User{}
	}
	return users, nil
}

// FindByProject returns the people of a project.
func (s *UserService) FindByProject(ctx context.Context, projectID string) ([]*models.User, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	users, err := s.store.ListProjectMembers(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []*models.User{}
	}
	return users, nil
}

// SelectProject sets the project a user's dashboard is scoped to. When the
// project has people, the user must be one of them.
func (s *UserService) SelectProject(ctx context.Context, userID, projectRef string) (*models.User, error) {
	projectID, err := ParseRef(projectRef, "projects")
	if err != nil {
		return nil, err
	}
	if projectID == "" {
		return nil, validationf("project is required")
	}
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, referenceError("project", projectID, err)
	}

	members, err := s.store.ListProjectMembers(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	if len(members) > 0 {
		isMember := false
		for _, m := range members {
			if m.ID == u.ID {
				isMember = true
				break
			}
		}
		if !isMember {
			return nil, validationf("user %s is not a member of project %s", u.ID, project.Name)
		}
	}

	if err := s.store.SetSelectedProject(ctx, u.ID, project.ID); err != nil {
		return nil, err
	}
	u.SelectedProjectID = project.ID
	return u, nil
}

// ResolveActor builds the request-scoped actor for a user id.
func (s *UserService) ResolveActor(ctx context.Context, userID string) (Actor, error) {
	if userID == "" {
		return Actor{}, validationf("user is required")
	}
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return Actor{}, err
	}
	return Actor{UserID: u.ID, ProjectID: u.SelectedProjectID}, nil
}
