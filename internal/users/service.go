package users

import (
	"context"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/kipuventas/kipu/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	Insert(ctx context.Context, u User) (int64, error)
	Update(ctx context.Context, id int64, u User) error
	Get(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context) ([]User, error)
	Delete(ctx context.Context, id int64) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles user business logic.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// Create registers a user with a bcrypt password hash.
func (s *Service) Create(ctx context.Context, input CreateUserInput, actorID int64) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("users: hash password: %w", err)
	}
	u := User{
		Name:         input.Name,
		Email:        input.Email,
		Role:         input.Role,
		Status:       StatusActive,
		PasswordHash: string(hash),
	}
	id, err := s.repo.Insert(ctx, u)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "users:create", id)
	return s.repo.Get(ctx, id)
}

// Update rewrites an account; the password changes only when provided.
func (s *Service) Update(ctx context.Context, id int64, input UpdateUserInput, actorID int64) (*User, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	u := User{
		Name:         input.Name,
		Email:        input.Email,
		Role:         input.Role,
		Status:       input.Status,
		PasswordHash: current.PasswordHash,
	}
	if input.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("users: hash password: %w", err)
		}
		u.PasswordHash = string(hash)
	}
	if err := s.repo.Update(ctx, id, u); err != nil {
		return nil, err
	}
	s.recordAudit(ctx, actorID, "users:update", id)
	return s.repo.Get(ctx, id)
}

// Get returns one user.
func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	return s.repo.Get(ctx, id)
}

// List returns all users.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

// Delete removes a user.
func (s *Service) Delete(ctx context.Context, id int64, actorID int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "users:delete", id)
	return nil
}

// VerifyPassword checks a candidate password against the stored hash.
func (s *Service) VerifyPassword(ctx context.Context, email, password string) (*User, error) {
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrNotFound
	}
	return u, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, id int64) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "user",
		EntityID: fmt.Sprintf("%d", id),
	})
}
