package service

import (
	"context"
	"fmt"

	"github.com/ragui/dify-relay/internal/common"
	"github.com/ragui/dify-relay/internal/models"
	"github.com/ragui/dify-relay/internal/repository"
)

// UserAdminRepository defines the persistence operations required by
// the user management service.
type UserAdminRepository interface {
	List(ctx context.Context, offset, limit int) ([]models.User, int64, error)
	Update(ctx context.Context, id int64, upd repository.UserUpdate) (*models.User, error)
	Delete(ctx context.Context, id int64) error
}

// UserService implements administrator-facing user management.
type UserService struct {
	repo UserAdminRepository
}

// NewUserService constructs a UserService using the provided repository.
func NewUserService(repo UserAdminRepository) *UserService {
	return &UserService{repo: repo}
}

// maxPageSize caps a single listing page.
const maxPageSize = 200

// List returns a page of users ordered by id together with the total
// count. Non-positive limits fall back to a sane default.
func (s *UserService) List(ctx context.Context, offset, limit int) ([]models.User, int64, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return s.repo.List(ctx, offset, limit)
}

// Update applies a partial update to a user.
// Returns common.ErrNotFound for unknown ids.
func (s *UserService) Update(ctx context.Context, id int64, upd repository.UserUpdate) (*models.User, error) {
	return s.repo.Update(ctx, id, upd)
}

// Delete removes a user. Administrators cannot remove their own
// account; that request fails before touching the store.
func (s *UserService) Delete(ctx context.Context, actor *models.User, id int64) error {
	if actor != nil && actor.ID == id {
		return fmt.Errorf("cannot delete own account: %w", common.ErrSelfDeletion)
	}
	return s.repo.Delete(ctx, id)
}
