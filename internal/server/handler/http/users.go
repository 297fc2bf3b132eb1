package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ragui/dify-relay/internal/middleware"
	"github.com/ragui/dify-relay/internal/models"
	"github.com/ragui/dify-relay/internal/repository"
)

// UserService defines the user management operations required by the
// HTTP handlers. All of them are administrator-only.
type UserService interface {
	List(ctx context.Context, offset, limit int) ([]models.User, int64, error)
	Update(ctx context.Context, id int64, upd repository.UserUpdate) (*models.User, error)
	Delete(ctx context.Context, actor *models.User, id int64) error
}

// UserHandler handles administrator requests for user management.
type UserHandler struct {
	UserService UserService
}

// List returns a page of users with the total count.
// Query parameters: offset (default 0) and limit (default 50).
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	users, total, err := h.UserService.List(r.Context(), offset, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if users == nil {
		users = []models.User{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"items":  users,
		"total":  total,
		"offset": offset,
		"limit":  limit,
	})
}

// UpdateUserRequest represents the JSON payload for a partial user
// update. Absent fields are left unchanged.
type UpdateUserRequest struct {
	Username *string      `json:"username"`
	Email    *string      `json:"email"`
	Role     *models.Role `json:"role"`
	IsActive *bool        `json:"is_active"`
}

// Update applies a partial update to a user by id.
func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Role != nil && *req.Role != models.RoleUser && *req.Role != models.RoleAdmin {
		writeDetail(w, http.StatusBadRequest, "unknown role")
		return
	}

	user, err := h.UserService.Update(r.Context(), id, repository.UserUpdate{
		Username: req.Username,
		Email:    req.Email,
		Role:     req.Role,
		IsActive: req.IsActive,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// Delete removes a user by id. Administrators cannot delete their own
// account.
func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid user id")
		return
	}

	actor := middleware.GetUserFromContext(r.Context())
	if err := h.UserService.Delete(r.Context(), actor, id); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "user deleted"})
}
