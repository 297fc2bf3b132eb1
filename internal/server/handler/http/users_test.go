package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ragui/dify-relay/internal/common"
	"github.com/ragui/dify-relay/internal/middleware"
	"github.com/ragui/dify-relay/internal/models"
	"github.com/ragui/dify-relay/internal/repository"
)

// fakeUserService implements UserService for testing.
type fakeUserService struct {
	users     []models.User
	total     int64
	listErr   error
	updated   *models.User
	updateErr error
	deleteErr error

	gotUpd      repository.UserUpdate
	gotDeleteID int64
	gotActor    *models.User
}

func (f *fakeUserService) List(ctx context.Context, offset, limit int) ([]models.User, int64, error) {
	return f.users, f.total, f.listErr
}
func (f *fakeUserService) Update(ctx context.Context, id int64, upd repository.UserUpdate) (*models.User, error) {
	f.gotUpd = upd
	return f.updated, f.updateErr
}
func (f *fakeUserService) Delete(ctx context.Context, actor *models.User, id int64) error {
	f.gotActor = actor
	f.gotDeleteID = id
	return f.deleteErr
}

func TestUserHandler_List(t *testing.T) {
	svc := &fakeUserService{
		users: []models.User{
			{ID: 1, Username: "admin", Role: models.RoleAdmin, IsActive: true},
			{ID: 2, Username: "bob", Role: models.RoleUser, IsActive: true},
		},
		total: 12,
	}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/users?offset=0&limit=2", nil)
	h := &UserHandler{UserService: svc}
	h.List(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp struct {
		Items []models.User `json:"items"`
		Total int64         `json:"total"`
		Limit int           `json:"limit"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Items) != 2 || resp.Total != 12 || resp.Limit != 2 {
		t.Errorf("response = %+v; want 2 items, total 12, limit 2", resp)
	}
}

func TestUserHandler_List_EmptyPage(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/v1/users", nil)
	h := &UserHandler{UserService: &fakeUserService{}}
	h.List(rec, req)

	if !strings.Contains(rec.Body.String(), `"items":[]`) {
		t.Errorf("body = %q; want empty items array", rec.Body.String())
	}
}

func TestUserHandler_Update(t *testing.T) {
	tests := []struct {
		name         string
		id           string
		body         string
		svc          *fakeUserService
		expectedCode int
	}{
		{"bad id", "abc", `{}`, &fakeUserService{}, http.StatusBadRequest},
		{"invalid JSON", "3", `{`, &fakeUserService{}, http.StatusBadRequest},
		{"unknown role", "3", `{"role":"superuser"}`, &fakeUserService{}, http.StatusBadRequest},
		{"unknown user", "3", `{"role":"admin"}`, &fakeUserService{updateErr: common.ErrNotFound}, http.StatusNotFound},
		{
			"success",
			"3",
			`{"role":"admin","is_active":false}`,
			&fakeUserService{updated: &models.User{ID: 3, Username: "bob", Role: models.RoleAdmin}},
			http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := withURLParam(httptest.NewRequest("PUT", "/api/v1/users/"+tt.id,
				bytes.NewBufferString(tt.body)), "id", tt.id)
			h := &UserHandler{UserService: tt.svc}
			h.Update(rec, req)

			if rec.Code != tt.expectedCode {
				t.Fatalf("expected status %d, got %d: %s", tt.expectedCode, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestUserHandler_Update_PassesPartialFields(t *testing.T) {
	svc := &fakeUserService{updated: &models.User{ID: 3}}
	rec := httptest.NewRecorder()
	req := withURLParam(httptest.NewRequest("PUT", "/api/v1/users/3",
		bytes.NewBufferString(`{"is_active":false}`)), "id", "3")
	h := &UserHandler{UserService: svc}
	h.Update(rec, req)

	if svc.gotUpd.IsActive == nil || *svc.gotUpd.IsActive {
		t.Errorf("is_active = %v; want false", svc.gotUpd.IsActive)
	}
	if svc.gotUpd.Username != nil || svc.gotUpd.Role != nil {
		t.Error("absent fields should stay nil in the update")
	}
}

func TestUserHandler_Delete(t *testing.T) {
	admin := &models.User{ID: 7, Username: "admin", Role: models.RoleAdmin, IsActive: true}

	tests := []struct {
		name           string
		id             string
		svc            *fakeUserService
		expectedCode   int
		expectedSubstr string
	}{
		{"bad id", "abc", &fakeUserService{}, http.StatusBadRequest, "invalid user id"},
		{"unknown user", "3", &fakeUserService{deleteErr: common.ErrNotFound}, http.StatusNotFound, "not found"},
		{
			"self deletion",
			"7",
			&fakeUserService{deleteErr: common.ErrSelfDeletion},
			http.StatusBadRequest,
			"self deletion",
		},
		{"success", "3", &fakeUserService{}, http.StatusOK, "user deleted"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := withURLParam(httptest.NewRequest("DELETE", "/api/v1/users/"+tt.id, nil), "id", tt.id)
			req = req.WithContext(middleware.WithUser(req.Context(), admin))
			h := &UserHandler{UserService: tt.svc}
			h.Delete(rec, req)

			if rec.Code != tt.expectedCode {
				t.Fatalf("expected status %d, got %d: %s", tt.expectedCode, rec.Code, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), tt.expectedSubstr) {
				t.Errorf("body %q does not contain %q", rec.Body.String(), tt.expectedSubstr)
			}
			if tt.name == "success" && tt.svc.gotActor != admin {
				t.Error("actor from context was not passed to the service")
			}
		})
	}
}
