package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ragui/dify-relay/internal/models"
	"github.com/ragui/dify-relay/internal/repository"
	"github.com/ragui/dify-relay/internal/service"
)

// EndpointService defines the registry operations required by the HTTP
// handlers for the global config and named apps.
type EndpointService interface {
	GetGlobalConfig(ctx context.Context) (*models.DifyConfig, error)
	SetGlobalConfig(ctx context.Context, apiURL, apiKey string) (*models.DifyConfig, error)
	ListApps(ctx context.Context) ([]models.DifyApp, error)
	GetApp(ctx context.Context, id int64) (*models.DifyApp, error)
	CreateApp(ctx context.Context, app *models.DifyApp) (*models.DifyApp, error)
	UpdateApp(ctx context.Context, id int64, upd repository.AppUpdate) (*models.DifyApp, error)
	DeactivateApp(ctx context.Context, id int64) error
}

// EndpointHandler handles the Dify configuration and app registry
// endpoints.
type EndpointHandler struct {
	EndpointService EndpointService
}

// ConfigRequest represents the JSON payload for the global config
// upsert.
type ConfigRequest struct {
	APIURL string `json:"api_url"`
	APIKey string `json:"api_key"`
}

// SetConfig upserts the global Dify configuration.
func (h *EndpointHandler) SetConfig(w http.ResponseWriter, r *http.Request) {
	var req ConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.APIURL == "" || req.APIKey == "" {
		writeDetail(w, http.StatusBadRequest, "api_url and api_key are required")
		return
	}

	if _, err := h.EndpointService.SetGlobalConfig(r.Context(), req.APIURL, req.APIKey); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Dify configuration saved successfully"})
}

// GetConfig returns the global configuration with the API key masked.
func (h *EndpointHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.EndpointService.GetGlobalConfig(r.Context())
	if err != nil {
		// An unset config is a 404 on read, unlike the relay paths
		// where it is the caller's 400.
		writeDetail(w, http.StatusNotFound, "Dify configuration not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"api_url": cfg.APIURL,
		"api_key": service.MaskKey(cfg.APIKey),
	})
}

// AppRequest represents the JSON payload for creating an app.
type AppRequest struct {
	Name        string         `json:"name"`
	AppType     models.AppType `json:"app_type"`
	APIURL      string         `json:"api_url"`
	APIKey      string         `json:"api_key"`
	Description string         `json:"description"`
}

// CreateApp registers a new named app.
func (h *EndpointHandler) CreateApp(w http.ResponseWriter, r *http.Request) {
	var req AppRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}

	app, err := h.EndpointService.CreateApp(r.Context(), &models.DifyApp{
		Name:        req.Name,
		AppType:     req.AppType,
		APIURL:      req.APIURL,
		APIKey:      req.APIKey,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, app)
}

// ListApps returns the active apps.
func (h *EndpointHandler) ListApps(w http.ResponseWriter, r *http.Request) {
	apps, err := h.EndpointService.ListApps(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if apps == nil {
		apps = []models.DifyApp{}
	}
	writeJSON(w, http.StatusOK, apps)
}

// GetApp returns an app by id, including deactivated ones.
func (h *EndpointHandler) GetApp(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid app id")
		return
	}

	app, err := h.EndpointService.GetApp(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

// UpdateAppRequest represents the JSON payload for a partial app
// update. Absent fields are left unchanged.
type UpdateAppRequest struct {
	Name        *string         `json:"name"`
	AppType     *models.AppType `json:"app_type"`
	APIURL      *string         `json:"api_url"`
	APIKey      *string         `json:"api_key"`
	Description *string         `json:"description"`
	IsActive    *bool           `json:"is_active"`
}

// UpdateApp applies a partial update to an app by id.
func (h *EndpointHandler) UpdateApp(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid app id")
		return
	}

	var req UpdateAppRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body")
		return
	}

	app, err := h.EndpointService.UpdateApp(r.Context(), id, repository.AppUpdate{
		Name:        req.Name,
		AppType:     req.AppType,
		APIURL:      req.APIURL,
		APIKey:      req.APIKey,
		Description: req.Description,
		IsActive:    req.IsActive,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, app)
}

// DeleteApp deactivates an app. The row is kept so the app stays
// readable by id; only chat traffic is cut off.
func (h *EndpointHandler) DeleteApp(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid app id")
		return
	}

	if err := h.EndpointService.DeactivateApp(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "app deactivated"})
}
