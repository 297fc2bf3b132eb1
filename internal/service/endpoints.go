package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ragui/dify-relay/internal/common"
	"github.com/ragui/dify-relay/internal/models"
	"github.com/ragui/dify-relay/internal/repository"
)

// EndpointRepository defines the persistence operations required by
// the endpoint registry service.
type EndpointRepository interface {
	GetGlobalConfig(ctx context.Context) (*models.DifyConfig, error)
	SetGlobalConfig(ctx context.Context, apiURL, apiKey string) (*models.DifyConfig, error)
	ListActive(ctx context.Context) ([]models.DifyApp, error)
	GetByID(ctx context.Context, id int64) (*models.DifyApp, error)
	Create(ctx context.Context, app *models.DifyApp) (*models.DifyApp, error)
	Update(ctx context.Context, id int64, upd repository.AppUpdate) (*models.DifyApp, error)
	Deactivate(ctx context.Context, id int64) error
}

// Target identifies the upstream endpoint a relay request goes to.
type Target struct {
	APIURL string
	APIKey string
}

// EndpointService manages the global Dify configuration and the named
// app registry, and resolves relay targets. It reads the registry on
// every request instead of caching config in process memory, so config
// writes take effect immediately and the relay stays testable with a
// substitute repository.
type EndpointService struct {
	repo EndpointRepository
}

// NewEndpointService constructs an EndpointService using the provided repository.
func NewEndpointService(repo EndpointRepository) *EndpointService {
	return &EndpointService{repo: repo}
}

// GetGlobalConfig returns the global configuration.
// Returns common.ErrConfigMissing when none has been set.
func (s *EndpointService) GetGlobalConfig(ctx context.Context) (*models.DifyConfig, error) {
	cfg, err := s.repo.GetGlobalConfig(ctx)
	if errors.Is(err, common.ErrNotFound) {
		return nil, common.ErrConfigMissing
	}
	return cfg, err
}

// SetGlobalConfig upserts the global configuration.
func (s *EndpointService) SetGlobalConfig(ctx context.Context, apiURL, apiKey string) (*models.DifyConfig, error) {
	return s.repo.SetGlobalConfig(ctx, apiURL, apiKey)
}

// MaskKey redacts an API key for display, keeping a recognizable
// prefix and suffix the way the original config endpoint does.
func MaskKey(key string) string {
	if len(key) > 12 {
		return key[:8] + "****" + key[len(key)-4:]
	}
	return "****"
}

// ListApps returns the active apps.
func (s *EndpointService) ListApps(ctx context.Context) ([]models.DifyApp, error) {
	return s.repo.ListActive(ctx)
}

// GetApp returns an app by id regardless of its active flag
// (administrative read access).
func (s *EndpointService) GetApp(ctx context.Context, id int64) (*models.DifyApp, error) {
	return s.repo.GetByID(ctx, id)
}

// CreateApp validates and stores a new app.
func (s *EndpointService) CreateApp(ctx context.Context, app *models.DifyApp) (*models.DifyApp, error) {
	if app.Name == "" || app.APIURL == "" || app.APIKey == "" {
		return nil, fmt.Errorf("name, api_url and api_key are required: %w", common.ErrValidation)
	}
	if !app.AppType.Valid() {
		return nil, fmt.Errorf("unknown app type %q: %w", app.AppType, common.ErrValidation)
	}
	return s.repo.Create(ctx, app)
}

// UpdateApp applies a partial update to an app.
func (s *EndpointService) UpdateApp(ctx context.Context, id int64, upd repository.AppUpdate) (*models.DifyApp, error) {
	if upd.AppType != nil && !upd.AppType.Valid() {
		return nil, fmt.Errorf("unknown app type %q: %w", *upd.AppType, common.ErrValidation)
	}
	return s.repo.Update(ctx, id, upd)
}

// DeactivateApp soft-deletes an app.
func (s *EndpointService) DeactivateApp(ctx context.Context, id int64) error {
	return s.repo.Deactivate(ctx, id)
}

// GlobalTarget resolves the relay target from the global config.
// Returns common.ErrConfigMissing when it is not set.
func (s *EndpointService) GlobalTarget(ctx context.Context) (*Target, error) {
	cfg, err := s.GetGlobalConfig(ctx)
	if err != nil {
		return nil, err
	}
	return &Target{APIURL: cfg.APIURL, APIKey: cfg.APIKey}, nil
}

// AppTarget resolves the relay target for a named app. Unknown ids and
// deactivated apps both fail with common.ErrNotFound: a soft-deleted
// app must reject chat attempts even though it is still addressable by
// id for administration.
func (s *EndpointService) AppTarget(ctx context.Context, id int64) (*Target, error) {
	app, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !app.IsActive {
		return nil, common.ErrNotFound
	}
	return &Target{APIURL: app.APIURL, APIKey: app.APIKey}, nil
}
