package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ragui/dify-relay/internal/common"
	"github.com/ragui/dify-relay/internal/models"
)

const appColumns = `id, name, app_type, api_url, api_key, description, is_active, created_at, updated_at`

// PostgresEndpointRepository implements the Dify endpoint registry
// against PostgreSQL. It owns the dify_configs singleton row and the
// dify_apps table.
type PostgresEndpointRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresEndpointRepository creates a new PostgresEndpointRepository
// with the given database connection.
func NewPostgresEndpointRepository(db *sql.DB) *PostgresEndpointRepository {
	return &PostgresEndpointRepository{DB: db}
}

// GetGlobalConfig returns the global Dify configuration.
// Returns common.ErrNotFound if none has been set yet.
func (r *PostgresEndpointRepository) GetGlobalConfig(ctx context.Context) (*models.DifyConfig, error) {
	var cfg models.DifyConfig
	err := r.DB.QueryRowContext(ctx,
		`SELECT id, api_url, api_key FROM dify_configs ORDER BY id LIMIT 1`,
	).Scan(&cfg.ID, &cfg.APIURL, &cfg.APIKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get dify config: %w", err)
	}
	return &cfg, nil
}

// SetGlobalConfig upserts the single global configuration row: the
// existing row is updated in place, otherwise one is inserted.
func (r *PostgresEndpointRepository) SetGlobalConfig(ctx context.Context, apiURL, apiKey string) (*models.DifyConfig, error) {
	var cfg models.DifyConfig
	err := r.DB.QueryRowContext(ctx, `
		UPDATE dify_configs SET api_url = $1, api_key = $2
		WHERE id = (SELECT id FROM dify_configs ORDER BY id LIMIT 1)
		RETURNING id, api_url, api_key
	`, apiURL, apiKey).Scan(&cfg.ID, &cfg.APIURL, &cfg.APIKey)
	if errors.Is(err, sql.ErrNoRows) {
		err = r.DB.QueryRowContext(ctx, `
			INSERT INTO dify_configs (api_url, api_key) VALUES ($1, $2)
			RETURNING id, api_url, api_key
		`, apiURL, apiKey).Scan(&cfg.ID, &cfg.APIURL, &cfg.APIKey)
	}
	if err != nil {
		return nil, fmt.Errorf("set dify config: %w", err)
	}
	return &cfg, nil
}

func scanApp(row *sql.Row) (*models.DifyApp, error) {
	var a models.DifyApp
	err := row.Scan(&a.ID, &a.Name, &a.AppType, &a.APIURL, &a.APIKey, &a.Description, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan app: %w", err)
	}
	return &a, nil
}

// ListActive returns all apps whose active flag is set, ordered by id.
func (r *PostgresEndpointRepository) ListActive(ctx context.Context) ([]models.DifyApp, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+appColumns+` FROM dify_apps WHERE is_active = TRUE ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list apps: %w", err)
	}
	defer rows.Close()

	var apps []models.DifyApp
	for rows.Next() {
		var a models.DifyApp
		if err := rows.Scan(&a.ID, &a.Name, &a.AppType, &a.APIURL, &a.APIKey, &a.Description, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		apps = append(apps, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list apps: %w", err)
	}
	return apps, nil
}

// GetByID fetches an app by id regardless of its active flag. Callers
// routing chat traffic must check IsActive themselves: deactivated apps
// stay addressable for administration but must not serve requests.
func (r *PostgresEndpointRepository) GetByID(ctx context.Context, id int64) (*models.DifyApp, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+appColumns+` FROM dify_apps WHERE id = $1`, id)
	return scanApp(row)
}

// Create inserts a new app and returns the stored row.
func (r *PostgresEndpointRepository) Create(ctx context.Context, app *models.DifyApp) (*models.DifyApp, error) {
	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO dify_apps (name, app_type, api_url, api_key, description, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		RETURNING `+appColumns,
		app.Name, app.AppType, app.APIURL, app.APIKey, app.Description)
	return scanApp(row)
}

// AppUpdate carries the mutable app fields for a partial update.
// Nil fields are left unchanged.
type AppUpdate struct {
	Name        *string
	AppType     *models.AppType
	APIURL      *string
	APIKey      *string
	Description *string
	IsActive    *bool
}

// Update applies a partial update to the app with the given id and
// returns the updated row. Returns common.ErrNotFound for unknown ids.
func (r *PostgresEndpointRepository) Update(ctx context.Context, id int64, upd AppUpdate) (*models.DifyApp, error) {
	var appType *string
	if upd.AppType != nil {
		s := string(*upd.AppType)
		appType = &s
	}

	row := r.DB.QueryRowContext(ctx, `
		UPDATE dify_apps SET
			name = COALESCE($2, name),
			app_type = COALESCE($3, app_type),
			api_url = COALESCE($4, api_url),
			api_key = COALESCE($5, api_key),
			description = COALESCE($6, description),
			is_active = COALESCE($7, is_active),
			updated_at = now()
		WHERE id = $1
		RETURNING `+appColumns,
		id, upd.Name, appType, upd.APIURL, upd.APIKey, upd.Description, upd.IsActive)
	return scanApp(row)
}

// Deactivate clears the app's active flag. Rows are never hard-deleted;
// the flag preserves history while removing the app from service.
// Returns common.ErrNotFound if no row was updated.
func (r *PostgresEndpointRepository) Deactivate(ctx context.Context, id int64) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE dify_apps SET is_active = FALSE, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate app: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deactivate app: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}
