package db

import (
	"context"
	"database/sql"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// EnsureAdminUser creates a default administrator account if no admin
// exists yet. This is a startup convenience, not a hard invariant: the
// system keeps running if it fails, but without an admin nobody can
// manage users or apps.
func EnsureAdminUser(ctx context.Context, db *sql.DB, username, email, password string, log *zap.Logger) error {
	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE role = 'admin')`,
	).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO users (username, email, password_hash, role, is_active)
		VALUES ($1, $2, $3, 'admin', TRUE)
		ON CONFLICT (username) DO NOTHING
	`, username, email, string(hash))
	if err != nil {
		return err
	}

	log.Info("created default admin user",
		zap.String("username", username),
		zap.String("email", email),
	)
	log.Warn("change the default admin password after first login")
	return nil
}
