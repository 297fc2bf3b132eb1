// Package models defines the core data structures for users and Dify endpoints.
package models

import "time"

// Role is the authorization role assigned to a user.
type Role string

const (
	// RoleUser is the default role for registered accounts.
	RoleUser Role = "user"
	// RoleAdmin grants access to user management and endpoint administration.
	RoleAdmin Role = "admin"
)

// User represents an application user with credentials.
type User struct {
	// ID is the unique identifier for the user.
	ID int64 `json:"id"`
	// Username is the login name chosen by the user. Globally unique.
	Username string `json:"username"`
	// Email is the user's email address. Globally unique.
	Email string `json:"email"`
	// PasswordHash is the bcrypt hash of the user's password.
	// Never exposed over the API.
	PasswordHash string `json:"-"`
	// Role is either RoleUser or RoleAdmin.
	Role Role `json:"role"`
	// IsActive marks whether the account may authenticate.
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsAdmin reports whether the user holds the administrator role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// DifyConfig is the global upstream configuration used when no
// specific app is selected. At most one row exists.
type DifyConfig struct {
	ID     int64  `json:"id"`
	APIURL string `json:"api_url"`
	APIKey string `json:"api_key"`
}

// AppType classifies a named Dify app.
type AppType string

const (
	AppTypeWorkflow      AppType = "workflow"
	AppTypeChatflow      AppType = "chatflow"
	AppTypeChatbot       AppType = "chatbot"
	AppTypeAgent         AppType = "agent"
	AppTypeTextGenerator AppType = "text_generator"
)

// Valid reports whether t is one of the known app types.
func (t AppType) Valid() bool {
	switch t {
	case AppTypeWorkflow, AppTypeChatflow, AppTypeChatbot, AppTypeAgent, AppTypeTextGenerator:
		return true
	}
	return false
}

// DifyApp is a named upstream endpoint. Apps are soft-deleted via
// the IsActive flag and never removed from the table.
type DifyApp struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	AppType     AppType   `json:"app_type"`
	APIURL      string    `json:"api_url"`
	APIKey      string    `json:"api_key"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
