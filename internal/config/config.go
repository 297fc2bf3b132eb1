// Package config provides functionality for managing configuration options
// for the application using command-line flags and environment variables.
package config

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"strconv"
	"time"
)

// Options holds the configuration values for the application.
type Options struct {
	// Port defines the server's listening address (ip:port).
	Port string

	// DatabaseDSN holds the database connection string for the application.
	DatabaseDSN string

	// JWTSecret signs and verifies access tokens.
	JWTSecret string

	// TokenTTLMinutes is the access token lifetime in minutes.
	TokenTTLMinutes int

	// UpstreamTimeoutSeconds bounds how long the relay waits for the
	// first byte of an upstream response.
	UpstreamTimeoutSeconds int

	// AdminUsername, AdminEmail and AdminPassword describe the default
	// administrator created at startup when no admin exists.
	AdminUsername string
	AdminEmail    string
	AdminPassword string

	// Config is the path to the Config file.
	Config string
}

// TokenTTL returns the configured token lifetime as a duration.
func (o *Options) TokenTTL() time.Duration {
	return time.Duration(o.TokenTTLMinutes) * time.Minute
}

// UpstreamTimeout returns the upstream first-byte budget as a duration.
func (o *Options) UpstreamTimeout() time.Duration {
	return time.Duration(o.UpstreamTimeoutSeconds) * time.Second
}

// options holds the current configuration values.
var options = &Options{}

// init initializes command-line flags and sets default values.
func init() {
	flag.StringVar(&options.Port, "a", "localhost:8080", "run on ip:port server")
	flag.StringVar(&options.DatabaseDSN, "d", "", "db address")
	flag.StringVar(&options.JWTSecret, "s", "change-this-in-production", "jwt signing secret")
	flag.IntVar(&options.TokenTTLMinutes, "ttl", 30, "access token lifetime in minutes")
	flag.IntVar(&options.UpstreamTimeoutSeconds, "ut", 30, "upstream response header timeout in seconds")
	flag.StringVar(&options.AdminUsername, "admin-user", "admin", "default admin username")
	flag.StringVar(&options.AdminEmail, "admin-email", "admin@example.com", "default admin email")
	flag.StringVar(&options.AdminPassword, "admin-password", "admin123", "default admin password")
	flag.StringVar(&options.Config, "config", "config.json", "path to config file")
	flag.StringVar(&options.Config, "c", "config.json", "path to config file (shorthand)")
}

// Parse parses the command-line flags and environment variables to set
// configuration values. It returns a pointer to the Options struct containing
// the parsed configuration values.
func Parse() *Options {
	flag.Parse()

	// Override flags with environment variables if set
	if configPath := os.Getenv("CONFIG"); configPath != "" {
		options.Config = configPath
	}

	if options.Config != "" {
		if _, err := os.Stat(options.Config); err == nil {
			data, err := os.ReadFile(options.Config)
			if err != nil {
				log.Fatalf("error while reading config file: %v", err)
			}
			if err := json.Unmarshal(data, options); err != nil {
				log.Fatalf("error while parsing config file: %v", err)
			}
		}
	}

	if serverAddress := os.Getenv("SERVER_ADDRESS"); serverAddress != "" {
		options.Port = serverAddress
	}
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		options.DatabaseDSN = dsn
	}
	if secret := os.Getenv("SECRET_KEY"); secret != "" {
		options.JWTSecret = secret
	}
	if ttl := os.Getenv("ACCESS_TOKEN_EXPIRE_MINUTES"); ttl != "" {
		if v, err := strconv.Atoi(ttl); err == nil {
			options.TokenTTLMinutes = v
		}
	}
	if user := os.Getenv("DEFAULT_ADMIN_USERNAME"); user != "" {
		options.AdminUsername = user
	}
	if email := os.Getenv("DEFAULT_ADMIN_EMAIL"); email != "" {
		options.AdminEmail = email
	}
	if password := os.Getenv("DEFAULT_ADMIN_PASSWORD"); password != "" {
		options.AdminPassword = password
	}

	return options
}
