// Package main initializes and starts the relay server, setting up
// configuration, logging, database connections, repositories, services
// and handlers.
package main

import (
	"cmp"
	"context"
	"fmt"

	nethttp "net/http"

	"github.com/ragui/dify-relay/internal/config"
	"github.com/ragui/dify-relay/internal/db"
	"github.com/ragui/dify-relay/internal/logger"
	"github.com/ragui/dify-relay/internal/relay"
	"github.com/ragui/dify-relay/internal/repository"
	"github.com/ragui/dify-relay/internal/server/handler/http"
	"github.com/ragui/dify-relay/internal/service"
	"go.uber.org/zap"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	// Parse command-line and environment configuration.
	options := config.Parse()

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init("info"); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}
	zapLogger := log.Log

	// Initialize PostgreSQL connection.
	postgresDB, err := db.InitPostgres(options.DatabaseDSN)
	if err != nil {
		zapLogger.Fatal("cannot init database", zap.Error(err))
	}

	// Seed a default administrator account on first start. A failure
	// leaves the server usable, just without an admin until the next
	// restart, so it is logged rather than fatal.
	if err := db.EnsureAdminUser(context.Background(), postgresDB,
		options.AdminUsername, options.AdminEmail, options.AdminPassword,
		zapLogger,
	); err != nil {
		zapLogger.Error("cannot ensure admin user", zap.Error(err))
	}

	// Initialize repositories for users and endpoint registry.
	userRepo := repository.NewPostgresUserRepository(postgresDB)
	endpointRepo := repository.NewPostgresEndpointRepository(postgresDB)

	// Initialize business-logic services.
	authService := service.NewAuthService(userRepo, []byte(options.JWTSecret), options.TokenTTL())
	userService := service.NewUserService(userRepo)
	endpointService := service.NewEndpointService(endpointRepo)

	// The gateway owns the HTTP client that talks to upstream Dify.
	gateway := relay.NewGateway(options.UpstreamTimeout(), zapLogger)

	// Create HTTP handlers.
	authHandler := &http.AuthHandler{AuthService: authService}
	userHandler := &http.UserHandler{UserService: userService}
	endpointHandler := &http.EndpointHandler{EndpointService: endpointService}
	chatHandler := &http.ChatHandler{
		Targets: endpointService,
		Relay:   gateway,
		Log:     zapLogger,
	}

	// Build the router with middleware and routes.
	router := http.NewRouter(authHandler, userHandler, endpointHandler, chatHandler, authService, zapLogger)

	server := &nethttp.Server{
		Addr:    options.Port,
		Handler: router,
	}

	zapLogger.Info("starting HTTP server", zap.String("addr", options.Port))
	if err := server.ListenAndServe(); err != nil {
		zapLogger.Fatal("failed to start HTTP server", zap.Error(err))
	}
}
