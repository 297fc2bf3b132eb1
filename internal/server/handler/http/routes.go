package http

import (
	"net/http"

	"github.com/ragui/dify-relay/internal/middleware"
	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
)

// NewRouter constructs and returns an HTTP handler that serves the
// relay API. It applies request logging and bearer-token
// authentication, and mounts the endpoints under /api/v1.
//
// Routes:
//
//	GET  /health                     → liveness probe (public)
//	POST /api/v1/auth/register       → authHandler.Register (public)
//	POST /api/v1/auth/login          → authHandler.Login (public)
//	POST /api/v1/dify-config         → endpointHandler.SetConfig (public)
//	GET  /api/v1/dify-config         → endpointHandler.GetConfig (public)
//	GET  /api/v1/auth/me             → authHandler.Me
//	POST /api/v1/chat                → chatHandler.Chat
//	POST /api/v1/chat/app/{id}       → chatHandler.ChatWithApp
//	POST /api/v1/documents           → chatHandler.UploadDocument
//	GET  /api/v1/dify-apps           → endpointHandler.ListApps
//	GET  /api/v1/dify-apps/{id}      → endpointHandler.GetApp
//	POST /api/v1/dify-apps           → endpointHandler.CreateApp (admin)
//	PUT  /api/v1/dify-apps/{id}      → endpointHandler.UpdateApp (admin)
//	DELETE /api/v1/dify-apps/{id}    → endpointHandler.DeleteApp (admin)
//	GET  /api/v1/users               → userHandler.List (admin)
//	PUT  /api/v1/users/{id}          → userHandler.Update (admin)
//	DELETE /api/v1/users/{id}        → userHandler.Delete (admin)
func NewRouter(
	authHandler *AuthHandler,
	userHandler *UserHandler,
	endpointHandler *EndpointHandler,
	chatHandler *ChatHandler,
	resolver middleware.UserResolver,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Log each request and its metadata
	r.Use(middleware.WithRequestLogging(logger))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/dify-config", endpointHandler.SetConfig)
		r.Get("/dify-config", endpointHandler.GetConfig)

		// Protected group: requires a valid bearer token
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(resolver))

			r.Get("/auth/me", authHandler.Me)
			r.Post("/chat", chatHandler.Chat)
			r.Post("/chat/app/{id}", chatHandler.ChatWithApp)
			r.Post("/documents", chatHandler.UploadDocument)
			r.Get("/dify-apps", endpointHandler.ListApps)
			r.Get("/dify-apps/{id}", endpointHandler.GetApp)

			// Administrator group
			r.Group(func(r chi.Router) {
				r.Use(middleware.AdminOnly)

				r.Post("/dify-apps", endpointHandler.CreateApp)
				r.Put("/dify-apps/{id}", endpointHandler.UpdateApp)
				r.Delete("/dify-apps/{id}", endpointHandler.DeleteApp)
				r.Get("/users", userHandler.List)
				r.Put("/users/{id}", userHandler.Update)
				r.Delete("/users/{id}", userHandler.Delete)
			})
		})
	})

	return r
}
