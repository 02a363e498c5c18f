package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tomhalloin/cardgen/internal/api"
	apiMiddleware "github.com/tomhalloin/cardgen/internal/api/middleware"
)

// setupRouter creates and configures the application router with all
// routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	// Apply standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	generateHandler := api.NewGenerateHandler(app.orchestrator)

	r.Route("/api", func(r chi.Router) {
		// An empty token secret leaves the API open, for local use.
		if app.config.Auth.TokenSecret != "" {
			authMiddleware := apiMiddleware.NewAuthMiddleware(app.config.Auth.TokenSecret)
			r.Use(authMiddleware.Authenticate)
		}

		r.Post("/generate", generateHandler.Generate)
	})

	// Health check endpoint
	r.Get("/healthz", api.Health)

	return r
}
