package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type RouterOptions struct {
	RequestTimeout time.Duration
	AllowedOrigins []string // "*" allows any origin
}

func NewRouter(apiHandler *APIHandler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apiHandler.requestLogger)
	r.Use(apiHandler.recoverer)
	r.Use(middleware.Timeout(opts.RequestTimeout))
	r.Use(middleware.StripSlashes) // Ensure consistent path handling
	r.Use(securityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed"})
	})

	r.Get("/health", apiHandler.HealthHandler)

	r.Route("/api/v1", func(r chi.Router) {
		// User routes
		r.Post("/users", apiHandler.CreateUserHandler)
		r.Get("/users/{userID}", apiHandler.GetUserHandler)

		// Chat routes
		r.Post("/chats", apiHandler.CreateChatHandler)
		r.Get("/chats", apiHandler.ListChatsHandler)
		r.Get("/chats/{chatID}", apiHandler.GetChatDetailsHandler)
		r.Put("/chats/{chatID}", apiHandler.UpdateChatHandler)
		r.Delete("/chats/{chatID}", apiHandler.DeleteChatHandler)

		// Message routes
		r.Post("/chats/{chatID}/messages", apiHandler.PostMessageHandler)
		r.Get("/chats/{chatID}/messages", apiHandler.ListMessagesHandler)
	})

	return r
}
