package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/upb/lingotube/backend/app"
	"github.com/upb/lingotube/backend/handlers"
	"github.com/upb/lingotube/backend/middleware"
	"github.com/upb/lingotube/backend/utils"
)

// requestTimeout bounds synchronous handlers. Translation jobs run in the
// background and are not affected.
const requestTimeout = 120 * time.Second

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(requestTimeout))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", handlers.ProviderKeysHeader},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/healthz", deps.HealthHandler.HandleHealth)
	r.Get("/readyz", deps.HealthHandler.HandleReadiness)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(deps.AuthMiddleware.RequireAuth)

		// Translation jobs
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", deps.JobHandler.HandleCreate)
			r.Get("/", deps.JobHandler.HandleList)
			r.Get("/{id}", deps.JobHandler.HandleGet)
			r.Post("/{id}/resume", deps.JobHandler.HandleResume)
		})
		r.Get("/translations/{videoID}", deps.JobHandler.HandleGetTranslation)

		// Model availability (maintenance requires admin role)
		r.Route("/models", func(r chi.Router) {
			r.Get("/", deps.ModelHandler.HandleList)
			r.Group(func(r chi.Router) {
				r.Use(deps.AuthMiddleware.RequireRole("admin"))
				r.Post("/validate", deps.ModelHandler.HandleValidate)
				r.Post("/{model}/unblock", deps.ModelHandler.HandleUnblock)
			})
		})

		r.Route("/practice", func(r chi.Router) {
			r.Post("/phrase", deps.PracticeHandler.HandleGeneratePhrase)
			r.Post("/check", deps.PracticeHandler.HandleCheckAnswer)
		})

		r.Post("/keys/check", deps.ModelHandler.HandleCheckKeys)

		r.Post("/chat", deps.ChatHandler.HandleChat)
		r.Route("/chat/sessions", func(r chi.Router) {
			r.Post("/", deps.ChatHandler.HandleCreateSession)
			r.Get("/", deps.ChatHandler.HandleListSessions)
			r.Get("/{id}", deps.ChatHandler.HandleGetSession)
			r.Delete("/{id}", deps.ChatHandler.HandleCloseSession)
			r.Post("/{id}/messages", deps.ChatHandler.HandleSendMessage)
			r.Patch("/{id}/model", deps.ChatHandler.HandleChangeModel)
		})

		r.Route("/usage", func(r chi.Router) {
			r.Get("/", deps.UsageHandler.HandleStats)
			r.Get("/models", deps.UsageHandler.HandleByModel)
			r.Get("/services", deps.UsageHandler.HandleByService)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	return r
}
