package http

import (
	"net/http"

	"github.com/atinyakov/SiteKeeper/internal/middleware"
	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// Handlers groups the handlers mounted by NewRouter. Storage may be nil
// when no object store is configured.
type Handlers struct {
	Auth     *AuthHandler
	Rest     *RestHandler
	Realtime *RealtimeHandler
	Storage  *StorageHandler
	Health   *HealthHandler
}

// NewRouter constructs and returns an HTTP handler that serves
// the SiteKeeper remote store.
//
// Routes:
//
//	POST   /api/register              → Auth.Register
//	POST   /api/login                 → Auth.Login
//	POST   /api/logout                → Auth.Logout
//	GET    /health                    → Health.Health
//	GET    /rest/v1/{table}           → Rest.Select
//	POST   /rest/v1/{table}           → Rest.Insert (upsert with ?on_conflict=)
//	PATCH  /rest/v1/{table}           → Rest.Update
//	DELETE /rest/v1/{table}           → Rest.Delete
//	GET    /realtime/v1               → Realtime.Watch (websocket)
//	PUT    /storage/v1/object/*       → Storage.Put
//	GET    /storage/v1/object/*       → Storage.Get
//	DELETE /storage/v1/object/*       → Storage.Delete
//
// Middleware chain (applied in order):
//  1. Recoverer             turns panics into 500s
//  2. WithRequestLogging    logs incoming requests
//  3. BearerAuth            enforces token auth except for register, login and /health
func NewRouter(h Handlers, auth middleware.Authenticator, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.WithRequestLogging(logger))
	r.Use(middleware.BearerAuth(auth))

	r.Get("/health", h.Health.Health)

	r.Route("/api", func(r chi.Router) {
		r.Use(chiMiddleware.AllowContentType("application/json"))
		r.Post("/register", h.Auth.Register)
		r.Post("/login", h.Auth.Login)
		r.Post("/logout", h.Auth.Logout)
	})

	r.Route("/rest/v1/{table}", func(r chi.Router) {
		r.Use(chiMiddleware.AllowContentType("application/json"))
		r.Get("/", h.Rest.Select)
		r.Post("/", h.Rest.Insert)
		r.Patch("/", h.Rest.Update)
		r.Delete("/", h.Rest.Delete)
	})

	r.Get("/realtime/v1", h.Realtime.Watch)

	if h.Storage != nil {
		r.Route("/storage/v1/object", func(r chi.Router) {
			r.Put("/*", h.Storage.Put)
			r.Get("/*", h.Storage.Get)
			r.Delete("/*", h.Storage.Delete)
		})
	}

	return r
}
