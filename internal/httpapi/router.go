package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"exam-app/internal/auth"
)

const defaultMaxLogBytes = 2048

type RouterOptions struct {
	CORSOrigins    []string
	RequestTimeout time.Duration
	// MaxLogBytes caps how much of each response body is kept for debug logs.
	MaxLogBytes int
}

func NewRouter(api *API, opts RouterOptions) http.Handler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.MaxLogBytes <= 0 {
		opts.MaxLogBytes = defaultMaxLogBytes
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(opts.MaxLogBytes), middleware.Recoverer)
	r.Use(middleware.Timeout(opts.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		ExposedHeaders: []string{"Content-Length", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", api.HandleHealth)
	r.Post("/auth/login", api.HandleLogin)

	r.Group(func(pr chi.Router) {
		pr.Use(api.authenticate)

		pr.Get("/tests", api.HandleListTests)
		pr.Get("/tests/{testID}", api.HandleGetTest)

		pr.Post("/attempts", api.HandleCreateAttempt)
		pr.Get("/attempts/active", api.HandleActiveAttempt)
		pr.Get("/attempts/{attemptID}", api.HandleGetAttempt)
		pr.Patch("/attempts/{attemptID}", api.HandleUpdateAttempt)
		pr.Post("/attempts/{attemptID}/finalize", api.HandleFinalizeAttempt)

		pr.Group(func(ar chi.Router) {
			ar.Use(requireRole(auth.RoleAdmin))
			ar.Post("/tests/practice", api.HandleCreatePracticeTest)
			ar.Get("/attempts", api.HandleListAttempts)
			ar.Post("/admin/attempts/cleanup", api.HandleCleanupAttempts)
		})
	})

	return r
}
