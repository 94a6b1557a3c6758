package http

import (
	"net/http"
	"time"

	"dmcore/internal/authz"
	"dmcore/internal/observability/middleware"
	"dmcore/internal/service"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Options struct {
	Auth          authz.Validator
	CORSOrigins   []string
	RatePerMinute int
	PingInterval  time.Duration
	// RequestTimeout bounds every route except the event stream.
	RequestTimeout time.Duration
}

type api struct {
	svc  *service.Service
	opts Options
}

func NewRouter(svc *service.Service, opts Options) http.Handler {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	a := &api{svc: svc, opts: opts}

	r := chi.NewRouter()
	r.Use(middleware.WithRequestAndTrace)
	r.Use(middleware.WithMetrics)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if opts.RatePerMinute > 0 {
		r.Use(httprate.LimitByIP(opts.RatePerMinute, time.Minute))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id", "X-Trace-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		// Identity travels in bearer tokens, never cookies.
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(authz.Middleware(opts.Auth))

		v1.Get("/stream", a.stream)

		v1.Group(func(g chi.Router) {
			g.Use(chimw.Timeout(opts.RequestTimeout))

			g.Post("/keys", a.provisionKeys)
			g.Get("/keys/me", a.ownKeys)
			g.Get("/keys/{userId}/public", a.publicKey)

			g.Get("/conversations", a.listConversations)
			g.Post("/conversations", a.resolveConversation)
			g.Get("/conversations/{id}/messages", a.listMessages)
			g.Post("/conversations/{id}/seen", a.markConversationSeen)

			g.Post("/messages", a.sendMessage)
			g.Get("/messages/{id}", a.getMessage)
			g.Post("/messages/{id}/seen", a.markMessageSeen)

			g.Get("/unread-count", a.unreadCount)
		})
	})

	return r
}
