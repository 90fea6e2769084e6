package http

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"hitest/internal/app"
	"hitest/internal/auth"
)

// Options are the transport-level settings.
type Options struct {
	AdminPassword string
	// SecureCookies marks the admin cookie Secure; set in production.
	SecureCookies bool
	AllowedOrigin string
	Limits        Limits
	Window        time.Duration
}

// Limits are per-IP request budgets for the throttled routes.
type Limits struct {
	Login      int
	Start      int
	Complete   int
	CreateTest int
}

// Services bundles the use cases the handlers call.
type Services struct {
	Tests     *app.TestService
	Sessions  *app.SessionService
	Analytics *app.AnalyticsService
	Exports   *app.ExportService
	Feed      *app.Feed
}

// Server exposes the admin API, the participant API and the live feed.
type Server struct {
	svc      Services
	signer   *auth.Signer
	limiter  app.RateLimiter
	opts     Options
	upgrader websocket.Upgrader
}

func NewServer(svc Services, signer *auth.Signer, limiter app.RateLimiter, opts Options) *Server {
	if opts.Window <= 0 {
		opts.Window = time.Minute
	}
	return &Server{
		svc:     svc,
		signer:  signer,
		limiter: limiter,
		opts:    opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     sameOriginOr(opts.AllowedOrigin),
		},
	}
}

// Handler returns the routed handler wrapped in CORS and request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	// Participant flow.
	mux.HandleFunc("GET /test/{id}", s.handleParticipantEntry)
	mux.HandleFunc("GET /missing-params", s.handleMissingParams)
	mux.HandleFunc("POST /sessions/start", s.rateLimit("start", s.opts.Limits.Start, s.handleStartSession))
	mux.HandleFunc("POST /sessions/complete", s.rateLimit("complete", s.opts.Limits.Complete, s.handleCompleteSession))

	// Admin.
	mux.HandleFunc("POST /admin/login", s.rateLimit("login", s.opts.Limits.Login, s.handleLogin))
	mux.HandleFunc("DELETE /admin/login", s.handleLogout)
	mux.HandleFunc("GET /admin/dashboard", s.requireAdmin(s.handleDashboard))
	mux.HandleFunc("GET /admin/live", s.requireAdmin(s.handleLive))
	mux.HandleFunc("PATCH /sessions/{id}/validity", s.requireAdmin(s.handleSetValidity))

	mux.HandleFunc("GET /tests", s.requireAdmin(s.handleListTests))
	mux.HandleFunc("POST /tests", s.requireAdmin(s.rateLimit("create-test", s.opts.Limits.CreateTest, s.handleCreateTest)))
	mux.HandleFunc("GET /tests/{id}", s.handleGetTest)
	mux.HandleFunc("PUT /tests/{id}", s.requireAdmin(s.handleUpdateTest))
	mux.HandleFunc("POST /tests/{id}/tasks", s.requireAdmin(s.handleCreateTask))
	mux.HandleFunc("PUT /tests/{id}/tasks", s.requireAdmin(s.handleUpdateTask))
	mux.HandleFunc("DELETE /tests/{id}/tasks", s.requireAdmin(s.handleDeleteTask))
	mux.HandleFunc("POST /tests/{id}/questions", s.requireAdmin(s.handleCreateQuestion))
	mux.HandleFunc("PUT /tests/{id}/questions", s.requireAdmin(s.handleUpdateQuestion))
	mux.HandleFunc("DELETE /tests/{id}/questions", s.requireAdmin(s.handleDeleteQuestion))
	mux.HandleFunc("GET /tests/{id}/analytics", s.requireAdmin(s.handleTestAnalytics))
	mux.HandleFunc("GET /tests/{id}/export", s.requireAdmin(s.handleExport))

	return withLogging(withCORS(s.opts.AllowedOrigin, mux))
}

func sameOriginOr(allowed string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || allowed == "*" || origin == allowed {
			return true
		}
		return origin == "http://"+r.Host || origin == "https://"+r.Host
	}
}
