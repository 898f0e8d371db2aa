package server

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/bjarke-xyz/hire-me-maybe/internal/domain"
	"github.com/bjarke-xyz/hire-me-maybe/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"
)

//go:embed static
var staticFiles embed.FS

type server struct {
	logger *slog.Logger

	sessions  *browserSessions
	collector *metrics.Collector

	authLimiter *rateLimiter
	broker      *WsBroker

	staticFilesFs fs.FS
}

type Options struct {
	// LoginRatePerMinute limits login and signup attempts per client.
	LoginRatePerMinute int
	// SessionIdleTimeout closes browser sessions that have not been used for this long.
	SessionIdleTimeout time.Duration
	// SecureCookies marks the session cookie Secure.
	SecureCookies bool
}

// NewServer builds the HTTP surface. Every browser gets its own session
// store and dashboard, with a provider from newProvider. The websocket
// broker and the cleanup loops run until ctx ends.
func NewServer(ctx context.Context, logger *slog.Logger, newProvider ProviderFactory, repo domain.ApplicationRepository, collector *metrics.Collector, opts Options) (*server, error) {
	staticFilesFs, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return nil, err
	}
	if opts.LoginRatePerMinute <= 0 {
		opts.LoginRatePerMinute = 10
	}
	if opts.SessionIdleTimeout <= 0 {
		opts.SessionIdleTimeout = 24 * time.Hour
	}
	s := &server{
		logger:        logger,
		sessions:      newBrowserSessions(ctx, logger, newProvider, repo, collector, opts),
		collector:     collector,
		authLimiter:   newRateLimiter(rate.Limit(float64(opts.LoginRatePerMinute)/60.0), opts.LoginRatePerMinute),
		broker:        newWsBroker(ctx),
		staticFilesFs: staticFilesFs,
	}
	s.sessions.onOpen = func(bs *browserSession) {
		go s.relaySession(bs)
	}
	go s.broker.Listen(logger)
	go s.sessions.cleanupLoop(opts.SessionIdleTimeout / 2)
	go s.authLimiter.cleanupLoop(ctx, 5*time.Minute)
	return s, nil
}

func (s *server) Server(port int) *http.Server {
	return &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: s.routes(),
	}
}

func errorQuery(errMsg string) string {
	if errMsg == "" {
		return ""
	}
	return "error=" + url.QueryEscape(errMsg)
}

func noticeQuery(msg string) string {
	if msg == "" {
		return ""
	}
	return "notice=" + url.QueryEscape(msg)
}

func (s *server) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(s.staticFilesFs))))
	r.Get("/up", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "up!")
	})

	r.Get("/", s.handleLanding)
	r.Get("/login", s.handleGetLogin)
	r.With(s.authLimiter.Middleware).Post("/login", s.handleLogin)
	r.Get("/signup", s.handleGetSignup)
	r.With(s.authLimiter.Middleware).Post("/signup", s.handleSignup)
	r.Post("/logout", s.handleLogout)
	r.Post("/theme", s.handleTheme)

	r.Get("/ws/session", s.handleWsSession)
	r.Get("/api/session", s.handleApiSession)

	r.Route("/dashboard", func(r chi.Router) {
		r.Use(s.requireSession)
		r.Get("/", s.handleGetDashboard)
		r.Get("/new", s.handleNewDraft)
		r.Get("/edit/{record-id}", s.handleEditDraft)
		r.Post("/draft", s.handleSubmitDraft)
		r.Post("/draft/cancel", s.handleCancelDraft)
		r.Get("/delete/{record-id}", s.handleGetDelete)
		r.Post("/delete/{record-id}", s.handlePostDelete)
		r.Post("/refresh", s.handleRefresh)
	})
	r.With(s.requireSession).Get("/api/applications", s.handleApiApplications)
	return r
}
