package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bjarke-xyz/hire-me-maybe/internal/dashboard"
	"github.com/bjarke-xyz/hire-me-maybe/internal/domain"
	"github.com/bjarke-xyz/hire-me-maybe/internal/metrics"
	"github.com/bjarke-xyz/hire-me-maybe/internal/session"
	"github.com/google/uuid"
)

const sessionCookieName = "SESSION_ID"

// resolveWait bounds how long opening a session waits for the provider's
// first notification before pages fall back to the waiting page.
var resolveWait = 250 * time.Millisecond

// ProviderFactory returns the auth provider holding one browser's
// credentials. Background work the provider starts must end with ctx.
type ProviderFactory func(ctx context.Context) (domain.AuthProvider, error)

// browserSession is the state one browser owns: its session store, its
// dashboard and, through the store, its provider credentials.
type browserSession struct {
	id        string
	store     *session.Store
	dashboard *dashboard.Dashboard
	ctx       context.Context
	cancel    context.CancelFunc

	lastSeen time.Time // guarded by browserSessions.mu
}

// browserSessions keys browser sessions by the SESSION_ID cookie. Sessions
// idle for longer than idleTimeout are closed.
type browserSessions struct {
	ctx          context.Context
	logger       *slog.Logger
	newProvider  ProviderFactory
	repo         domain.ApplicationRepository
	collector    *metrics.Collector
	idleTimeout  time.Duration
	secureCookie bool
	// onOpen runs for every new session, e.g. to relay it to websockets.
	onOpen func(bs *browserSession)

	mu       sync.Mutex
	sessions map[string]*browserSession
}

func newBrowserSessions(ctx context.Context, logger *slog.Logger, newProvider ProviderFactory, repo domain.ApplicationRepository, collector *metrics.Collector, opts Options) *browserSessions {
	return &browserSessions{
		ctx:          ctx,
		logger:       logger,
		newProvider:  newProvider,
		repo:         repo,
		collector:    collector,
		idleTimeout:  opts.SessionIdleTimeout,
		secureCookie: opts.SecureCookies,
		sessions:     make(map[string]*browserSession),
	}
}

// lookup returns the session named by the request's cookie, or nil.
func (b *browserSessions) lookup(r *http.Request) *browserSession {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	bs, ok := b.sessions[cookie.Value]
	if !ok {
		return nil
	}
	bs.lastSeen = time.Now()
	return bs
}

// open returns the request's session, creating one and setting its cookie
// when the request has none.
func (b *browserSessions) open(w http.ResponseWriter, r *http.Request) (*browserSession, error) {
	if bs := b.lookup(r); bs != nil {
		return bs, nil
	}
	bs, err := b.create()
	if err != nil {
		return nil, err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    bs.id,
		Path:     "/",
		MaxAge:   int(b.idleTimeout.Seconds()),
		HttpOnly: true,
		Secure:   b.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	return bs, nil
}

func (b *browserSessions) create() (*browserSession, error) {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(b.ctx)
	provider, err := b.newProvider(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("error creating auth provider: %w", err)
	}

	logger := b.logger.With("session", id[:8])
	var recorder session.Recorder
	if b.collector != nil {
		recorder = b.collector
	}
	store := session.NewStore(logger, provider, recorder)
	store.Start(ctx)
	board := dashboard.New(logger, b.repo)
	go board.Watch(ctx, store.Subscribe(ctx))

	bs := &browserSession{
		id:        id,
		store:     store,
		dashboard: board,
		ctx:       ctx,
		cancel:    cancel,
		lastSeen:  time.Now(),
	}
	b.mu.Lock()
	b.sessions[id] = bs
	b.mu.Unlock()
	if b.collector != nil {
		b.collector.SessionOpened()
	}
	if b.onOpen != nil {
		b.onOpen(bs)
	}
	logger.Info("opened browser session")

	select {
	case <-store.Resolved():
	case <-time.After(resolveWait):
	}
	return bs, nil
}

func (b *browserSessions) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sessions)
}

// cleanupLoop closes idle sessions until the server context ends.
func (b *browserSessions) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-b.ctx.Done():
			return
		case now := <-ticker.C:
			b.cleanup(now)
		}
	}
}

// cleanup closes sessions not seen for longer than idleTimeout before now.
func (b *browserSessions) cleanup(now time.Time) {
	b.mu.Lock()
	var idle []*browserSession
	for id, bs := range b.sessions {
		if now.Sub(bs.lastSeen) > b.idleTimeout {
			delete(b.sessions, id)
			idle = append(idle, bs)
		}
	}
	b.mu.Unlock()

	for _, bs := range idle {
		bs.cancel()
		if b.collector != nil {
			b.collector.SessionClosed()
			if bs.store.Snapshot().Authenticated() {
				b.collector.AuthenticatedChanged(false)
			}
		}
		b.logger.Info("closed idle browser session", "session", bs.id[:8])
	}
}
