package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/bjarke-xyz/hire-me-maybe/internal/dashboard"
	"github.com/bjarke-xyz/hire-me-maybe/internal/domain"
	"github.com/bjarke-xyz/hire-me-maybe/internal/server/html"
	"github.com/bjarke-xyz/hire-me-maybe/internal/session"
)

const (
	noticeSignedUp  = "Account created! Please verify your email and login"
	noticeSignedIn  = "Logged in successfully!"
	noticeSignedOut = "You have been logged out successfully"
	noticeLoginWall = "Please log in to continue."
	msgSignOutError = "Logout failed. Your local session was cleared."
)

var (
	IdentityCtxKey       = &contextKey{"Identity"}
	browserSessionCtxKey = &contextKey{"BrowserSession"}
)

type contextKey struct {
	name string
}

func NewContext(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(ctx, IdentityCtxKey, identity)
}

func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	identity, ok := ctx.Value(IdentityCtxKey).(domain.Identity)
	return identity, ok
}

// current returns the browser session of the request, or nil when the
// request carries no known session cookie.
func (s *server) current(r *http.Request) *browserSession {
	if bs, ok := r.Context().Value(browserSessionCtxKey).(*browserSession); ok {
		return bs
	}
	return s.sessions.lookup(r)
}

// snapshot is the request's session. Without a browser session it is
// resolved and anonymous.
func (s *server) snapshot(r *http.Request) session.Session {
	if bs := s.current(r); bs != nil {
		return bs.store.Snapshot()
	}
	return session.Session{}
}

func (s *server) base(r *http.Request, title string) html.Base {
	b := html.Base{
		Title:  title,
		Theme:  dashboard.Themes[0],
		Error:  r.URL.Query().Get("error"),
		Notice: r.URL.Query().Get("notice"),
	}
	bs := s.current(r)
	if bs == nil {
		return b
	}
	b.Theme = bs.dashboard.Theme()
	if identity := bs.store.Snapshot().Identity; identity != nil {
		b.Email = identity.Email
	}
	return b
}

// requireSession lets signed in users through. Visitors are sent to the
// landing page, and a waiting page is shown until the first provider
// notification has arrived.
func (s *server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bs := s.sessions.lookup(r)
		sess := session.Session{}
		if bs != nil {
			sess = bs.store.Snapshot()
		}
		verdict := session.Guard(sess, r.URL.Path, "/")
		switch verdict.Decision {
		case session.Wait:
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusServiceUnavailable)
			html.WaitingPage(w, html.WaitingParams{Base: s.base(r, "Loading")})
			return
		case session.Redirect:
			http.Redirect(w, r, verdict.Location, http.StatusSeeOther)
			return
		}
		ctx := NewContext(r.Context(), *sess.Identity)
		ctx = context.WithValue(ctx, browserSessionCtxKey, bs)
		bs.dashboard.SetIdentity(ctx, sess.Identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// dash is the dashboard of a request that passed requireSession.
func dash(r *http.Request) *dashboard.Dashboard {
	return r.Context().Value(browserSessionCtxKey).(*browserSession).dashboard
}

func (s *server) handleLanding(w http.ResponseWriter, r *http.Request) {
	params := html.LandingParams{
		Base:     s.base(r, "Welcome"),
		SignedIn: s.snapshot(r).Authenticated(),
	}
	if r.URL.Query().Get("reason") == session.ReasonUnauthenticated && params.Error == "" {
		params.Error = noticeLoginWall
	}
	html.LandingPage(w, params)
}

func (s *server) handleGetLogin(w http.ResponseWriter, r *http.Request) {
	if s.snapshot(r).Authenticated() {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	html.LoginPage(w, html.LoginParams{
		Base:    s.base(r, "Login"),
		Prefill: r.URL.Query().Get("email"),
		From:    r.URL.Query().Get("from"),
	})
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")
	from := r.FormValue("from")

	bs, err := s.sessions.open(w, r)
	if err != nil {
		s.logger.Error("failed to open browser session", "error", err)
		http.Error(w, "could not start a session", http.StatusInternalServerError)
		return
	}
	identity, err := bs.store.SignIn(r.Context(), email, password)
	if err != nil {
		q := fmt.Sprintf("email=%v&%v", url.QueryEscape(email), errorQuery(loginMessage(err)))
		if from != "" {
			q += "&from=" + url.QueryEscape(from)
		}
		http.Redirect(w, r, "/login?"+q, http.StatusSeeOther)
		return
	}

	bs.dashboard.SetIdentity(r.Context(), &identity)
	http.Redirect(w, r, safeRedirect(from)+"?"+noticeQuery(noticeSignedIn), http.StatusSeeOther)
}

func loginMessage(err error) string {
	if errors.Is(err, domain.ErrEmailNotVerified) {
		return domain.CodeEmailNotVerified.Message() + " A new verification email has been sent."
	}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	return domain.CodeOf(err).Message()
}

func (s *server) handleGetSignup(w http.ResponseWriter, r *http.Request) {
	html.SignupPage(w, html.SignupParams{Base: s.base(r, "Sign up")})
}

func (s *server) handleSignup(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")

	bs, err := s.sessions.open(w, r)
	if err != nil {
		s.logger.Error("failed to open browser session", "error", err)
		http.Error(w, "could not start a session", http.StatusInternalServerError)
		return
	}
	_, err = bs.store.SignUp(r.Context(), email, password)
	if err != nil {
		var signupErr *domain.SignupError
		if errors.As(err, &signupErr) && strings.HasPrefix(signupErr.Reason, "verification email") {
			// the account exists, only the mail failed
			http.Redirect(w, r, fmt.Sprintf("/login?email=%v&%v", url.QueryEscape(email), errorQuery(signupErr.Error())), http.StatusSeeOther)
			return
		}
		http.Redirect(w, r, "/signup?"+errorQuery(signupMessage(err)), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, fmt.Sprintf("/login?email=%v&%v", url.QueryEscape(email), noticeQuery(noticeSignedUp)), http.StatusSeeOther)
}

func signupMessage(err error) string {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return "Signup failed: " + ve.Message
	}
	var signupErr *domain.SignupError
	if errors.As(err, &signupErr) {
		return "Signup failed: " + signupErr.Code.Message()
	}
	return "Signup failed: " + err.Error()
}

func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	ok := true
	if bs := s.sessions.lookup(r); bs != nil {
		ok = bs.store.SignOut(r.Context())
		bs.dashboard.SetIdentity(r.Context(), nil)
	}
	if !ok {
		http.Redirect(w, r, "/?"+errorQuery(msgSignOutError), http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/?"+noticeQuery(noticeSignedOut), http.StatusSeeOther)
}

func (s *server) handleTheme(w http.ResponseWriter, r *http.Request) {
	theme := r.FormValue("theme")
	if !slices.Contains(dashboard.Themes, theme) {
		http.Error(w, "unknown theme", http.StatusBadRequest)
		return
	}
	bs, err := s.sessions.open(w, r)
	if err != nil {
		s.logger.Error("failed to open browser session", "error", err)
		http.Error(w, "could not start a session", http.StatusInternalServerError)
		return
	}
	if !bs.dashboard.SetTheme(theme) {
		http.Error(w, "unknown theme", http.StatusBadRequest)
		return
	}
	back := "/"
	if ref, err := parseReferer(r); err == nil && ref != "" {
		back = ref
	}
	http.Redirect(w, r, back, http.StatusSeeOther)
}

// safeRedirect only allows local paths below /dashboard.
func safeRedirect(from string) string {
	if from == "/dashboard" || strings.HasPrefix(from, "/dashboard/") {
		return from
	}
	return "/dashboard"
}

// parseReferer returns the referring path when it points at this host.
func parseReferer(r *http.Request) (string, error) {
	ref, err := url.Parse(r.Referer())
	if err != nil {
		return "", err
	}
	if ref.Host != "" && ref.Host != r.Host {
		return "", fmt.Errorf("foreign referer %v", ref.Host)
	}
	if !strings.HasPrefix(ref.Path, "/") {
		return "", nil
	}
	return ref.RequestURI(), nil
}
