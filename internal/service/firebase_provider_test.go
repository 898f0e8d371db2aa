package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/bjarke-xyz/hire-me-maybe/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockAdminAuth struct {
	getUserFn func(ctx context.Context, uid string) (*auth.UserRecord, error)
	verifyFn  func(ctx context.Context, idToken string) (*auth.Token, error)

	mu       sync.Mutex
	verified []string
}

func (m *mockAdminAuth) GetUser(ctx context.Context, uid string) (*auth.UserRecord, error) {
	return m.getUserFn(ctx, uid)
}

func (m *mockAdminAuth) VerifyIDTokenAndCheckRevoked(ctx context.Context, idToken string) (*auth.Token, error) {
	m.mu.Lock()
	m.verified = append(m.verified, idToken)
	m.mu.Unlock()
	return m.verifyFn(ctx, idToken)
}

var (
	errExpired = errors.New("ID token has expired")
	errRevoked = errors.New("ID token has been revoked")
)

func testClassify(err error) tokenState {
	switch {
	case errors.Is(err, errExpired):
		return tokenExpired
	case errors.Is(err, errRevoked):
		return tokenRevoked
	}
	return tokenUnknown
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestFirebaseProvider(t *testing.T, admin AdminAuth, handler func(path string, body map[string]any) (int, any)) (*FirebaseProvider, *[]recordedRequest) {
	t.Helper()
	srv, requests := newIdentityToolkitServer(t, handler)
	rest := NewFirebaseAuthRestClient("k", "p").WithBaseURLs(srv.URL, srv.URL)
	p := NewFirebaseProvider(discardLogger(), rest, admin)
	p.classify = testClassify
	return p, requests
}

func signInHandler(path string, body map[string]any) (int, any) {
	switch path {
	case "/accounts:signInWithPassword", "/accounts:signUp":
		return http.StatusOK, map[string]any{"idToken": "id-1", "refreshToken": "refresh-1", "localId": "uid-1", "email": body["email"]}
	case "/token":
		return http.StatusOK, map[string]any{"id_token": "id-2", "refresh_token": "refresh-2", "user_id": "uid-1"}
	}
	return http.StatusOK, map[string]any{"email": "a@example.com"}
}

func nextEvent(t *testing.T, ch <-chan domain.IdentityEvent) domain.IdentityEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("no identity event")
	}
	return domain.IdentityEvent{}
}

func noEvent(t *testing.T, ch <-chan domain.IdentityEvent) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected identity event %+v", ev.Identity)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFirebaseProvider_AuthenticateHoldsCredentialsSilently(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p, _ := newTestFirebaseProvider(t, &mockAdminAuth{}, signInHandler)
	events := p.Subscribe(ctx)
	assert.Nil(t, nextEvent(t, events).Identity)

	identity, err := p.Authenticate(ctx, "a@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "uid-1", identity.UID)
	// admission is decided by the caller after its checks
	noEvent(t, events)

	_, err = p.CreateAccount(ctx, "b@example.com", "secret1")
	require.NoError(t, err)
	noEvent(t, events)

	require.NoError(t, p.InvalidateSession(ctx))
	assert.Nil(t, nextEvent(t, events).Identity)
}

func TestFirebaseProvider_AuthenticateRejected(t *testing.T) {
	p, _ := newTestFirebaseProvider(t, &mockAdminAuth{}, func(path string, body map[string]any) (int, any) {
		return http.StatusBadRequest, errorBody("INVALID_LOGIN_CREDENTIALS")
	})

	_, err := p.Authenticate(context.Background(), "a@example.com", "wrong")
	var perr *domain.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, domain.CodeInvalidCredential, perr.Code)
}

func TestFirebaseProvider_VerificationAfterSignOut(t *testing.T) {
	ctx := context.Background()
	p, requests := newTestFirebaseProvider(t, &mockAdminAuth{}, signInHandler)

	identity, err := p.CreateAccount(ctx, "a@example.com", "secret1")
	require.NoError(t, err)
	require.NoError(t, p.InvalidateSession(ctx))
	require.NoError(t, p.SendVerificationEmail(ctx, identity))

	last := (*requests)[len(*requests)-1]
	assert.Equal(t, "/accounts:sendOobCode", last.path)
	assert.Equal(t, "id-1", last.body["idToken"])

	err = p.SendVerificationEmail(ctx, domain.Identity{UID: "someone-else"})
	assert.Error(t, err)
}

func TestFirebaseProvider_RefreshIdentity(t *testing.T) {
	admin := &mockAdminAuth{getUserFn: func(ctx context.Context, uid string) (*auth.UserRecord, error) {
		return &auth.UserRecord{
			UserInfo:      &auth.UserInfo{UID: uid, Email: "a@example.com"},
			EmailVerified: true,
		}, nil
	}}
	p, _ := newTestFirebaseProvider(t, admin, signInHandler)

	identity, err := p.RefreshIdentity(context.Background(), domain.Identity{UID: "uid-1"})
	require.NoError(t, err)
	assert.Equal(t, domain.Identity{UID: "uid-1", Email: "a@example.com", EmailVerified: true}, identity)

	admin.getUserFn = func(ctx context.Context, uid string) (*auth.UserRecord, error) {
		return nil, errors.New("backend unavailable")
	}
	_, err = p.RefreshIdentity(context.Background(), domain.Identity{UID: "uid-1"})
	assert.ErrorContains(t, err, "backend unavailable")
}

func TestFirebaseProvider_CheckSession(t *testing.T) {
	t.Run("revoked token ends the session", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		admin := &mockAdminAuth{verifyFn: func(ctx context.Context, idToken string) (*auth.Token, error) {
			return nil, errRevoked
		}}
		p, _ := newTestFirebaseProvider(t, admin, signInHandler)
		_, err := p.Authenticate(ctx, "a@example.com", "secret1")
		require.NoError(t, err)
		events := p.Subscribe(ctx)
		assert.Nil(t, nextEvent(t, events).Identity)

		p.CheckSession(ctx)
		// published only when the held session was dropped
		assert.Nil(t, nextEvent(t, events).Identity)
	})

	t.Run("expired token is refreshed", func(t *testing.T) {
		ctx := context.Background()
		admin := &mockAdminAuth{verifyFn: func(ctx context.Context, idToken string) (*auth.Token, error) {
			if idToken == "id-1" {
				return nil, errExpired
			}
			return &auth.Token{UID: "uid-1"}, nil
		}}
		p, _ := newTestFirebaseProvider(t, admin, signInHandler)
		_, err := p.Authenticate(ctx, "a@example.com", "secret1")
		require.NoError(t, err)

		p.CheckSession(ctx)
		p.CheckSession(ctx)
		assert.Equal(t, []string{"id-1", "id-2"}, admin.verified)
		assert.True(t, p.holdsSession())
	})

	t.Run("rejected refresh ends the session", func(t *testing.T) {
		ctx := context.Background()
		admin := &mockAdminAuth{verifyFn: func(ctx context.Context, idToken string) (*auth.Token, error) {
			return nil, errExpired
		}}
		p, _ := newTestFirebaseProvider(t, admin, func(path string, body map[string]any) (int, any) {
			if path == "/token" {
				return http.StatusBadRequest, errorBody("TOKEN_EXPIRED")
			}
			return signInHandler(path, body)
		})
		_, err := p.Authenticate(ctx, "a@example.com", "secret1")
		require.NoError(t, err)

		p.CheckSession(ctx)
		assert.False(t, p.holdsSession())
	})

	t.Run("transient failure keeps the session", func(t *testing.T) {
		ctx := context.Background()
		admin := &mockAdminAuth{verifyFn: func(ctx context.Context, idToken string) (*auth.Token, error) {
			return nil, errors.New("dial tcp: timeout")
		}}
		p, _ := newTestFirebaseProvider(t, admin, signInHandler)
		_, err := p.Authenticate(ctx, "a@example.com", "secret1")
		require.NoError(t, err)

		p.CheckSession(ctx)
		assert.True(t, p.holdsSession())
	})

	t.Run("no session is a no-op", func(t *testing.T) {
		admin := &mockAdminAuth{}
		p, _ := newTestFirebaseProvider(t, admin, signInHandler)
		p.CheckSession(context.Background())
		assert.Empty(t, admin.verified)
	})
}

func TestIdentityFromRecord(t *testing.T) {
	identity := identityFromRecord(&auth.UserRecord{
		UserInfo: &auth.UserInfo{UID: "uid-1", Email: "a@example.com"},
		Disabled: true,
	})
	assert.Equal(t, domain.Identity{UID: "uid-1", Email: "a@example.com", Disabled: true}, identity)
}
