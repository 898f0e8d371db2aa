package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"firebase.google.com/go/v4/auth"
	"firebase.google.com/go/v4/errorutils"
	"github.com/bjarke-xyz/hire-me-maybe/internal/domain"
)

// AdminAuth is the part of the Firebase Admin SDK auth client the provider uses.
// *auth.Client satisfies it.
type AdminAuth interface {
	GetUser(ctx context.Context, uid string) (*auth.UserRecord, error)
	VerifyIDTokenAndCheckRevoked(ctx context.Context, idToken string) (*auth.Token, error)
}

type tokenState int

const (
	tokenUnknown tokenState = iota
	tokenExpired
	tokenRevoked
)

func classifyTokenError(err error) tokenState {
	switch {
	case auth.IsIDTokenExpired(err):
		return tokenExpired
	case auth.IsIDTokenRevoked(err), auth.IsUserDisabled(err):
		return tokenRevoked
	}
	return tokenUnknown
}

type credential struct {
	identity     domain.Identity
	idToken      string
	refreshToken string
}

// FirebaseProvider implements domain.AuthProvider on top of the Identity
// Toolkit REST API (password sign-in, account creation, verification mail)
// and the Admin SDK (fresh user records, revocation checks). It holds the
// credentials of a single signed in user, like the browser SDK does, so
// every browser session gets its own provider.
//
// Only the loss of a session is published. Credentials obtained by
// CreateAccount or Authenticate are held silently; admitting the identity is
// up to the caller once its own checks pass.
type FirebaseProvider struct {
	rest     *FirebaseAuthRestClient
	admin    AdminAuth
	logger   *slog.Logger
	feed     *identityFeed
	classify func(error) tokenState

	mu      sync.Mutex
	current *credential
	// last is kept after InvalidateSession so a verification mail can still
	// be sent for an identity that was just signed out.
	last *credential
}

func NewFirebaseProvider(logger *slog.Logger, rest *FirebaseAuthRestClient, admin AdminAuth) *FirebaseProvider {
	return &FirebaseProvider{
		rest:     rest,
		admin:    admin,
		logger:   logger,
		feed:     newIdentityFeed(),
		classify: classifyTokenError,
	}
}

// CreateAccount implements domain.AuthProvider.
func (p *FirebaseProvider) CreateAccount(ctx context.Context, email string, password string) (domain.Identity, error) {
	resp, err := p.rest.SignUpWithEmailAndPassword(ctx, email, password)
	if err != nil {
		return domain.Identity{}, &domain.ProviderError{Code: domain.CodeNetworkFailed, Message: err.Error()}
	}
	if resp.Error != nil {
		return domain.Identity{}, resp.Error.ProviderError()
	}
	return p.signedIn(resp), nil
}

// Authenticate implements domain.AuthProvider.
func (p *FirebaseProvider) Authenticate(ctx context.Context, email string, password string) (domain.Identity, error) {
	resp, err := p.rest.SignInWithEmailAndPassword(ctx, email, password)
	if err != nil {
		return domain.Identity{}, &domain.ProviderError{Code: domain.CodeNetworkFailed, Message: err.Error()}
	}
	if resp.Error != nil {
		return domain.Identity{}, resp.Error.ProviderError()
	}
	return p.signedIn(resp), nil
}

func (p *FirebaseProvider) signedIn(resp IdTokenResponse) domain.Identity {
	identity := domain.Identity{UID: resp.LocalId, Email: resp.Email}
	cred := &credential{identity: identity, idToken: resp.IdToken, refreshToken: resp.RefreshToken}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = cred
	p.last = cred
	return identity
}

// SendVerificationEmail implements domain.AuthProvider.
func (p *FirebaseProvider) SendVerificationEmail(ctx context.Context, identity domain.Identity) error {
	p.mu.Lock()
	cred := p.last
	p.mu.Unlock()
	if cred == nil || cred.identity.UID != identity.UID {
		return fmt.Errorf("no credentials held for user %v", identity.UID)
	}
	resp, err := p.rest.SendEmailVerification(ctx, cred.idToken)
	if err != nil {
		return &domain.ProviderError{Code: domain.CodeNetworkFailed, Message: err.Error()}
	}
	if resp.Error != nil {
		return resp.Error.ProviderError()
	}
	return nil
}

// InvalidateSession implements domain.AuthProvider. Like the browser SDK's
// signOut it only drops the local credentials.
func (p *FirebaseProvider) InvalidateSession(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = nil
	p.feed.publish(nil)
	return nil
}

// RefreshIdentity implements domain.AuthProvider.
func (p *FirebaseProvider) RefreshIdentity(ctx context.Context, identity domain.Identity) (domain.Identity, error) {
	user, err := p.admin.GetUser(ctx, identity.UID)
	if err != nil {
		if errorutils.IsNotFound(err) {
			return domain.Identity{}, &domain.ProviderError{Code: domain.CodeInvalidCredential, Message: "user not found"}
		}
		return domain.Identity{}, fmt.Errorf("error getting user: %w", err)
	}
	refreshed := identityFromRecord(user)
	p.mu.Lock()
	if p.current != nil && p.current.identity.UID == refreshed.UID {
		p.current.identity = refreshed
	}
	p.mu.Unlock()
	return refreshed, nil
}

// Subscribe implements domain.AuthProvider.
func (p *FirebaseProvider) Subscribe(ctx context.Context) <-chan domain.IdentityEvent {
	return p.feed.Subscribe(ctx)
}

// WatchSession verifies the held ID token every interval until ctx ends.
func (p *FirebaseProvider) WatchSession(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.CheckSession(ctx)
		}
	}
}

// CheckSession keeps the held session alive: an expired ID token is
// refreshed, a revoked one (or a disabled user) ends the session.
func (p *FirebaseProvider) CheckSession(ctx context.Context) {
	p.mu.Lock()
	cred := p.current
	p.mu.Unlock()
	if cred == nil {
		return
	}

	_, err := p.admin.VerifyIDTokenAndCheckRevoked(ctx, cred.idToken)
	if err == nil {
		return
	}
	switch p.classify(err) {
	case tokenExpired:
		resp, refreshErr := p.rest.RefreshIdToken(ctx, cred.refreshToken)
		if refreshErr != nil {
			p.logger.Warn("failed to refresh id token", "error", refreshErr, "uid", cred.identity.UID)
			return
		}
		if resp.Error == nil {
			p.mu.Lock()
			if p.current == cred {
				p.current = &credential{identity: cred.identity, idToken: resp.IdToken, refreshToken: resp.RefreshToken}
				p.last = p.current
			}
			p.mu.Unlock()
			return
		}
		err = resp.Error
	case tokenUnknown:
		p.logger.Warn("failed to verify id token", "error", err, "uid", cred.identity.UID)
		return
	}

	p.logger.Info("session ended by provider", "reason", err.Error(), "uid", cred.identity.UID)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == cred {
		p.current = nil
		p.feed.publish(nil)
	}
}

func (p *FirebaseProvider) holdsSession() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != nil
}

func identityFromRecord(user *auth.UserRecord) domain.Identity {
	identity := domain.Identity{
		EmailVerified: user.EmailVerified,
		Disabled:      user.Disabled,
	}
	if user.UserInfo != nil {
		identity.UID = user.UID
		identity.Email = user.Email
	}
	return identity
}
