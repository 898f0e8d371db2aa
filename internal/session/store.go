// Package session owns the process-wide authentication state and the access
// decisions derived from it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"sync"

	"github.com/bjarke-xyz/hire-me-maybe/internal/domain"
)

const MinPasswordLength = 6

// Session is a read-only snapshot of the store's state.
type Session struct {
	Identity  *domain.Identity
	Loading   bool
	LastError domain.ErrorCode
}

func (s Session) Authenticated() bool {
	return !s.Loading && s.Identity != nil
}

// Recorder receives auth outcomes. metrics.Collector implements it.
type Recorder interface {
	RecordAuth(op string, outcome string)
	// AuthenticatedChanged is called when the session becomes authenticated
	// or stops being so.
	AuthenticatedChanged(authenticated bool)
}

type nopRecorder struct{}

func (nopRecorder) RecordAuth(string, string) {}
func (nopRecorder) AuthenticatedChanged(bool) {}

type command struct {
	apply func()
	done  chan struct{}
}

// Store holds the current identity of one browser. Provider notifications
// are its only writer apart from a sign in that passed its checks and
// explicit local invalidation (sign out, and the sign out that ends every
// sign up). Providers do not publish an identity they have merely
// authenticated, so the session never shows one that is still being checked.
//
// A single goroutine started by Start consumes the provider's event channel
// and applies commands; a command first drains every event the provider has
// already queued, so it always lands after the state changes caused by the
// provider calls that preceded it.
type Store struct {
	provider domain.AuthProvider
	logger   *slog.Logger
	recorder Recorder

	startOnce sync.Once
	commands  chan command

	ready chan struct{}

	mu            sync.RWMutex
	state         Session
	resolved      bool
	authenticated bool
	subs          map[int]chan Session
	next          int
}

func NewStore(logger *slog.Logger, provider domain.AuthProvider, recorder Recorder) *Store {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Store{
		provider: provider,
		logger:   logger,
		recorder: recorder,
		commands: make(chan command),
		ready:    make(chan struct{}),
		state:    Session{Loading: true},
		subs:     make(map[int]chan Session),
	}
}

// Start subscribes to the provider's identity feed. The subscription lives
// until ctx ends. Calling Start more than once has no effect.
func (s *Store) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		events := s.provider.Subscribe(ctx)
		go s.run(ctx, events)
	})
}

func (s *Store) run(ctx context.Context, events <-chan domain.IdentityEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.applyEvent(ev)
		case cmd := <-s.commands:
			s.drain(events)
			cmd.apply()
			close(cmd.done)
		}
	}
}

func (s *Store) drain(events <-chan domain.IdentityEvent) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.applyEvent(ev)
		default:
			return
		}
	}
}

func (s *Store) applyEvent(ev domain.IdentityEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Identity = ev.Identity
	if !s.resolved {
		s.resolved = true
		s.state.Loading = false
		close(s.ready)
	}
	s.publishLocked()
}

// do runs fn on the store goroutine and waits for it.
func (s *Store) do(ctx context.Context, fn func()) error {
	cmd := command{apply: fn, done: make(chan struct{})}
	select {
	case s.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-cmd.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) setIdentity(ctx context.Context, identity *domain.Identity) error {
	return s.do(ctx, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.state.Identity = identity
		s.publishLocked()
	})
}

// forceAnonymous is the explicit local invalidation: the session is anonymous
// when it returns, whatever the provider has or has not reported yet.
func (s *Store) forceAnonymous(ctx context.Context) {
	if err := s.setIdentity(ctx, nil); err != nil {
		// The store goroutine is gone; write directly.
		s.mu.Lock()
		s.state.Identity = nil
		s.publishLocked()
		s.mu.Unlock()
	}
}

// Resolved is closed once the first provider notification has been applied.
func (s *Store) Resolved() <-chan struct{} {
	return s.ready
}

// Snapshot returns the current session.
func (s *Store) Snapshot() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Session {
	snap := s.state
	if snap.Identity != nil {
		identity := *snap.Identity
		snap.Identity = &identity
	}
	return snap
}

// Subscribe returns a channel carrying the latest session after every
// change, starting with the current one. Slow readers only ever see the
// newest snapshot. The channel is closed when ctx ends.
func (s *Store) Subscribe(ctx context.Context) <-chan Session {
	ch := make(chan Session, 1)
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	ch <- s.snapshotLocked()
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()
	return ch
}

// publishLocked must be called with s.mu held for writing.
func (s *Store) publishLocked() {
	snap := s.snapshotLocked()
	if authenticated := snap.Authenticated(); authenticated != s.authenticated {
		s.authenticated = authenticated
		s.recorder.AuthenticatedChanged(authenticated)
	}
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

func (s *Store) setError(code domain.ErrorCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.LastError = code
	s.publishLocked()
}

// ClearError clears the last error without touching the identity.
func (s *Store) ClearError() {
	s.setError("")
}

// SignUp creates an account, sends the verification mail and signs the new
// identity out again. The session is anonymous when SignUp returns, whether
// or not it succeeded.
func (s *Store) SignUp(ctx context.Context, email string, password string) (domain.Identity, error) {
	s.ClearError()
	if err := validateCredentials(email, password); err != nil {
		s.fail("signup", err)
		return domain.Identity{}, err
	}

	identity, err := s.provider.CreateAccount(ctx, email, password)
	if err != nil {
		s.logger.Error("failed to create account", "error", err, "email", email)
		signupErr := &domain.SignupError{Code: domain.CodeOf(err), Reason: providerReason(err)}
		s.fail("signup", signupErr)
		return domain.Identity{}, signupErr
	}

	verifyErr := s.provider.SendVerificationEmail(ctx, identity)
	if verifyErr != nil {
		s.logger.Error("failed to send verification email", "error", verifyErr, "uid", identity.UID)
	}
	if err := s.provider.InvalidateSession(ctx); err != nil {
		s.logger.Error("failed to invalidate session after signup", "error", err, "uid", identity.UID)
	}
	s.forceAnonymous(ctx)

	if verifyErr != nil {
		signupErr := &domain.SignupError{Code: domain.CodeOf(verifyErr), Reason: "verification email could not be sent: " + providerReason(verifyErr)}
		s.fail("signup", signupErr)
		return identity, signupErr
	}
	s.recorder.RecordAuth("signup", "ok")
	return identity, nil
}

// SignIn authenticates and admits the identity only when its freshly
// loaded record shows a verified email and an enabled account.
func (s *Store) SignIn(ctx context.Context, email string, password string) (domain.Identity, error) {
	s.ClearError()
	if err := validateCredentials(email, password); err != nil {
		s.fail("signin", err)
		return domain.Identity{}, err
	}

	identity, err := s.provider.Authenticate(ctx, email, password)
	if err != nil {
		s.logger.Error("failed to authenticate", "error", err, "email", email)
		switch domain.CodeOf(err) {
		case domain.CodeInvalidCredential:
			err = fmt.Errorf("%w: %w", domain.ErrInvalidCredentials, err)
		case domain.CodeUserDisabled:
			err = fmt.Errorf("%w: %w", domain.ErrAccountDisabled, err)
		default:
			err = fmt.Errorf("sign in: %w", err)
		}
		s.fail("signin", err)
		return domain.Identity{}, err
	}

	// The flags returned by authentication can be stale right after the
	// user followed the verification link.
	fresh, err := s.provider.RefreshIdentity(ctx, identity)
	if err != nil {
		s.logger.Error("failed to refresh identity", "error", err, "uid", identity.UID)
		s.invalidate(ctx)
		err = fmt.Errorf("refresh identity: %w", err)
		s.fail("signin", err)
		return domain.Identity{}, err
	}

	if !fresh.EmailVerified {
		s.invalidate(ctx)
		if err := s.provider.SendVerificationEmail(ctx, fresh); err != nil {
			s.logger.Error("failed to resend verification email", "error", err, "uid", fresh.UID)
		}
		s.fail("signin", domain.ErrEmailNotVerified)
		return domain.Identity{}, domain.ErrEmailNotVerified
	}
	if fresh.Disabled {
		s.invalidate(ctx)
		s.fail("signin", domain.ErrAccountDisabled)
		return domain.Identity{}, domain.ErrAccountDisabled
	}

	if err := s.setIdentity(ctx, &fresh); err != nil {
		return domain.Identity{}, err
	}
	s.recorder.RecordAuth("signin", "ok")
	return fresh, nil
}

// SignOut invalidates the session. Local state is cleared even when the
// provider call fails; the result reports whether it succeeded.
func (s *Store) SignOut(ctx context.Context) bool {
	err := s.provider.InvalidateSession(ctx)
	s.forceAnonymous(ctx)
	if err != nil {
		s.logger.Error("failed to sign out", "error", err)
		s.fail("signout", err)
		return false
	}
	s.recorder.RecordAuth("signout", "ok")
	return true
}

func (s *Store) invalidate(ctx context.Context) {
	if err := s.provider.InvalidateSession(ctx); err != nil {
		s.logger.Error("failed to invalidate session", "error", err)
	}
	s.forceAnonymous(ctx)
}

func (s *Store) fail(op string, err error) {
	code := domain.CodeOf(err)
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		code = domain.CodeInvalidEmail
		if ve.Field == "password" {
			code = domain.CodeWeakPassword
		}
	}
	s.recorder.RecordAuth(op, string(code))
	s.setError(code)
}

func validateCredentials(email string, password string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return &domain.ValidationError{Field: "email", Message: "email must be a valid address"}
	}
	if len(password) < MinPasswordLength {
		return &domain.ValidationError{Field: "password", Message: fmt.Sprintf("password must be at least %d characters", MinPasswordLength)}
	}
	return nil
}

func providerReason(err error) string {
	var pe *domain.ProviderError
	if errors.As(err, &pe) && pe.Message != "" {
		return pe.Message
	}
	return err.Error()
}
