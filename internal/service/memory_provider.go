package service

import (
	"context"
	"strings"
	"sync"

	"github.com/bjarke-xyz/hire-me-maybe/internal/domain"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type memoryAccount struct {
	identity     domain.Identity
	passwordHash []byte
}

// MemoryAccounts is an in-process account directory for local development
// and tests. Verification mails are counted instead of sent. Every
// MemoryProvider created from it sees the same accounts.
type MemoryAccounts struct {
	cost int

	mu            sync.Mutex
	accounts      map[string]*memoryAccount // by email
	verifications map[string]int            // by email
	providers     map[*MemoryProvider]struct{}
}

// NewMemoryAccounts creates an empty directory. cost is the bcrypt cost; zero
// means bcrypt.DefaultCost.
func NewMemoryAccounts(cost int) *MemoryAccounts {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &MemoryAccounts{
		cost:          cost,
		accounts:      make(map[string]*memoryAccount),
		verifications: make(map[string]int),
		providers:     make(map[*MemoryProvider]struct{}),
	}
}

// NewProvider returns a provider with its own session on top of the shared
// accounts. The directory forgets it when ctx ends.
func (a *MemoryAccounts) NewProvider(ctx context.Context) *MemoryProvider {
	p := &MemoryProvider{accounts: a, feed: newIdentityFeed()}
	a.mu.Lock()
	a.providers[p] = struct{}{}
	a.mu.Unlock()
	go func() {
		<-ctx.Done()
		a.mu.Lock()
		delete(a.providers, p)
		a.mu.Unlock()
	}()
	return p
}

func (a *MemoryAccounts) create(email string, password string) (domain.Identity, error) {
	if !strings.Contains(email, "@") {
		return domain.Identity{}, &domain.ProviderError{Code: domain.CodeInvalidEmail, Message: "INVALID_EMAIL"}
	}
	if len(password) < 6 {
		return domain.Identity{}, &domain.ProviderError{Code: domain.CodeWeakPassword, Message: "WEAK_PASSWORD : Password should be at least 6 characters"}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return domain.Identity{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.accounts[email]; ok {
		return domain.Identity{}, &domain.ProviderError{Code: domain.CodeEmailInUse, Message: "EMAIL_EXISTS"}
	}
	identity := domain.Identity{UID: uuid.NewString(), Email: email}
	a.accounts[email] = &memoryAccount{identity: identity, passwordHash: hash}
	return identity, nil
}

func (a *MemoryAccounts) authenticate(email string, password string) (domain.Identity, error) {
	a.mu.Lock()
	account, ok := a.accounts[email]
	a.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(account.passwordHash, []byte(password)) != nil {
		return domain.Identity{}, &domain.ProviderError{Code: domain.CodeInvalidCredential, Message: "INVALID_LOGIN_CREDENTIALS"}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if account.identity.Disabled {
		return domain.Identity{}, &domain.ProviderError{Code: domain.CodeUserDisabled, Message: "USER_DISABLED"}
	}
	return account.identity, nil
}

// lookup returns the stored identity for uid's account, keyed by email.
func (a *MemoryAccounts) lookup(identity domain.Identity) (domain.Identity, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	account, ok := a.accounts[strings.ToLower(identity.Email)]
	if !ok || account.identity.UID != identity.UID {
		return domain.Identity{}, false
	}
	return account.identity, true
}

// VerifyEmail marks the account's email as verified, as following the mailed link would.
func (a *MemoryAccounts) VerifyEmail(email string) bool {
	return a.updateAccount(email, func(identity *domain.Identity) { identity.EmailVerified = true })
}

// Disable marks the account as administratively disabled.
func (a *MemoryAccounts) Disable(email string) bool {
	return a.updateAccount(email, func(identity *domain.Identity) { identity.Disabled = true })
}

// Revoke ends every session held for uid, as a remote revocation would.
func (a *MemoryAccounts) Revoke(uid string) {
	a.mu.Lock()
	providers := make([]*MemoryProvider, 0, len(a.providers))
	for p := range a.providers {
		providers = append(providers, p)
	}
	a.mu.Unlock()
	for _, p := range providers {
		p.revoke(uid)
	}
}

// VerificationsSent returns how many verification mails went to email.
func (a *MemoryAccounts) VerificationsSent(email string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.verifications[strings.ToLower(email)]
}

func (a *MemoryAccounts) updateAccount(email string, update func(*domain.Identity)) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	account, ok := a.accounts[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return false
	}
	update(&account.identity)
	return true
}

// MemoryProvider is a domain.AuthProvider backed by MemoryAccounts. It holds
// the session of one browser.
//
// Like FirebaseProvider it only reports changes it discovers itself
// (invalidation, revocation); whether a sign in is admitted is up to the
// caller.
type MemoryProvider struct {
	accounts *MemoryAccounts
	feed     *identityFeed

	mu      sync.Mutex
	current *domain.Identity
}

// NewMemoryProvider creates a provider with its own empty account directory.
func NewMemoryProvider(cost int) *MemoryProvider {
	return NewMemoryAccounts(cost).NewProvider(context.Background())
}

// Accounts returns the directory the provider authenticates against.
func (p *MemoryProvider) Accounts() *MemoryAccounts {
	return p.accounts
}

// CreateAccount implements domain.AuthProvider.
func (p *MemoryProvider) CreateAccount(ctx context.Context, email string, password string) (domain.Identity, error) {
	identity, err := p.accounts.create(strings.ToLower(strings.TrimSpace(email)), password)
	if err != nil {
		return domain.Identity{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = copyIdentity(&identity)
	return identity, nil
}

// Authenticate implements domain.AuthProvider.
func (p *MemoryProvider) Authenticate(ctx context.Context, email string, password string) (domain.Identity, error) {
	identity, err := p.accounts.authenticate(strings.ToLower(strings.TrimSpace(email)), password)
	if err != nil {
		return domain.Identity{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = copyIdentity(&identity)
	return identity, nil
}

// SendVerificationEmail implements domain.AuthProvider.
func (p *MemoryProvider) SendVerificationEmail(ctx context.Context, identity domain.Identity) error {
	if _, ok := p.accounts.lookup(identity); !ok {
		return &domain.ProviderError{Code: domain.CodeInvalidCredential, Message: "USER_NOT_FOUND"}
	}
	p.accounts.mu.Lock()
	p.accounts.verifications[strings.ToLower(identity.Email)]++
	p.accounts.mu.Unlock()
	return nil
}

// InvalidateSession implements domain.AuthProvider.
func (p *MemoryProvider) InvalidateSession(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = nil
	p.feed.publish(nil)
	return nil
}

// RefreshIdentity implements domain.AuthProvider.
func (p *MemoryProvider) RefreshIdentity(ctx context.Context, identity domain.Identity) (domain.Identity, error) {
	fresh, ok := p.accounts.lookup(identity)
	if !ok {
		return domain.Identity{}, &domain.ProviderError{Code: domain.CodeInvalidCredential, Message: "USER_NOT_FOUND"}
	}
	return fresh, nil
}

// Subscribe implements domain.AuthProvider.
func (p *MemoryProvider) Subscribe(ctx context.Context) <-chan domain.IdentityEvent {
	return p.feed.Subscribe(ctx)
}

func (p *MemoryProvider) VerifyEmail(email string) bool { return p.accounts.VerifyEmail(email) }

func (p *MemoryProvider) Disable(email string) bool { return p.accounts.Disable(email) }

func (p *MemoryProvider) Revoke(uid string) { p.accounts.Revoke(uid) }

func (p *MemoryProvider) VerificationsSent(email string) int {
	return p.accounts.VerificationsSent(email)
}

// revoke publishes absence when the held session belongs to uid. The event
// is published with p.mu held so events keep the order of the state changes.
func (p *MemoryProvider) revoke(uid string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil && p.current.UID == uid {
		p.current = nil
		p.feed.publish(nil)
	}
}
