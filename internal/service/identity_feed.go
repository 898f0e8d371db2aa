package service

import (
	"context"
	"sync"

	"github.com/bjarke-xyz/hire-me-maybe/internal/domain"
)

// identityFeed fans identity changes out to subscribers. Unlike a best-effort
// stream it never drops events: publish blocks until every live subscriber
// has the event queued, so callers can rely on ordering.
type identityFeed struct {
	mu      sync.Mutex
	current *domain.Identity
	subs    map[int]*feedSub
	next    int
}

type feedSub struct {
	ch  chan domain.IdentityEvent
	ctx context.Context
}

func newIdentityFeed() *identityFeed {
	return &identityFeed{subs: make(map[int]*feedSub)}
}

// Subscribe registers a subscriber. The current identity is queued as the
// first event. The channel is closed when ctx ends.
func (f *identityFeed) Subscribe(ctx context.Context) <-chan domain.IdentityEvent {
	sub := &feedSub{ch: make(chan domain.IdentityEvent, 16), ctx: ctx}

	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = sub
	sub.ch <- domain.IdentityEvent{Identity: copyIdentity(f.current)}
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		delete(f.subs, id)
		close(sub.ch)
		f.mu.Unlock()
	}()

	return sub.ch
}

func (f *identityFeed) publish(identity *domain.Identity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = copyIdentity(identity)
	for _, sub := range f.subs {
		select {
		case sub.ch <- domain.IdentityEvent{Identity: copyIdentity(identity)}:
		case <-sub.ctx.Done():
		}
	}
}

func (f *identityFeed) Current() *domain.Identity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return copyIdentity(f.current)
}

func copyIdentity(identity *domain.Identity) *domain.Identity {
	if identity == nil {
		return nil
	}
	c := *identity
	return &c
}
