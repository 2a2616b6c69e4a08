package infra

import (
	"context"
	"sync"
	"time"

	"kakizome/middleware/ratelimit/domain"

	"github.com/benbjohnson/clock"
	"golang.org/x/time/rate"
)

// TokenStore é a alternativa token-bucket (x/time/rate) ao WindowStore.
//
// Cada política vira rate = Limit/Window com burst = Limit, então o primeiro
// Limit passa de imediato e depois os tokens voltam de forma contínua, sem a
// "virada" brusca da janela fixa.
type TokenStore struct {
	mu           sync.Mutex
	entries      map[domain.Key]*tokenEntry
	policies     domain.Policies
	clock        clock.Clock
	idleTTL      time.Duration
	cleanupEvery time.Duration
}

type tokenEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type TokenOption func(*TokenStore)

func WithIdleTTL(d time.Duration) TokenOption {
	return func(s *TokenStore) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) TokenOption {
	return func(s *TokenStore) { s.cleanupEvery = d }
}

func WithTokenClock(c clock.Clock) TokenOption {
	return func(s *TokenStore) { s.clock = c }
}

func NewTokenStore(policies domain.Policies, opts ...TokenOption) *TokenStore {
	s := &TokenStore{
		entries:      make(map[domain.Key]*tokenEntry),
		policies:     policies,
		clock:        clock.New(),
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TokenStore) limiter(key domain.Key, pol domain.Policy, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}

	every := pol.Window / time.Duration(pol.Limit)
	lim := rate.NewLimiter(rate.Every(every), pol.Limit)
	s.entries[key] = &tokenEntry{lim: lim, lastSeen: now}
	return lim
}

// Permit implementa domain.Limiter.
func (s *TokenStore) Permit(_ context.Context, key domain.Key) (domain.Decision, error) {
	pol, ok := s.policies[key.Class]
	if !ok || !pol.Enabled() {
		return domain.Decision{Allowed: true}, nil
	}

	now := s.clock.Now()
	lim := s.limiter(key, pol, now)

	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return domain.Decision{Allowed: false, RetryAfter: pol.Window}, nil
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return domain.Decision{Allowed: false, RetryAfter: d}, nil
	}
	return domain.Decision{Allowed: true}, nil
}

func (s *TokenStore) Cleanup() {
	cutoff := s.clock.Now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (s *TokenStore) StartJanitor(ctx context.Context) {
	runJanitor(ctx, s.clock, s.cleanupEvery, s.Cleanup)
}
