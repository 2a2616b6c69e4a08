package infra

import (
	"context"
	"sync"
	"time"

	"kakizome/middleware/ratelimit/domain"

	"github.com/benbjohnson/clock"
	"github.com/cespare/xxhash/v2"
)

const windowShards = 32

// WindowStore é o limiter padrão: janela fixa por (endereço, classe), em memória.
//
// A tabela de buckets é particionada em shards, cada um com o seu mutex, para que
// chaves diferentes não disputem o mesmo lock. Dentro de um shard o
// incremento-e-comparação é atômico.
type WindowStore struct {
	policies     domain.Policies
	clock        clock.Clock
	cleanupEvery time.Duration
	shards       [windowShards]windowShard
}

type windowShard struct {
	mu      sync.Mutex
	buckets map[domain.Key]*windowBucket
}

type windowBucket struct {
	count int
	start time.Time
}

type WindowOption func(*WindowStore)

func WithWindowClock(c clock.Clock) WindowOption {
	return func(s *WindowStore) { s.clock = c }
}

func WithWindowCleanupEvery(d time.Duration) WindowOption {
	return func(s *WindowStore) { s.cleanupEvery = d }
}

func NewWindowStore(policies domain.Policies, opts ...WindowOption) *WindowStore {
	s := &WindowStore{
		policies:     policies,
		clock:        clock.New(),
		cleanupEvery: 2 * time.Minute,
	}
	for i := range s.shards {
		s.shards[i].buckets = make(map[domain.Key]*windowBucket)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *WindowStore) shard(key domain.Key) *windowShard {
	return &s.shards[xxhash.Sum64String(key.String())%windowShards]
}

// Permit implementa domain.Limiter.
//
// Janela inexistente ou expirada: abre uma nova em now com count=1 e permite.
// Janela ativa: incrementa até Limit; acima disso rejeita sem incrementar.
func (s *WindowStore) Permit(_ context.Context, key domain.Key) (domain.Decision, error) {
	pol, ok := s.policies[key.Class]
	if !ok || !pol.Enabled() {
		return domain.Decision{Allowed: true}, nil
	}

	now := s.clock.Now()
	sh := s.shard(key)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	b, ok := sh.buckets[key]
	if !ok {
		sh.buckets[key] = &windowBucket{count: 1, start: now}
		return domain.Decision{Allowed: true}, nil
	}

	end := b.start.Add(pol.Window)
	if !now.Before(end) {
		b.count = 1
		b.start = now
		return domain.Decision{Allowed: true}, nil
	}
	if b.count < pol.Limit {
		b.count++
		return domain.Decision{Allowed: true}, nil
	}
	return domain.Decision{Allowed: false, RetryAfter: end.Sub(now)}, nil
}

// Cleanup remove buckets cuja janela já terminou.
func (s *WindowStore) Cleanup() {
	now := s.clock.Now()
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for k, b := range sh.buckets {
			pol := s.policies[k.Class]
			if !now.Before(b.start.Add(pol.Window)) {
				delete(sh.buckets, k)
			}
		}
		sh.mu.Unlock()
	}
}

// Len retorna o número de buckets vivos.
func (s *WindowStore) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		n += len(sh.buckets)
		sh.mu.Unlock()
	}
	return n
}

// StartJanitor inicia uma goroutine que limpa buckets expirados periodicamente.
// Pare cancelando o contexto.
func (s *WindowStore) StartJanitor(ctx context.Context) {
	runJanitor(ctx, s.clock, s.cleanupEvery, s.Cleanup)
}
