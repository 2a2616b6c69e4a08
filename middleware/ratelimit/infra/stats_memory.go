package infra

import (
	"context"
	"sync"

	"kakizome/middleware/ratelimit/domain"
)

type Counters struct {
	Allowed int64 `json:"allowed"`
	Denied  int64 `json:"denied"`
}

func (c *Counters) add(allowed bool) {
	if allowed {
		c.Allowed++
		return
	}
	c.Denied++
}

// MemoryStatsStore é uma implementação simples em memória, exposta em
// /debug/ratelimit quando RATE_STATS_BACKEND=memory.
//
// Não faz expiração e não é indicada para produção com muitos endereços.
type MemoryStatsStore struct {
	mu          sync.Mutex
	total       Counters
	byOperation map[string]Counters
	byClass     map[domain.Class]Counters
	byKey       map[string]Counters

	trackKeys bool
}

// MemoryStatsSnapshot é a cópia consistente devolvida por Snapshot.
type MemoryStatsSnapshot struct {
	Total       Counters                  `json:"total"`
	ByOperation map[string]Counters       `json:"by_operation"`
	ByClass     map[domain.Class]Counters `json:"by_class"`
	ByKey       map[string]Counters       `json:"by_key,omitempty"`
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byOperation: make(map[string]Counters),
		byClass:     make(map[domain.Class]Counters),
		byKey:       make(map[string]Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev.Allowed)

	op := s.byOperation[ev.Operation]
	op.add(ev.Allowed)
	s.byOperation[ev.Operation] = op

	cl := s.byClass[ev.Key.Class]
	cl.add(ev.Allowed)
	s.byClass[ev.Key.Class] = cl

	if s.trackKeys {
		k := s.byKey[ev.Key.String()]
		k.add(ev.Allowed)
		s.byKey[ev.Key.String()] = k
	}
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) Snapshot() MemoryStatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := MemoryStatsSnapshot{
		Total:       s.total,
		ByOperation: make(map[string]Counters, len(s.byOperation)),
		ByClass:     make(map[domain.Class]Counters, len(s.byClass)),
	}
	for k, v := range s.byOperation {
		out.ByOperation[k] = v
	}
	for k, v := range s.byClass {
		out.ByClass[k] = v
	}
	if s.trackKeys {
		out.ByKey = make(map[string]Counters, len(s.byKey))
		for k, v := range s.byKey {
			out.ByKey[k] = v
		}
	}
	return out
}
