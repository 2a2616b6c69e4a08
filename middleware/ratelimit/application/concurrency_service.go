package application

import (
	"context"
	"time"

	"kakizome/middleware/ratelimit/domain"
)

// ConcurrencyService limita quantos requests usam o Store ao mesmo tempo.
// Quem não consegue vaga dentro de AcquireTimeout desiste (o HTTP vira 503).
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
	// Observe recebe a espera de cada Acquire e se houve vaga. Opcional.
	Observe func(waited time.Duration, ok bool)
	Now     func() time.Time
}

// Acquire devolve (release, true) ou (nil, false).
// AcquireTimeout <= 0 espera até ctx encerrar.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), bool) {
	if s.Pool == nil {
		return func() {}, true
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	start := now()

	release, ok := s.acquire(ctx)
	if s.Observe != nil {
		s.Observe(now().Sub(start), ok)
	}
	return release, ok
}

func (s ConcurrencyService) acquire(ctx context.Context) (func(), bool) {
	if s.AcquireTimeout <= 0 {
		return s.Pool.Acquire(ctx)
	}
	acqCtx, cancel := context.WithTimeout(ctx, s.AcquireTimeout)
	defer cancel()
	return s.Pool.Acquire(acqCtx)
}
