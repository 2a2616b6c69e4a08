package infra

import (
	"context"
	"sync"

	"kakizome/middleware/ratelimit/domain"
)

type chanPool struct {
	sem chan struct{}
}

// NewChanPool cria um semáforo baseado em channel com capacidade `max`.
func NewChanPool(max int) domain.SlotPool {
	return &chanPool{sem: make(chan struct{}, max)}
}

// Acquire tenta primeiro sem bloquear; só então espera por vaga ou ctx.
// O release devolvido é idempotente.
func (p *chanPool) Acquire(ctx context.Context) (func(), bool) {
	select {
	case p.sem <- struct{}{}:
		return p.release(), true
	default:
	}

	select {
	case p.sem <- struct{}{}:
		return p.release(), true
	case <-ctx.Done():
		return nil, false
	}
}

func (p *chanPool) release() func() {
	var once sync.Once
	return func() { once.Do(func() { <-p.sem }) }
}
