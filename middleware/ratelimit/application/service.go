package application

import (
	"context"
	"strings"
	"time"

	"kakizome/middleware/ratelimit/domain"
)

// Service concentra a regra de aplicação do rate limit.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
type Service struct {
	Limiter domain.Limiter
	Stats   domain.StatsStore
	// FailOpen permite a operação quando o Limiter devolve erro (ex.: Redis fora).
	FailOpen bool
	Now      func() time.Time
}

// Decide avalia (address, class) uma única vez por operação.
//
// Endereço vazio (origem desconhecida) não é limitado: a checagem é pulada.
// O erro do Limiter é devolvido junto com a decisão para quem quiser logar.
func (s Service) Decide(ctx context.Context, address string, class domain.Class, operation string) (domain.Decision, error) {
	address = strings.TrimSpace(address)
	if s.Limiter == nil || address == "" {
		return domain.Decision{Allowed: true}, nil
	}

	key := domain.Key{Address: address, Class: class}
	dec, err := s.Limiter.Permit(ctx, key)
	if err != nil {
		dec = domain.Decision{Allowed: s.FailOpen}
	}

	if s.Stats != nil {
		now := time.Now
		if s.Now != nil {
			now = s.Now
		}
		_ = s.Stats.Record(ctx, domain.StatsEvent{
			Key:       key,
			Allowed:   dec.Allowed,
			Operation: operation,
			At:        now(),
		})
	}
	return dec, err
}
