package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"time"
)

// Class separa as operações em categorias limitadas de forma independente.
type Class string

const (
	ClassRead  Class = "read"
	ClassWrite Class = "write"
)

func (c Class) Valid() bool { return c == ClassRead || c == ClassWrite }

// Key identifica um bucket: endereço de origem + classe de operação.
type Key struct {
	Address string
	Class   Class
}

func (k Key) String() string { return string(k.Class) + ":" + k.Address }

// Policy é a janela fixa de uma classe: no máximo Limit operações a cada Window.
// Limit <= 0 desliga o limite para a classe.
type Policy struct {
	Limit  int
	Window time.Duration
}

func (p Policy) Enabled() bool { return p.Limit > 0 && p.Window > 0 }

// Policies mapeia cada classe para a sua política.
type Policies map[Class]Policy

// Limiter decide se a operação identificada por key é permitida agora.
//
// A implementação precisa ser segura para chamadas concorrentes na mesma chave:
// incremento e comparação são atômicos (nenhum slot é concedido duas vezes).
// Pode ser janela fixa em memória, token bucket, Redis etc.
type Limiter interface {
	Permit(ctx context.Context, key Key) (Decision, error)
}

type Decision struct {
	Allowed bool
	// RetryAfter é quanto falta para a janela atual terminar quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}
