package identity

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// CookieName é o cookie que carrega o token anônimo do autor.
	CookieName = "calli_user_id"
	// CookieMaxAge é a validade do cookie no cliente. O servidor nunca rotaciona.
	CookieMaxAge = 365 * 24 * time.Hour
)

type Disposition int

const (
	// Recognized: o cookie existia e era um token válido.
	Recognized Disposition = iota + 1
	// Issued: token novo, o response precisa gravar o cookie.
	Issued
)

func (d Disposition) String() string {
	switch d {
	case Recognized:
		return "recognized"
	case Issued:
		return "issued"
	default:
		return "unknown"
	}
}

// Identity é o autor anônimo resolvido para o request.
type Identity struct {
	ID          uuid.UUID
	Disposition Disposition
}

// Resolver reconhece ou emite identidades. É puro: não toca rede nem banco.
type Resolver struct {
	// Generate cria tokens novos; nil usa uuid.New (aleatório, 128 bits).
	// Falha da fonte de entropia faz uuid.New entrar em pânico.
	Generate func() uuid.UUID
}

// Parse aceita apenas um UUID válido e diferente do nil UUID.
func Parse(value string) (uuid.UUID, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(value)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

func (r Resolver) Resolve(cookieValue string) Identity {
	if id, ok := Parse(cookieValue); ok {
		return Identity{ID: id, Disposition: Recognized}
	}
	gen := r.Generate
	if gen == nil {
		gen = uuid.New
	}
	return Identity{ID: gen(), Disposition: Issued}
}

// Resolve usa o Resolver padrão.
func Resolve(cookieValue string) Identity { return Resolver{}.Resolve(cookieValue) }

// NewCookie monta o cookie de identidade: HttpOnly, Path=/, 365 dias.
func NewCookie(id uuid.UUID, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    id.String(),
		Path:     "/",
		MaxAge:   int(CookieMaxAge / time.Second),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}
