package identity

import (
	"net/http"
)

type Options struct {
	Resolver Resolver
	// Secure marca o cookie como Secure (HTTPS).
	Secure bool
}

func cookieValue(r *http.Request) string {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// Issue garante uma identidade no contexto. Sem cookie válido, emite um token novo
// e agenda o Set-Cookie antes de chamar o próximo handler.
func Issue(opts Options) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := opts.Resolver.Resolve(cookieValue(r))
			if id.Disposition == Issued {
				http.SetCookie(w, NewCookie(id.ID, opts.Secure))
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// Recognize coloca a identidade no contexto só quando o cookie é válido.
// Nunca emite cookie.
func Recognize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := Parse(cookieValue(r)); ok {
			r = r.WithContext(WithIdentity(r.Context(), Identity{ID: id, Disposition: Recognized}))
		}
		next.ServeHTTP(w, r)
	})
}
