package posting

import (
	"net/http"

	"kakizome/middleware/identity"
	"kakizome/middleware/ratelimit"
	"kakizome/posting/application"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Options struct {
	Service application.Service
	// AddressFn extrai o endereço do cliente; nil usa RemoteAddr.
	AddressFn    ratelimit.AddressFunc
	Resolver     identity.Resolver
	CookieSecure bool
	Log          *zap.Logger
}

// Routes registra a API de postagens em r.
//
//	POST   /api/calligraphy       cria ou substitui (emite cookie)
//	GET    /api/calligraphy       lista tudo, marcando is_mine
//	GET    /api/calligraphy/{id}  a própria postagem (emite cookie)
//	DELETE /api/calligraphy/{id}  apaga a própria postagem (emite cookie)
func Routes(r chi.Router, opts Options) {
	if opts.AddressFn == nil {
		opts.AddressFn = ratelimit.DefaultAddressFunc("", false)
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}

	h := handler{svc: opts.Service, address: opts.AddressFn, log: opts.Log}
	issue := identity.Issue(identity.Options{Resolver: opts.Resolver, Secure: opts.CookieSecure})

	r.Route("/api/calligraphy", func(r chi.Router) {
		r.With(issue).Post("/", h.upsert)
		r.With(identity.Recognize).Get("/", h.list)
		r.With(issue).Get("/{id}", h.get)
		r.With(issue).Delete("/{id}", h.delete)
	})
}

// NewRouter monta um chi.Mux com /healthz e a API.
func NewRouter(opts Options) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	Routes(r, opts)
	return r
}
