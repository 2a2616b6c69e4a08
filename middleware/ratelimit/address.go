package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// AddressFunc extrai o endereço de origem usado como chave do rate limit.
// String vazia significa origem desconhecida (a checagem é pulada).
type AddressFunc func(r *http.Request) string

func DefaultAddressFunc(keyHeader string, trustXFF bool) AddressFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := parseIP(first); ip != "" {
					return ip
				}
			}
			if ip := parseIP(r.Header.Get("X-Real-IP")); ip != "" {
				return ip
			}
		}

		// fallback: RemoteAddr
		return parseIP(r.RemoteAddr)
	}
}

func parseIP(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}
	if net.ParseIP(addr) != nil {
		return addr
	}
	return ""
}
