package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"kakizome/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// windowScript roda atômico no Redis: lê o contador, recusa sem incrementar se já
// chegou no limite, senão incrementa e garante o TTL da janela.
// Retorna {permitido, pttl_restante_ms}.
var windowScript = redis.NewScript(`
local limit = tonumber(ARGV[1])
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
if cur >= limit then
  return {0, redis.call('PTTL', KEYS[1])}
end
redis.call('INCR', KEYS[1])
if redis.call('PTTL', KEYS[1]) < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return {1, 0}
`)

// RedisWindowStore é a janela fixa compartilhada entre várias réplicas.
//
// A expiração das chaves fica a cargo do próprio Redis, então não há janitor.
type RedisWindowStore struct {
	rdb      redis.Scripter
	prefix   string
	policies domain.Policies
}

type RedisWindowOption func(*RedisWindowStore)

func WithWindowPrefix(prefix string) RedisWindowOption {
	return func(s *RedisWindowStore) { s.prefix = strings.Trim(prefix, ":") }
}

func NewRedisWindowStore(rdb redis.Scripter, policies domain.Policies, opts ...RedisWindowOption) *RedisWindowStore {
	s := &RedisWindowStore{
		rdb:      rdb,
		prefix:   "ratelimit:window",
		policies: policies,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisWindowStore) Permit(ctx context.Context, key domain.Key) (domain.Decision, error) {
	pol, ok := s.policies[key.Class]
	if !ok || !pol.Enabled() {
		return domain.Decision{Allowed: true}, nil
	}

	redisKey := s.prefix + ":" + key.String()
	res, err := windowScript.Run(ctx, s.rdb, []string{redisKey}, pol.Limit, pol.Window.Milliseconds()).Slice()
	if err != nil {
		return domain.Decision{}, fmt.Errorf("ratelimit window %s: %w", redisKey, err)
	}
	if len(res) != 2 {
		return domain.Decision{}, fmt.Errorf("ratelimit window %s: unexpected reply %v", redisKey, res)
	}

	allowed, _ := res[0].(int64)
	if allowed == 1 {
		return domain.Decision{Allowed: true}, nil
	}
	pttl, _ := res[1].(int64)
	if pttl < 0 {
		pttl = pol.Window.Milliseconds()
	}
	return domain.Decision{Allowed: false, RetryAfter: time.Duration(pttl) * time.Millisecond}, nil
}
