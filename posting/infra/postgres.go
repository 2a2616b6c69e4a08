package infra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kakizome/posting/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS calligraphy (
	user_id         UUID PRIMARY KEY,
	display_name    TEXT NOT NULL CHECK (char_length(display_name) <= 20),
	content         TEXT NOT NULL CHECK (char_length(content) <= 50),
	source_address  TEXT,
	user_agent      TEXT,
	accept_language TEXT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp()
);
CREATE INDEX IF NOT EXISTS calligraphy_created_at_idx ON calligraphy (created_at DESC);
`

// Um único statement: o ON CONFLICT serializa escritas do mesmo user_id e
// nunca expõe um intervalo apagado. GREATEST mantém updated_at estritamente
// crescente mesmo se o relógio do banco andar para trás.
const postgresUpsert = `
WITH ts AS (SELECT clock_timestamp() AS now)
INSERT INTO calligraphy (user_id, display_name, content, source_address, user_agent, accept_language, created_at, updated_at)
SELECT $1::uuid, $2::text, $3::text, $4::text, $5::text, $6::text, ts.now, ts.now FROM ts
ON CONFLICT (user_id) DO UPDATE SET
	display_name    = EXCLUDED.display_name,
	content         = EXCLUDED.content,
	source_address  = COALESCE(EXCLUDED.source_address, calligraphy.source_address),
	user_agent      = COALESCE(EXCLUDED.user_agent, calligraphy.user_agent),
	accept_language = COALESCE(EXCLUDED.accept_language, calligraphy.accept_language),
	updated_at      = GREATEST(EXCLUDED.updated_at, calligraphy.updated_at + interval '1 microsecond')
RETURNING user_id, display_name, content, created_at, updated_at
`

// pgDB é o subconjunto do pgxpool.Pool usado pelo store.
type pgDB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implementa domain.Store sobre um pool pgx.
type PostgresStore struct {
	db      pgDB
	timeout time.Duration
}

type PostgresOption func(*PostgresStore)

// WithQueryTimeout limita cada chamada (inclui a espera por conexão livre no pool).
func WithQueryTimeout(d time.Duration) PostgresOption {
	return func(s *PostgresStore) { s.timeout = d }
}

func NewPostgresStore(db pgDB, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{db: db, timeout: 5 * time.Second}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenPostgresPool cria o pool com no máximo maxConns conexões e valida com Ping.
func OpenPostgresPool(ctx context.Context, url string, maxConns int) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, postgresSchema)
	return err
}

func (s *PostgresStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *PostgresStore) CreateOrReplace(ctx context.Context, id uuid.UUID, displayName, content string, diag *domain.Diagnostics) (domain.Posting, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var addr, ua, lang any
	if diag != nil {
		addr, ua, lang = nullString(diag.SourceAddress), nullString(diag.UserAgent), nullString(diag.AcceptLanguage)
	}

	var p domain.Posting
	err := s.db.QueryRow(ctx, postgresUpsert, id, displayName, content, addr, ua, lang).
		Scan(&p.UserID, &p.DisplayName, &p.Content, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return domain.Posting{}, err
	}
	return p, nil
}

func (s *PostgresStore) FindByIdentity(ctx context.Context, id uuid.UUID) (domain.Posting, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var p domain.Posting
	err := s.db.QueryRow(ctx, `
		SELECT user_id, display_name, content, created_at, updated_at
		FROM calligraphy
		WHERE user_id = $1
	`, id).Scan(&p.UserID, &p.DisplayName, &p.Content, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Posting{}, false, nil
	}
	if err != nil {
		return domain.Posting{}, false, err
	}
	return p, true, nil
}

func (s *PostgresStore) FindRecent(ctx context.Context, limit int) ([]domain.Posting, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.Query(ctx, `
		SELECT user_id, display_name, content, created_at, updated_at
		FROM calligraphy
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Posting, 0)
	for rows.Next() {
		var p domain.Posting
		if err := rows.Scan(&p.UserID, &p.DisplayName, &p.Content, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteByIdentity(ctx context.Context, id uuid.UUID) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.db.Exec(ctx, `DELETE FROM calligraphy WHERE user_id = $1`, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

var _ domain.Store = (*PostgresStore)(nil)
