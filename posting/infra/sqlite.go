package infra

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"kakizome/posting/domain"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS calligraphy (
	user_id         TEXT PRIMARY KEY,
	display_name    TEXT NOT NULL CHECK (length(display_name) <= 20),
	content         TEXT NOT NULL CHECK (length(content) <= 50),
	source_address  TEXT,
	user_agent      TEXT,
	accept_language TEXT,
	created_at      INTEGER NOT NULL,
	updated_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS calligraphy_created_at_idx ON calligraphy (created_at DESC);
`

// Timestamps em microssegundos Unix. MAX(..., anterior + 1) garante updated_at
// estritamente crescente; created_at nunca é tocado no UPDATE.
const sqliteUpsert = `
INSERT INTO calligraphy (user_id, display_name, content, source_address, user_agent, accept_language, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (user_id) DO UPDATE SET
	display_name    = excluded.display_name,
	content         = excluded.content,
	source_address  = COALESCE(excluded.source_address, calligraphy.source_address),
	user_agent      = COALESCE(excluded.user_agent, calligraphy.user_agent),
	accept_language = COALESCE(excluded.accept_language, calligraphy.accept_language),
	updated_at      = MAX(excluded.updated_at, calligraphy.updated_at + 1)
RETURNING user_id, display_name, content, created_at, updated_at
`

// SQLiteStore implementa domain.Store num arquivo SQLite (modernc, sem cgo).
// Uma conexão só: as escritas ficam serializadas pelo próprio database/sql.
type SQLiteStore struct {
	db    *sql.DB
	clock clock.Clock
}

type SQLiteOption func(*SQLiteStore)

func WithSQLiteClock(c clock.Clock) SQLiteOption {
	return func(s *SQLiteStore) { s.clock = c }
}

func OpenSQLite(path string, opts ...SQLiteOption) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("empty sqlite path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, p := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	} {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db, clock: clock.New()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteSchema)
	return err
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

type sqliteRow interface {
	Scan(dest ...any) error
}

func scanSQLite(r sqliteRow) (domain.Posting, error) {
	var (
		p                domain.Posting
		id               string
		created, updated int64
	)
	if err := r.Scan(&id, &p.DisplayName, &p.Content, &created, &updated); err != nil {
		return domain.Posting{}, err
	}
	uid, err := uuid.Parse(id)
	if err != nil {
		return domain.Posting{}, fmt.Errorf("bad user_id %q: %w", id, err)
	}
	p.UserID = uid
	p.CreatedAt = time.UnixMicro(created).UTC()
	p.UpdatedAt = time.UnixMicro(updated).UTC()
	return p, nil
}

func (s *SQLiteStore) CreateOrReplace(ctx context.Context, id uuid.UUID, displayName, content string, diag *domain.Diagnostics) (domain.Posting, error) {
	var addr, ua, lang any
	if diag != nil {
		addr, ua, lang = nullString(diag.SourceAddress), nullString(diag.UserAgent), nullString(diag.AcceptLanguage)
	}
	now := s.clock.Now().UnixMicro()

	row := s.db.QueryRowContext(ctx, sqliteUpsert, id.String(), displayName, content, addr, ua, lang, now, now)
	return scanSQLite(row)
}

func (s *SQLiteStore) FindByIdentity(ctx context.Context, id uuid.UUID) (domain.Posting, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, display_name, content, created_at, updated_at
		FROM calligraphy
		WHERE user_id = ?
	`, id.String())
	p, err := scanSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Posting{}, false, nil
	}
	if err != nil {
		return domain.Posting{}, false, err
	}
	return p, true, nil
}

func (s *SQLiteStore) FindRecent(ctx context.Context, limit int) ([]domain.Posting, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, display_name, content, created_at, updated_at
		FROM calligraphy
		ORDER BY created_at DESC, user_id ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Posting, 0)
	for rows.Next() {
		p, err := scanSQLite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteByIdentity(ctx context.Context, id uuid.UUID) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM calligraphy WHERE user_id = ?`, id.String())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

var _ domain.Store = (*SQLiteStore)(nil)
