package infra

import (
	"context"
	"sort"
	"sync"
	"time"

	"kakizome/posting/domain"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

// MemoryStore é o Store em memória, para testes e desenvolvimento local.
// Os dados somem quando o processo termina.
type MemoryStore struct {
	mu    sync.RWMutex
	rows  map[uuid.UUID]memoryRow
	clock clock.Clock
}

type memoryRow struct {
	posting domain.Posting
	diag    domain.Diagnostics
}

type MemoryOption func(*MemoryStore)

func WithMemoryClock(c clock.Clock) MemoryOption {
	return func(s *MemoryStore) { s.clock = c }
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		rows:  make(map[uuid.UUID]memoryRow),
		clock: clock.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) CreateOrReplace(ctx context.Context, id uuid.UUID, displayName, content string, diag *domain.Diagnostics) (domain.Posting, error) {
	if err := ctx.Err(); err != nil {
		return domain.Posting{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now().UTC().Truncate(time.Microsecond)
	row, exists := s.rows[id]
	if exists {
		if !now.After(row.posting.UpdatedAt) {
			now = row.posting.UpdatedAt.Add(time.Microsecond)
		}
		row.posting.DisplayName = displayName
		row.posting.Content = content
		row.posting.UpdatedAt = now
	} else {
		row.posting = domain.Posting{
			UserID:      id,
			DisplayName: displayName,
			Content:     content,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}
	if diag != nil {
		row.diag = *diag
	}
	s.rows[id] = row
	return row.posting, nil
}

func (s *MemoryStore) FindByIdentity(ctx context.Context, id uuid.UUID) (domain.Posting, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Posting{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.rows[id]
	return row.posting, ok, nil
}

func (s *MemoryStore) FindRecent(ctx context.Context, limit int) ([]domain.Posting, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]domain.Posting, 0, len(s.rows))
	for _, row := range s.rows {
		out = append(out, row.posting)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].UserID.String() < out[j].UserID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) DeleteByIdentity(ctx context.Context, id uuid.UUID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rows[id]; !ok {
		return 0, nil
	}
	delete(s.rows, id)
	return 1, nil
}

// Diagnostics devolve o que foi gravado junto com a postagem.
func (s *MemoryStore) Diagnostics(id uuid.UUID) (domain.Diagnostics, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[id]
	return row.diag, ok
}

var _ domain.Store = (*MemoryStore)(nil)
