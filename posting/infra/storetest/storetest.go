// Package storetest roda o mesmo contrato de domain.Store contra qualquer adapter.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"kakizome/posting/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory devolve um store limpo e uma função que avança o relógio do store
// (mock clock nos adapters locais, sleep no PostgreSQL).
type Factory func(t *testing.T) (store domain.Store, advance func(time.Duration))

func Run(t *testing.T, factory Factory) {
	t.Run("CreateThenFind", func(t *testing.T) { testCreateThenFind(t, factory) })
	t.Run("UpsertReplacesInPlace", func(t *testing.T) { testUpsertReplaces(t, factory) })
	t.Run("FindMissingIsAbsent", func(t *testing.T) { testFindMissing(t, factory) })
	t.Run("DeleteReportsRowCount", func(t *testing.T) { testDelete(t, factory) })
	t.Run("FindRecentNewestFirst", func(t *testing.T) { testFindRecent(t, factory) })
	t.Run("ConcurrentUpsertsKeepOneRow", func(t *testing.T) { testConcurrentUpserts(t, factory) })
	t.Run("CanceledContextWritesNothing", func(t *testing.T) { testCanceled(t, factory) })
}

func newID(t *testing.T, s domain.Store) uuid.UUID {
	id := uuid.New()
	t.Cleanup(func() { _, _ = s.DeleteByIdentity(context.Background(), id) })
	return id
}

func countOf(t *testing.T, s domain.Store, id uuid.UUID) int {
	t.Helper()
	list, err := s.FindRecent(context.Background(), domain.RecentLimit)
	require.NoError(t, err)
	n := 0
	for _, p := range list {
		if p.UserID == id {
			n++
		}
	}
	return n
}

func testCreateThenFind(t *testing.T, factory Factory) {
	s, _ := factory(t)
	ctx := context.Background()
	id := newID(t, s)

	created, err := s.CreateOrReplace(ctx, id, "山田", "今年の抱負：早起き", &domain.Diagnostics{
		SourceAddress: "192.168.1.1", UserAgent: "test", AcceptLanguage: "ja",
	})
	require.NoError(t, err)
	assert.Equal(t, id, created.UserID)
	assert.Equal(t, "山田", created.DisplayName)
	assert.Equal(t, "今年の抱負：早起き", created.Content)
	assert.False(t, created.CreatedAt.IsZero())
	assert.True(t, created.CreatedAt.Equal(created.UpdatedAt))

	found, ok, err := s.FindByIdentity(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, created.Content, found.Content)
	assert.True(t, created.CreatedAt.Equal(found.CreatedAt))
}

func testUpsertReplaces(t *testing.T, factory Factory) {
	s, advance := factory(t)
	ctx := context.Background()
	id := newID(t, s)

	first, err := s.CreateOrReplace(ctx, id, "name", "Hello", nil)
	require.NoError(t, err)

	advance(2 * time.Millisecond)
	second, err := s.CreateOrReplace(ctx, id, "other", "World", nil)
	require.NoError(t, err)

	assert.Equal(t, "World", second.Content)
	assert.Equal(t, "other", second.DisplayName)
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt), "created_at must not change")
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt), "updated_at must grow")

	// mesmo sem o relógio andar, updated_at continua crescendo
	third, err := s.CreateOrReplace(ctx, id, "other", "Again", nil)
	require.NoError(t, err)
	assert.True(t, third.UpdatedAt.After(second.UpdatedAt))

	assert.Equal(t, 1, countOf(t, s, id))
}

func testFindMissing(t *testing.T, factory Factory) {
	s, _ := factory(t)

	_, ok, err := s.FindByIdentity(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)
}

func testDelete(t *testing.T, factory Factory) {
	s, _ := factory(t)
	ctx := context.Background()
	id := newID(t, s)

	n, err := s.DeleteByIdentity(ctx, id)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	_, err = s.CreateOrReplace(ctx, id, "name", "bye", nil)
	require.NoError(t, err)

	n, err = s.DeleteByIdentity(ctx, id)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, ok, err := s.FindByIdentity(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func testFindRecent(t *testing.T, factory Factory) {
	s, advance := factory(t)
	ctx := context.Background()

	ids := make([]uuid.UUID, 3)
	for i := range ids {
		ids[i] = newID(t, s)
		_, err := s.CreateOrReplace(ctx, ids[i], "n", fmt.Sprintf("post %d", i), nil)
		require.NoError(t, err)
		advance(2 * time.Millisecond)
	}
	// reescrever o mais antigo não muda a posição dele (ordem é por created_at)
	_, err := s.CreateOrReplace(ctx, ids[0], "n", "edited", nil)
	require.NoError(t, err)

	list, err := s.FindRecent(ctx, domain.RecentLimit)
	require.NoError(t, err)

	pos := map[uuid.UUID]int{}
	for i, p := range list {
		pos[p.UserID] = i
	}
	for _, id := range ids {
		require.Contains(t, pos, id)
	}
	assert.Less(t, pos[ids[2]], pos[ids[1]])
	assert.Less(t, pos[ids[1]], pos[ids[0]])

	limited, err := s.FindRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, ids[2], limited[0].UserID)
	assert.Equal(t, ids[1], limited[1].UserID)
}

func testConcurrentUpserts(t *testing.T, factory Factory) {
	s, _ := factory(t)
	ctx := context.Background()
	id := newID(t, s)

	const writers = 16
	contents := map[string]bool{}
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		c := fmt.Sprintf("write %d", i)
		contents[c] = true
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateOrReplace(ctx, id, "n", c, nil)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	p, ok, err := s.FindByIdentity(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, contents[p.Content], "final row must be one of the writes, got %q", p.Content)
	assert.Equal(t, 1, countOf(t, s, id))
}

func testCanceled(t *testing.T, factory Factory) {
	s, _ := factory(t)
	id := newID(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.CreateOrReplace(ctx, id, "n", "never", nil)
	require.Error(t, err)

	_, ok, err := s.FindByIdentity(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, ok)
}
