package repository_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/SergeiKhy/shortlink/internal/models"
	"github.com/SergeiKhy/shortlink/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runURLRepositoryTests общий набор проверок для всех реализаций хранилища
func runURLRepositoryTests(t *testing.T, newRepo func(t *testing.T) repository.URLRepository) {
	t.Run("CreateAndGet", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		created, err := repo.Create(ctx, "abc1234", "https://example.com/page")
		require.NoError(t, err)
		assert.NotZero(t, created.ID)
		assert.Equal(t, "abc1234", created.Code)
		assert.Zero(t, created.ClickCount)
		assert.False(t, created.CreatedAt.IsZero())

		got, err := repo.GetByCode(ctx, "abc1234")
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, "https://example.com/page", got.OriginalURL)

		_, err = repo.GetByCode(ctx, "missing")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("DuplicateCode", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.Create(ctx, "dupe", "https://example.com/1")
		require.NoError(t, err)

		_, err = repo.Create(ctx, "dupe", "https://example.com/2")
		assert.ErrorIs(t, err, repository.ErrDuplicateCode)

		// Коды чувствительны к регистру
		_, err = repo.Create(ctx, "DUPE", "https://example.com/3")
		assert.NoError(t, err)
	})

	t.Run("Exists", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		exists, err := repo.Exists(ctx, "there")
		require.NoError(t, err)
		assert.False(t, exists)

		_, err = repo.Create(ctx, "there", "https://example.com")
		require.NoError(t, err)

		exists, err = repo.Exists(ctx, "there")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("RecordClickAndIncrement", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		link, err := repo.Create(ctx, "clicky", "https://example.com")
		require.NoError(t, err)

		require.NoError(t, repo.RecordClickAndIncrement(ctx, link.ID, models.NewVisit("10.0.0.1", "https://ref.example.com", "curl/8.0")))
		require.NoError(t, repo.RecordClickAndIncrement(ctx, link.ID, models.NewVisit("", "", "")))

		got, err := repo.GetByCode(ctx, "clicky")
		require.NoError(t, err)
		assert.Equal(t, int64(2), got.ClickCount)

		clicks, err := repo.GetRecentClicks(ctx, link.ID, 0)
		require.NoError(t, err)
		require.Len(t, clicks, 2)

		// Новые первыми
		assert.Nil(t, clicks[0].IP)
		assert.Nil(t, clicks[0].Referrer)
		assert.Nil(t, clicks[0].UserAgent)
		require.NotNil(t, clicks[1].IP)
		assert.Equal(t, "10.0.0.1", *clicks[1].IP)
		assert.Equal(t, "https://ref.example.com", *clicks[1].Referrer)
		assert.Equal(t, "curl/8.0", *clicks[1].UserAgent)
		assert.Equal(t, link.ID, clicks[1].ShortURLID)
		assert.False(t, clicks[1].Timestamp.IsZero())
	})

	t.Run("RecordClickUnknownURL", func(t *testing.T) {
		repo := newRepo(t)

		err := repo.RecordClickAndIncrement(context.Background(), 999999, models.Visit{})
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("RecentClicksLimit", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		link, err := repo.Create(ctx, "limited", "https://example.com")
		require.NoError(t, err)

		for i := 0; i < 105; i++ {
			require.NoError(t, repo.RecordClickAndIncrement(ctx, link.ID, models.NewVisit(fmt.Sprintf("10.0.0.%d", i), "", "")))
		}

		clicks, err := repo.GetRecentClicks(ctx, link.ID, repository.DefaultRecentClicks)
		require.NoError(t, err)
		require.Len(t, clicks, 100)
		assert.Equal(t, "10.0.0.104", *clicks[0].IP)
		assert.Equal(t, "10.0.0.5", *clicks[99].IP)

		clicks, err = repo.GetRecentClicks(ctx, link.ID, 3)
		require.NoError(t, err)
		assert.Len(t, clicks, 3)

		empty, err := repo.GetRecentClicks(ctx, link.ID+1000, 10)
		require.NoError(t, err)
		assert.NotNil(t, empty)
		assert.Empty(t, empty)
	})

	t.Run("ConcurrentClicksDoNotDrift", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		link, err := repo.Create(ctx, "hot-link", "https://example.com")
		require.NoError(t, err)

		const n = 40
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, repo.RecordClickAndIncrement(ctx, link.ID, models.Visit{}))
			}()
		}
		wg.Wait()

		got, err := repo.GetByCode(ctx, "hot-link")
		require.NoError(t, err)
		assert.Equal(t, int64(n), got.ClickCount)

		clicks, err := repo.GetRecentClicks(ctx, link.ID, n+10)
		require.NoError(t, err)
		assert.Len(t, clicks, n)
	})

	t.Run("ListAll", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		links, err := repo.ListAll(ctx)
		require.NoError(t, err)
		assert.NotNil(t, links)
		assert.Empty(t, links)

		for _, code := range []string{"one1", "two2", "three"} {
			_, err := repo.Create(ctx, code, "https://example.com/"+code)
			require.NoError(t, err)
		}

		links, err = repo.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, links, 3)
		assert.Equal(t, "three", links[0].Code)
		assert.Equal(t, "one1", links[2].Code)
	})
}
