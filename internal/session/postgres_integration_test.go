package session_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campushq/advisor/internal/domain"
	"github.com/campushq/advisor/internal/log"
	"github.com/campushq/advisor/internal/session"
	"github.com/campushq/advisor/internal/testutil"
)

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	pool := testutil.StartPostgres(t)
	ctx := context.Background()

	t.Run("get or create round trip", func(t *testing.T) {
		store := session.NewPostgresStore(pool, 10, time.Hour, log.NewNop())

		sess, err := store.GetOrCreate(ctx, "")
		require.NoError(t, err)
		require.NotEmpty(t, sess.ID)

		again, err := store.GetOrCreate(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, sess.ID, again.ID)
	})

	t.Run("append and history cap", func(t *testing.T) {
		store := session.NewPostgresStore(pool, 3, time.Hour, log.NewNop())

		sess, err := store.GetOrCreate(ctx, "")
		require.NoError(t, err)

		for i := range 5 {
			ex := domain.Exchange{
				Query:   fmt.Sprintf("q%d", i),
				Answer:  "a",
				Domains: []domain.Domain{domain.Academics},
				AskedAt: time.Now().UTC(),
			}
			require.NoError(t, store.Append(ctx, sess.ID, ex))
		}

		got, err := store.Get(ctx, sess.ID)
		require.NoError(t, err)
		require.Len(t, got.History, 3)
		assert.Equal(t, "q2", got.History[0].Query)
		assert.Equal(t, "q4", got.History[2].Query)
		assert.Equal(t, []domain.Domain{domain.Academics}, got.History[0].Domains)
		assert.Equal(t, "academics", got.Profile["primary_interest"])
	})

	t.Run("append to unknown session", func(t *testing.T) {
		store := session.NewPostgresStore(pool, 10, time.Hour, log.NewNop())

		err := store.Append(ctx, "1b671a64-40d5-491e-99b0-da01ff1f3341", domain.Exchange{Query: "q"})
		assert.ErrorIs(t, err, session.ErrNotFound)
	})

	t.Run("evict idle", func(t *testing.T) {
		store := session.NewPostgresStore(pool, 10, time.Minute, log.NewNop())

		sess, err := store.GetOrCreate(ctx, "")
		require.NoError(t, err)

		evicted, err := store.EvictIdle(ctx, time.Now().Add(2*time.Minute))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, evicted, 1)

		_, err = store.Get(ctx, sess.ID)
		assert.ErrorIs(t, err, session.ErrNotFound)
	})
}
