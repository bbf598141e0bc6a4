package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/campushq/advisor/internal/domain"
	"github.com/campushq/advisor/internal/log"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func exchange(q string, domains ...domain.Domain) domain.Exchange {
	return domain.Exchange{Query: q, Answer: "a", Domains: domains, AskedAt: time.Now().UTC()}
}

func TestGetOrCreateGeneratesID(t *testing.T) {
	s := NewMemoryStore(10, time.Hour, log.NewNop())

	sess, err := s.GetOrCreate(context.Background(), "")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.Empty(t, sess.History)

	again, err := s.GetOrCreate(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, again.ID)
	assert.Equal(t, sess.CreatedAt, again.CreatedAt)
}

func TestAppendUnknownSession(t *testing.T) {
	s := NewMemoryStore(10, time.Hour, log.NewNop())

	err := s.Append(context.Background(), "nope", exchange("q"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHistoryCapEvictsOldestFirst(t *testing.T) {
	s := NewMemoryStore(3, time.Hour, log.NewNop())
	sess, err := s.GetOrCreate(context.Background(), "stu-1")
	require.NoError(t, err)

	for i := range 5 {
		require.NoError(t, s.Append(context.Background(), sess.ID, exchange(fmt.Sprintf("q%d", i))))
	}

	got, err := s.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	require.Len(t, got.History, 3)
	assert.Equal(t, "q2", got.History[0].Query)
	assert.Equal(t, "q4", got.History[2].Query)
}

func TestProfileTracksPrimaryInterest(t *testing.T) {
	s := NewMemoryStore(10, time.Hour, log.NewNop())
	sess, err := s.GetOrCreate(context.Background(), "stu-2")
	require.NoError(t, err)

	require.NoError(t, s.Append(context.Background(), sess.ID, exchange("q1", domain.Admissions)))
	require.NoError(t, s.Append(context.Background(), sess.ID, exchange("q2", domain.FinancialAid)))
	require.NoError(t, s.Append(context.Background(), sess.ID, exchange("q3", domain.FinancialAid)))

	got, err := s.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "financial-aid", got.Profile["primary_interest"])
}

func TestSnapshotsAreIsolated(t *testing.T) {
	s := NewMemoryStore(10, time.Hour, log.NewNop())
	sess, err := s.GetOrCreate(context.Background(), "stu-3")
	require.NoError(t, err)
	require.NoError(t, s.Append(context.Background(), sess.ID, exchange("original")))

	got, err := s.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	got.History[0].Query = "tampered"

	fresh, err := s.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", fresh.History[0].Query)
}

func TestConcurrentAppendsLoseNothing(t *testing.T) {
	const writers, perWriter = 8, 20

	s := NewMemoryStore(writers*perWriter, time.Hour, log.NewNop())
	sess, err := s.GetOrCreate(context.Background(), "stu-4")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWriter {
				_ = s.Append(context.Background(), sess.ID, exchange(fmt.Sprintf("w%d-%d", w, i)))
			}
		}()
	}
	wg.Wait()

	got, err := s.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Len(t, got.History, writers*perWriter)
}

func TestEvictIdle(t *testing.T) {
	s := NewMemoryStore(10, time.Minute, log.NewNop())

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	_, err := s.GetOrCreate(context.Background(), "old")
	require.NoError(t, err)

	s.now = func() time.Time { return base.Add(55 * time.Second) }
	_, err = s.GetOrCreate(context.Background(), "fresh")
	require.NoError(t, err)

	evicted, err := s.EvictIdle(context.Background(), base.Add(70*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, evicted)

	_, err = s.Get(context.Background(), "old")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(context.Background(), "fresh")
	assert.NoError(t, err)
}

func TestListOrdersByRecentActivity(t *testing.T) {
	s := NewMemoryStore(10, time.Hour, log.NewNop())

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		s.now = func() time.Time { return base.Add(time.Duration(i) * time.Minute) }
		_, err := s.GetOrCreate(context.Background(), id)
		require.NoError(t, err)
	}

	got, err := s.List(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "b", got[1].ID)
	assert.Nil(t, got[0].History)
}
