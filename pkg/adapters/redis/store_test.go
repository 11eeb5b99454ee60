package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pergolab/pergola/pkg/adapters/redis"
	"github.com/pergolab/pergola/pkg/domain"
	"github.com/pergolab/pergola/pkg/ports"
)

func newTestStore(t *testing.T, opts ...redis.Option) (*redis.Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	return redis.NewFromClient(client, opts...), mr
}

func TestRedisStore_Contract(t *testing.T) {
	store, _ := newTestStore(t)
	ports.RunReportStoreContract(t, store)
}

func TestRedisStore_TTLExpiration(t *testing.T) {
	store, mr := newTestStore(t, redis.WithTTL(50*time.Millisecond))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &domain.Report{RunID: "run-ttl", Total: 1}))

	_, err := store.Load(ctx, "run-ttl")
	require.NoError(t, err, "report should be readable before expiry")

	mr.FastForward(time.Second)

	_, err = store.Load(ctx, "run-ttl")
	assert.ErrorIs(t, err, domain.ErrReportNotFound, "expired reports are gone")

	// The index score uses wall time; give it a moment to pass too.
	time.Sleep(1100 * time.Millisecond)
	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.NotContains(t, ids, "run-ttl", "List prunes expired ids from the index")
}

func TestRedisStore_CustomPrefix(t *testing.T) {
	store, mr := newTestStore(t, redis.WithPrefix("archive:"))
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &domain.Report{RunID: "r1"}))

	assert.True(t, mr.Exists("archive:r1"))
	assert.False(t, mr.Exists("pergola:report:r1"))
}

func TestRedisStore_RoundTripPreservesItems(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	report := &domain.Report{
		RunID:     "full",
		Graph:     "lessons",
		Total:     2,
		Succeeded: 1,
		TimedOut:  1,
		Items: []domain.ItemOutcome{
			{Index: 0, Status: domain.StatusSucceeded, Attempts: 1, Output: map[string]any{"title": "a"}},
			{Index: 1, Status: domain.StatusTimedOut, Attempts: 3,
				Failure: &domain.Failure{Kind: domain.KindTimedOut, Message: "attempt deadline elapsed"}},
		},
		Output: map[string]any{"count": float64(1)},
	}
	require.NoError(t, store.Save(ctx, report))

	loaded, err := store.Load(ctx, "full")
	require.NoError(t, err)
	require.Len(t, loaded.Items, 2)
	assert.Equal(t, domain.StatusTimedOut, loaded.Items[1].Status)
	require.NotNil(t, loaded.Items[1].Failure)
	assert.Equal(t, domain.KindTimedOut, loaded.Items[1].Failure.Kind)
	assert.Equal(t, float64(1), loaded.Output["count"])
}
