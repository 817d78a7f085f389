package sessions

import (
	"context"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisRepository_CreateGetDelete(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	repo := NewRedisRepository(client, "test:session:")

	ctx := context.Background()
	s := &Session{
		ID:           "s1",
		Username:     "Ana",
		RecordNumber: "ISC01",
		CreatedAt:    time.Now().UTC(),
		ExpiresAt:    time.Now().UTC().Add(5 * time.Second),
	}

	require.NoError(t, repo.Create(ctx, s))
	require.True(t, m.Exists("test:session:s1"))

	got, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "ISC01", got.RecordNumber)
	require.Equal(t, "Ana", got.Username)

	// test deletion
	require.NoError(t, repo.Delete(ctx, "s1"))
	got2, err := repo.Get(ctx, "s1")
	require.NoError(t, err)
	require.Nil(t, got2)

	require.NoError(t, repo.Ping(ctx))
}

func TestRedisRepository_TTLExpiry(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	repo := NewRedisRepository(client, "")

	ctx := context.Background()
	s := &Session{
		ID:           "s2",
		RecordNumber: "ISC02",
		CreatedAt:    time.Now().UTC(),
		ExpiresAt:    time.Now().UTC().Add(1 * time.Second),
	}

	require.NoError(t, repo.Create(ctx, s))
	require.True(t, m.Exists("session:s2"))

	// visible immediately
	got, err := repo.Get(ctx, "s2")
	require.NoError(t, err)
	require.NotNil(t, got)

	// advance miniredis clock past TTL
	m.FastForward(2 * time.Second)

	got2, err := repo.Get(ctx, "s2")
	require.NoError(t, err)
	require.Nil(t, got2)
}

func TestRedisRepository_StaleValueTreatedAsMissing(t *testing.T) {
	m, err := mr.Run()
	require.NoError(t, err)
	defer m.Close()

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	repo := NewRedisRepository(client, "")

	ctx := context.Background()
	// Stored value already expired while the key TTL is still running.
	require.NoError(t, m.Set("session:old", `{"id":"old","recordNumber":"ISC03","expiresAt":"2000-01-01T00:00:00Z"}`))

	got, err := repo.Get(ctx, "old")
	require.NoError(t, err)
	require.Nil(t, got)
	require.False(t, m.Exists("session:old"))
}
