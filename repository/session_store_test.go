package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseSessionStore(t *testing.T, store SessionStore) {
	ctx := context.Background()
	key := "test:wizard:" + uuid.NewString()
	t.Cleanup(func() { _ = store.Delete(context.Background(), key) })

	fields, err := store.Fields(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, fields)

	require.NoError(t, store.SetField(ctx, key, "currentStep", []byte("2"), time.Minute))
	require.NoError(t, store.SetField(ctx, key, "values", []byte(`{"name":"Ani"}`), time.Minute))
	require.NoError(t, store.SetField(ctx, key, "currentStep", []byte("3"), time.Minute))

	fields, err = store.Fields(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{
		"currentStep": []byte("3"),
		"values":      []byte(`{"name":"Ani"}`),
	}, fields)

	require.NoError(t, store.Delete(ctx, key))
	fields, err = store.Fields(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, fields)
}

func TestMemorySessionStore(t *testing.T) {
	store := NewMemorySessionStore()
	defer store.Close()
	exerciseSessionStore(t, store)
}

func TestMemorySessionStore_Expiry(t *testing.T) {
	store := NewMemorySessionStore()
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.SetField(ctx, "k", "created", []byte("null"), time.Millisecond))
	time.Sleep(5 * time.Millisecond)

	fields, err := store.Fields(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, fields)
}

func TestRedisSessionStore(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	rc := redis.NewClient(opts)
	defer rc.Close()

	exerciseSessionStore(t, NewRedisSessionStore(rc))
}
