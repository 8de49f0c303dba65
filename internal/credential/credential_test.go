package credential

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestGenerate(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		p, err := Generate()
		require.NoError(t, err)
		assert.Len(t, p, 16)
		_, err = hex.DecodeString(p)
		assert.NoError(t, err, "password must be hex")
		assert.False(t, seen[p], "duplicate password")
		seen[p] = true
	}
}

func TestNew_HashVerifies(t *testing.T) {
	plaintext, hash, err := New()
	require.NoError(t, err)

	assert.NotEqual(t, plaintext, hash)
	assert.True(t, Verify(hash, plaintext))
	assert.False(t, Verify(hash, plaintext+"x"))
}

func TestCredential_Login(t *testing.T) {
	assert.Equal(t, "a@example.com", Credential{Email: "a@example.com", Phone: "1"}.Login())
	assert.Equal(t, "555", Credential{Phone: "555"}.Login())
}

func TestMemoryVault(t *testing.T) {
	ctx := context.Background()

	t.Run("single read", func(t *testing.T) {
		v := NewMemoryVault(time.Minute)
		token, err := v.Put(ctx, &Summary{TenantName: "North", Kind: "student", Credentials: []Credential{{Name: "Jane", Password: "p"}}})
		require.NoError(t, err)

		got, err := v.Take(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "North", got.TenantName)
		require.Len(t, got.Credentials, 1)

		_, err = v.Take(ctx, token)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("expired", func(t *testing.T) {
		v := NewMemoryVault(time.Minute)
		now := time.Now()
		v.now = func() time.Time { return now }

		token, err := v.Put(ctx, &Summary{Kind: "teacher"})
		require.NoError(t, err)

		now = now.Add(2 * time.Minute)
		_, err = v.Take(ctx, token)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("unknown token", func(t *testing.T) {
		_, err := NewMemoryVault(time.Minute).Take(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestRedisVault(t *testing.T) {
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp"),
		},
		Started: true,
	})
	require.NoError(t, err)
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}()

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	defer client.Close()
	require.NoError(t, client.Ping(ctx).Err())

	v := NewRedisVault(client, time.Minute)
	token, err := v.Put(ctx, &Summary{TenantID: 7, Kind: "parent", Credentials: []Credential{{Kind: "parent", Name: "John", Email: "john@example.com", Password: "abc"}}})
	require.NoError(t, err)

	ttl, err := client.TTL(ctx, vaultKey(token)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	got, err := v.Take(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.TenantID)
	assert.Equal(t, "john@example.com", got.Credentials[0].Email)

	_, err = v.Take(ctx, token)
	assert.ErrorIs(t, err, ErrNotFound)
}
