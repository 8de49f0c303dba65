package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrNotFound = errors.New("credentials already viewed or expired")

// Summary is what the operator sees after a successful provisioning request.
type Summary struct {
	TenantID    int64        `json:"tenantId"`
	TenantName  string       `json:"tenantName"`
	Kind        string       `json:"kind"`
	Credentials []Credential `json:"credentials"`
	Warnings    []string     `json:"warnings,omitempty"`
}

// Vault keeps summaries for a single read behind an opaque token.
type Vault interface {
	Put(ctx context.Context, s *Summary) (string, error)
	Take(ctx context.Context, token string) (*Summary, error)
}

type MemoryVault struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	summary *Summary
	expires time.Time
}

func NewMemoryVault(ttl time.Duration) *MemoryVault {
	return &MemoryVault{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

func (v *MemoryVault) Put(ctx context.Context, s *Summary) (string, error) {
	token := uuid.NewString()

	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	for k, e := range v.entries {
		if now.After(e.expires) {
			delete(v.entries, k)
		}
	}
	v.entries[token] = memoryEntry{summary: s, expires: now.Add(v.ttl)}
	return token, nil
}

func (v *MemoryVault) Take(ctx context.Context, token string) (*Summary, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	e, ok := v.entries[token]
	if !ok {
		return nil, ErrNotFound
	}
	delete(v.entries, token)
	if v.now().After(e.expires) {
		return nil, ErrNotFound
	}
	return e.summary, nil
}

type RedisVault struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisVault(client *redis.Client, ttl time.Duration) *RedisVault {
	return &RedisVault{client: client, ttl: ttl}
}

func (v *RedisVault) Put(ctx context.Context, s *Summary) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	token := uuid.NewString()
	if err := v.client.Set(ctx, vaultKey(token), data, v.ttl).Err(); err != nil {
		return "", fmt.Errorf("failed to store credentials: %w", err)
	}
	return token, nil
}

// Take removes the summary atomically so a token can be redeemed once.
func (v *RedisVault) Take(ctx context.Context, token string) (*Summary, error) {
	value, err := v.client.GetDel(ctx, vaultKey(token)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}
	var s Summary
	if err := json.Unmarshal([]byte(value), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func vaultKey(token string) string {
	return fmt.Sprintf("credentials:%s", token)
}
