package vault

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"kvconsole/internal/constants"
)

// RedisMedium keeps sealed blobs in Redis under a key prefix. The TTL only
// bounds blobs whose session was never torn down, e.g. after a crash.
type RedisMedium struct {
	client    *redis.Client
	prefix    string
	ttl       time.Duration
	opTimeout time.Duration
}

func NewRedisMedium(opts *redis.Options, prefix string, ttl time.Duration) (*RedisMedium, error) {
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), constants.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	if prefix == "" {
		prefix = constants.VaultKeyPrefix
	}
	return &RedisMedium{
		client:    client,
		prefix:    prefix,
		ttl:       ttl,
		opTimeout: constants.VaultOpTimeout,
	}, nil
}

func (m *RedisMedium) key(id string) string {
	return m.prefix + id
}

func (m *RedisMedium) Put(key string, blob []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.opTimeout)
	defer cancel()
	return m.client.Set(ctx, m.key(key), blob, m.ttl).Err()
}

func (m *RedisMedium) Get(key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), m.opTimeout)
	defer cancel()

	blob, err := m.client.Get(ctx, m.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return blob, true, nil
}

func (m *RedisMedium) Delete(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.opTimeout)
	defer cancel()
	return m.client.Del(ctx, m.key(key)).Err()
}

func (m *RedisMedium) Close() error {
	return m.client.Close()
}
