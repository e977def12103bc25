package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"backpack/internal/ledger/models"
	id "backpack/pkg/domain"
)

const defaultKeyPrefix = "backpack:top"

// Redis stores entries as JSON under backpack:top:<namespace>:<backpack>:<count>
// with a TTL. The namespace names the ledger the entries were computed from:
// backpack ids are only unique within one ledger, so ledgers sharing a Redis
// must never share a namespace.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// NewRedis builds a Redis-backed cache for the ledger identified by
// namespace. A zero ttl keeps entries until evicted.
func NewRedis(client redis.UniversalClient, ttl time.Duration, namespace string) (*Redis, error) {
	if namespace == "" {
		return nil, errors.New("redis cache requires a ledger namespace")
	}
	return &Redis{client: client, ttl: ttl, prefix: defaultKeyPrefix + ":" + namespace}, nil
}

func (c *Redis) key(backpackID id.BackpackID, count int) string {
	return fmt.Sprintf("%s:%s:%d", c.prefix, backpackID, count)
}

func (c *Redis) Get(ctx context.Context, backpackID id.BackpackID, count int) (models.Category, bool, error) {
	raw, err := c.client.Get(ctx, c.key(backpackID, count)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Category{}, false, nil
	}
	if err != nil {
		return models.Category{}, false, fmt.Errorf("redis get: %w", err)
	}
	var category models.Category
	if err := json.Unmarshal(raw, &category); err != nil {
		return models.Category{}, false, fmt.Errorf("decode cached category: %w", err)
	}
	return category, true, nil
}

func (c *Redis) Put(ctx context.Context, backpackID id.BackpackID, count int, category models.Category) error {
	raw, err := json.Marshal(category)
	if err != nil {
		return fmt.Errorf("encode category: %w", err)
	}
	if err := c.client.Set(ctx, c.key(backpackID, count), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
