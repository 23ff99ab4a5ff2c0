package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/treedata/internal/logging"
	"github.com/JonMunkholm/treedata/internal/schema"
)

// CachedStore caches tree schemas in Redis. Entries are keyed by the tree's
// schema version, so a structural change moves readers to a new key and
// stale entries simply expire. Redis failures fall back to the wrapped
// store.
type CachedStore struct {
	Store
	rdb    redis.UniversalClient
	ttl    time.Duration
	prefix string
}

// NewCachedStore wraps next with a schema cache.
func NewCachedStore(next Store, rdb redis.UniversalClient, ttl time.Duration, prefix string) *CachedStore {
	if prefix == "" {
		prefix = "treedata"
	}
	return &CachedStore{Store: next, rdb: rdb, ttl: ttl, prefix: prefix}
}

// NewRedisClient parses a redis:// URL and checks connectivity.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (c *CachedStore) key(tree schema.Tree) string {
	return fmt.Sprintf("%s:schema:%d:v%d", c.prefix, tree.ID, tree.SchemaVersion)
}

// ListTables serves the tree's tables from Redis when the cached schema
// version matches.
func (c *CachedStore) ListTables(ctx context.Context, treeID int64) ([]schema.Table, error) {
	tree, err := c.Store.GetTree(ctx, treeID)
	if err != nil {
		return nil, err
	}
	key := c.key(tree)
	logger := logging.WithFields(ctx, "tree_id", treeID, "cache_key", key)

	b, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var tables []schema.Table
		if err := json.Unmarshal(b, &tables); err == nil {
			return tables, nil
		}
		logger.Warn("discarding unreadable schema cache entry")
	case !errors.Is(err, redis.Nil):
		logger.Warn("schema cache read failed", "error", err)
	}

	tables, err := c.Store.ListTables(ctx, treeID)
	if err != nil {
		return nil, err
	}

	if b, err := json.Marshal(tables); err == nil {
		if err := c.rdb.Set(ctx, key, b, c.ttl).Err(); err != nil {
			logger.Warn("schema cache write failed", "error", err)
		}
	}
	return tables, nil
}

// Invalidate drops every cached schema version of a tree.
func (c *CachedStore) Invalidate(ctx context.Context, treeID int64) error {
	pattern := fmt.Sprintf("%s:schema:%d:v*", c.prefix, treeID)
	iter := c.rdb.Scan(ctx, 0, pattern, 100).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan schema cache: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidate schema cache: %w", err)
	}
	return nil
}
