package datastore

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis model store settings
type RedisConfig struct {
	KeyPrefix   string        `json:"key_prefix" yaml:"key_prefix"`
	DatabaseNum int           `json:"database_num" yaml:"database_num"`
	DialTimeout time.Duration `json:"dial_timeout" yaml:"dial_timeout"`

	// Per-feature count cache in front of Redis
	LocalCache bool          `json:"local_cache" yaml:"local_cache"`
	CacheTTL   time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
	CacheMaxMB int           `json:"cache_max_mb" yaml:"cache_max_mb"`
}

// DefaultRedisConfig returns default Redis store configuration
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		KeyPrefix:   "zpam:model",
		DatabaseNum: 0,
		DialTimeout: 5 * time.Second,
		LocalCache:  true,
		CacheTTL:    10 * time.Minute,
		CacheMaxMB:  64,
	}
}

// RedisStore reads model aggregates from Redis.
//
// Key layout under the configured prefix:
//
//	<prefix>:categories       set of category names
//	<prefix>:category:<name>  hash with "total" and "documents"
//	<prefix>:vocabulary       distinct feature count
//	<prefix>:feature:<token>  hash of category -> count
type RedisStore struct {
	client redis.UniversalClient
	config *RedisConfig
	cache  *bigcache.BigCache
}

// NewRedisStore connects to the Redis instance at url
func NewRedisStore(ctx context.Context, url string, config *RedisConfig) (*RedisStore, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}

	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, permanent("connect", url, fmt.Errorf("invalid Redis URL: %w", err))
	}
	// A non-zero database overrides the one in the URL
	if config.DatabaseNum > 0 {
		opt.DB = config.DatabaseNum
	}
	if config.DialTimeout > 0 {
		opt.DialTimeout = config.DialTimeout
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, transient("connect", url, fmt.Errorf("Redis connection failed: %w", err))
	}

	rs, err := NewRedisStoreWithClient(client, config)
	if err != nil {
		client.Close()
		return nil, err
	}
	return rs, nil
}

// NewRedisStoreWithClient wraps an existing client
func NewRedisStoreWithClient(client redis.UniversalClient, config *RedisConfig) (*RedisStore, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}

	rs := &RedisStore{client: client, config: config}

	if config.LocalCache {
		cacheCfg := bigcache.DefaultConfig(config.CacheTTL)
		cacheCfg.HardMaxCacheSize = config.CacheMaxMB
		cacheCfg.Verbose = false
		cache, err := bigcache.New(context.Background(), cacheCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create feature cache: %w", err)
		}
		rs.cache = cache
	}

	return rs, nil
}

func (rs *RedisStore) Categories(ctx context.Context) ([]string, error) {
	cats, err := rs.client.SMembers(ctx, rs.categoriesKey()).Result()
	if err != nil {
		return nil, redisError("categories", rs.categoriesKey(), err)
	}
	sort.Strings(cats)
	return cats, nil
}

func (rs *RedisStore) FeatureCount(ctx context.Context, category, feature string) (int64, error) {
	if rs.cache != nil {
		counts, err := rs.FeatureCounts(ctx, feature)
		if err != nil {
			return 0, err
		}
		return counts[category], nil
	}

	val, err := rs.client.HGet(ctx, rs.featureKey(feature), category).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, redisError("feature_count", feature, err)
	}
	return parseCount("feature_count", feature, val)
}

func (rs *RedisStore) FeatureCounts(ctx context.Context, feature string) (map[string]int64, error) {
	key := rs.featureKey(feature)

	if rs.cache != nil {
		if data, err := rs.cache.Get(key); err == nil {
			var counts map[string]int64
			if err := json.Unmarshal(data, &counts); err == nil {
				return counts, nil
			}
		}
	}

	raw, err := rs.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, redisError("feature_counts", feature, err)
	}

	counts := make(map[string]int64, len(raw))
	for cat, val := range raw {
		n, err := parseCount("feature_counts", feature, val)
		if err != nil {
			return nil, err
		}
		counts[cat] = n
	}

	if rs.cache != nil {
		if data, err := json.Marshal(counts); err == nil {
			rs.cache.Set(key, data)
		}
	}

	return counts, nil
}

func (rs *RedisStore) CategoryTotal(ctx context.Context, category string) (int64, error) {
	val, err := rs.client.HGet(ctx, rs.categoryKey(category), "total").Result()
	if err != nil {
		return 0, redisError("category_total", category, err)
	}
	return parseCount("category_total", category, val)
}

func (rs *RedisStore) VocabularySize(ctx context.Context) (int64, error) {
	val, err := rs.client.Get(ctx, rs.vocabularyKey()).Result()
	if err != nil {
		return 0, redisError("vocabulary_size", rs.vocabularyKey(), err)
	}
	return parseCount("vocabulary_size", rs.vocabularyKey(), val)
}

// WriteModel publishes model under the store's prefix, replacing whatever
// model was there. Existing category and feature keys are removed and the
// new model is written in one MULTI/EXEC transaction, so readers see either
// the old model or the new one.
func (rs *RedisStore) WriteModel(ctx context.Context, model *Model) error {
	ms, err := NewMemoryStore(model)
	if err != nil {
		return err
	}

	stale, err := rs.modelKeys(ctx)
	if err != nil {
		return err
	}

	pipe := rs.client.TxPipeline()
	if len(stale) > 0 {
		pipe.Del(ctx, stale...)
	}
	pipe.Del(ctx, rs.categoriesKey(), rs.vocabularyKey())

	for name, cat := range model.Categories {
		pipe.SAdd(ctx, rs.categoriesKey(), name)
		pipe.HSet(ctx, rs.categoryKey(name), "total", ms.totals[name], "documents", cat.Documents)

		for feature, n := range cat.Features {
			if n == 0 {
				continue
			}
			pipe.HSet(ctx, rs.featureKey(feature), name, n)
		}
	}
	pipe.Set(ctx, rs.vocabularyKey(), ms.vocabulary, 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return redisError("write_model", rs.config.KeyPrefix, err)
	}
	return nil
}

// modelKeys lists the category and feature hashes under the prefix
func (rs *RedisStore) modelKeys(ctx context.Context) ([]string, error) {
	var keys []string
	for _, pattern := range []string{
		rs.config.KeyPrefix + ":category:*",
		rs.config.KeyPrefix + ":feature:*",
	} {
		iter := rs.client.Scan(ctx, 0, pattern, 1000).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return nil, redisError("scan_model", pattern, err)
		}
	}
	return keys, nil
}

// Close releases the cache and the Redis connection
func (rs *RedisStore) Close() error {
	if rs.cache != nil {
		rs.cache.Close()
	}
	return rs.client.Close()
}

// Helper methods
func (rs *RedisStore) categoriesKey() string {
	return rs.config.KeyPrefix + ":categories"
}

func (rs *RedisStore) categoryKey(category string) string {
	return fmt.Sprintf("%s:category:%s", rs.config.KeyPrefix, category)
}

func (rs *RedisStore) vocabularyKey() string {
	return rs.config.KeyPrefix + ":vocabulary"
}

func (rs *RedisStore) featureKey(feature string) string {
	// Hash long features to keep key size manageable
	if len(feature) > 64 {
		h := sha1.Sum([]byte(feature))
		feature = fmt.Sprintf("hash_%x", h)
	}
	return fmt.Sprintf("%s:feature:%s", rs.config.KeyPrefix, feature)
}

// redisError classifies a client error. A missing key means the model is
// incomplete and will not heal by retrying; everything else is treated as
// a connectivity problem.
func redisError(op, key string, err error) error {
	switch {
	case errors.Is(err, redis.Nil):
		return permanent(op, key, ErrMissingAggregate)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return permanent(op, key, err)
	default:
		return transient(op, key, err)
	}
}

func parseCount(op, key, val string) (int64, error) {
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, permanent(op, key, fmt.Errorf("invalid count %q: %w", val, err))
	}
	if n < 0 {
		return 0, permanent(op, key, fmt.Errorf("negative count %d", n))
	}
	return n, nil
}

var (
	_ Store          = (*RedisStore)(nil)
	_ FeatureCounter = (*RedisStore)(nil)
)
