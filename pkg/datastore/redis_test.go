package datastore

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

var testRedisConfig = &RedisConfig{
	KeyPrefix:   "zpam:test:model",
	DialTimeout: time.Second,
	LocalCache:  false,
}

func newTestRedisStore(t *testing.T, config *RedisConfig) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rs, err := NewRedisStore(context.Background(), "redis://"+mr.Addr(), config)
	if err != nil {
		t.Fatalf("Failed to create Redis store: %v", err)
	}
	t.Cleanup(func() { rs.Close() })

	return rs, mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	for _, cached := range []bool{false, true} {
		name := "uncached"
		if cached {
			name = "cached"
		}
		t.Run(name, func(t *testing.T) {
			cfg := *testRedisConfig
			cfg.LocalCache = cached
			cfg.CacheTTL = time.Minute
			cfg.CacheMaxMB = 8

			rs, _ := newTestRedisStore(t, &cfg)
			ctx := context.Background()

			if err := rs.WriteModel(ctx, sampleModel()); err != nil {
				t.Fatalf("WriteModel failed: %v", err)
			}

			cats, err := rs.Categories(ctx)
			if err != nil {
				t.Fatalf("Categories failed: %v", err)
			}
			if want := []string{"money", "sports"}; !reflect.DeepEqual(cats, want) {
				t.Errorf("Categories = %v, expected %v", cats, want)
			}

			if total, err := rs.CategoryTotal(ctx, "sports"); err != nil || total != 9 {
				t.Errorf("CategoryTotal(sports) = %d, %v; expected 9", total, err)
			}
			if vocab, err := rs.VocabularySize(ctx); err != nil || vocab != 4 {
				t.Errorf("VocabularySize = %d, %v; expected 4", vocab, err)
			}
			if n, err := rs.FeatureCount(ctx, "money", "stock"); err != nil || n != 5 {
				t.Errorf("FeatureCount(money, stock) = %d, %v; expected 5", n, err)
			}
			if n, err := rs.FeatureCount(ctx, "sports", "unseen"); err != nil || n != 0 {
				t.Errorf("FeatureCount(sports, unseen) = %d, %v; expected 0", n, err)
			}

			counts, err := rs.FeatureCounts(ctx, "the")
			if err != nil {
				t.Fatalf("FeatureCounts failed: %v", err)
			}
			if want := map[string]int64{"money": 3, "sports": 2}; !reflect.DeepEqual(counts, want) {
				t.Errorf("FeatureCounts(the) = %v, expected %v", counts, want)
			}
		})
	}
}

func TestRedisStoreLongFeatureKeys(t *testing.T) {
	rs, _ := newTestRedisStore(t, testRedisConfig)
	ctx := context.Background()

	long := strings.Repeat("token ", 20)
	model := &Model{Categories: map[string]*CategoryModel{
		"a": {Features: map[string]int64{long: 7}},
	}}
	if err := rs.WriteModel(ctx, model); err != nil {
		t.Fatalf("WriteModel failed: %v", err)
	}

	if key := rs.featureKey(long); !strings.Contains(key, "hash_") {
		t.Errorf("expected hashed key, got %q", key)
	}
	if n, err := rs.FeatureCount(ctx, "a", long); err != nil || n != 7 {
		t.Errorf("FeatureCount(long) = %d, %v; expected 7", n, err)
	}
}

func TestRedisStoreRepublishReplacesModel(t *testing.T) {
	rs, mr := newTestRedisStore(t, testRedisConfig)
	ctx := context.Background()

	// Another model sharing the server must survive
	mr.HSet("zpam:other:feature:stale", "a", "9")

	first := &Model{Categories: map[string]*CategoryModel{
		"a":    {Features: map[string]int64{"stale": 7, "x": 1}},
		"gone": {Features: map[string]int64{"x": 4}},
	}}
	if err := rs.WriteModel(ctx, first); err != nil {
		t.Fatalf("first WriteModel failed: %v", err)
	}

	second := &Model{Categories: map[string]*CategoryModel{
		"a": {Features: map[string]int64{"x": 1}},
		"b": {Features: map[string]int64{"y": 1}},
	}}
	if err := rs.WriteModel(ctx, second); err != nil {
		t.Fatalf("second WriteModel failed: %v", err)
	}

	cats, _ := rs.Categories(ctx)
	if want := []string{"a", "b"}; !reflect.DeepEqual(cats, want) {
		t.Errorf("Categories = %v, expected %v", cats, want)
	}

	tests := []struct {
		category, feature string
		want              int64
	}{
		{"a", "stale", 0},
		{"a", "x", 1},
		{"gone", "x", 0},
		{"b", "y", 1},
	}
	for _, tt := range tests {
		if n, err := rs.FeatureCount(ctx, tt.category, tt.feature); err != nil || n != tt.want {
			t.Errorf("FeatureCount(%s, %s) = %d, %v; expected %d", tt.category, tt.feature, n, err, tt.want)
		}
	}

	if total, err := rs.CategoryTotal(ctx, "a"); err != nil || total != 1 {
		t.Errorf("CategoryTotal(a) = %d, %v; expected 1", total, err)
	}
	if _, err := rs.CategoryTotal(ctx, "gone"); !errors.Is(err, ErrMissingAggregate) {
		t.Errorf("dropped category should have no total, got %v", err)
	}
	if vocab, _ := rs.VocabularySize(ctx); vocab != 2 {
		t.Errorf("VocabularySize = %d, expected 2", vocab)
	}
	if mr.HGet("zpam:other:feature:stale", "a") != "9" {
		t.Error("republish removed keys outside its prefix")
	}
}

func TestRedisStoreMissingAggregates(t *testing.T) {
	rs, mr := newTestRedisStore(t, testRedisConfig)
	ctx := context.Background()

	mr.SetAdd(testRedisConfig.KeyPrefix+":categories", "orphan")

	_, err := rs.CategoryTotal(ctx, "orphan")
	var se *StoreError
	if !errors.As(err, &se) {
		t.Fatalf("expected StoreError, got %v", err)
	}
	if se.Transient {
		t.Error("missing total should be a permanent error")
	}

	if _, err := rs.VocabularySize(ctx); !errors.Is(err, ErrMissingAggregate) {
		t.Errorf("expected ErrMissingAggregate for vocabulary, got %v", err)
	}
}

func TestRedisStoreInvalidCount(t *testing.T) {
	rs, mr := newTestRedisStore(t, testRedisConfig)

	mr.Set(testRedisConfig.KeyPrefix+":vocabulary", "many")

	_, err := rs.VocabularySize(context.Background())
	var se *StoreError
	if !errors.As(err, &se) || se.Transient {
		t.Errorf("expected permanent StoreError, got %v", err)
	}
}

func TestRedisStoreConnectionLost(t *testing.T) {
	rs, mr := newTestRedisStore(t, testRedisConfig)
	mr.Close()

	_, err := rs.Categories(context.Background())
	if !IsTransient(err) {
		t.Errorf("expected transient StoreError after connection loss, got %v", err)
	}
}

func TestNewRedisStoreErrors(t *testing.T) {
	ctx := context.Background()

	if _, err := NewRedisStore(ctx, "not-a-url", testRedisConfig); err == nil || IsTransient(err) {
		t.Errorf("expected permanent error for invalid URL, got %v", err)
	}

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	if _, err := NewRedisStore(ctx, "redis://"+addr, testRedisConfig); !IsTransient(err) {
		t.Errorf("expected transient error for unreachable Redis, got %v", err)
	}
}
