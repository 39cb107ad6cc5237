package datastore

import (
	"context"
	"fmt"
	"io"
)

// Open builds the store selected by kind. For Local, basePath is the JSON
// model file; for Remote it is the Redis URL.
func Open(ctx context.Context, kind Kind, basePath string, redisCfg *RedisConfig) (Store, error) {
	if basePath == "" {
		return nil, fmt.Errorf("base path is required for %s data source", kind)
	}

	switch kind {
	case Local:
		ms, err := LoadModelFile(basePath)
		if err != nil {
			return nil, err
		}
		return ms, nil
	case Remote:
		rs, err := NewRedisStore(ctx, basePath, redisCfg)
		if err != nil {
			return nil, err
		}
		return rs, nil
	default:
		return nil, fmt.Errorf("unrecognized data source: %q", string(kind))
	}
}

// Close releases store resources when the backend holds any
func Close(store Store) error {
	if c, ok := store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
