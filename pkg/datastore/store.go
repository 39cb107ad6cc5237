package datastore

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Store gives read-only access to the aggregates of a trained model
type Store interface {
	// Categories returns every category identifier known to the model
	Categories(ctx context.Context) ([]string, error)

	// FeatureCount returns how often feature occurred in category, 0 if unseen
	FeatureCount(ctx context.Context, category, feature string) (int64, error)

	// CategoryTotal returns the total feature occurrences of category
	CategoryTotal(ctx context.Context, category string) (int64, error)

	// VocabularySize returns the number of distinct features in the model
	VocabularySize(ctx context.Context) (int64, error)
}

// FeatureCounter is implemented by stores that can return the per-category
// counts of one feature in a single lookup. Categories with a zero count may
// be omitted from the result.
type FeatureCounter interface {
	FeatureCounts(ctx context.Context, feature string) (map[string]int64, error)
}

// Kind selects a store backend
type Kind string

const (
	// Local is an in-process model loaded from a JSON file
	Local Kind = "local"
	// Remote is a model held in Redis
	Remote Kind = "remote"
)

// Kinds lists the supported backends
var Kinds = []Kind{Local, Remote}

// ParseKind resolves a backend name, case-insensitively
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case Local:
		return Local, nil
	case Remote:
		return Remote, nil
	default:
		return "", fmt.Errorf("unrecognized data source: %q", s)
	}
}

// ModelInfo summarizes the aggregates exposed by a store
type ModelInfo struct {
	Categories     []string         `json:"categories"`
	Totals         map[string]int64 `json:"totals"`
	VocabularySize int64            `json:"vocabulary_size"`
}

// Describe reads the summary aggregates of store
func Describe(ctx context.Context, store Store) (*ModelInfo, error) {
	cats, err := store.Categories(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(cats)

	info := &ModelInfo{
		Categories: cats,
		Totals:     make(map[string]int64, len(cats)),
	}
	for _, c := range cats {
		total, err := store.CategoryTotal(ctx, c)
		if err != nil {
			return nil, err
		}
		info.Totals[c] = total
	}

	info.VocabularySize, err = store.VocabularySize(ctx)
	if err != nil {
		return nil, err
	}
	return info, nil
}
