package datastore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"
)

// Model is the on-disk form of a trained model
type Model struct {
	Categories map[string]*CategoryModel `json:"categories"`
	TrainedAt  time.Time                 `json:"trained_at,omitempty"`
}

// CategoryModel holds the counts learned for one category
type CategoryModel struct {
	Features map[string]int64 `json:"features"`

	// Total feature occurrences; computed from Features when zero
	Total int64 `json:"total,omitempty"`

	// Documents seen for this category, informational only
	Documents int64 `json:"documents,omitempty"`
}

// MemoryStore serves a model held entirely in process memory.
// It is immutable once built and safe for concurrent readers.
type MemoryStore struct {
	categories []string
	totals     map[string]int64
	counts     map[string]map[string]int64 // feature -> category -> count
	vocabulary int64
	path       string
}

// NewMemoryStore builds a store over model, validating its counts
func NewMemoryStore(model *Model) (*MemoryStore, error) {
	if model == nil {
		return nil, permanent("load", "", fmt.Errorf("nil model: %w", ErrMissingAggregate))
	}

	ms := &MemoryStore{
		totals: make(map[string]int64, len(model.Categories)),
		counts: make(map[string]map[string]int64),
	}

	for name, cat := range model.Categories {
		if cat == nil {
			return nil, permanent("load", name, fmt.Errorf("category has no data: %w", ErrMissingAggregate))
		}

		var sum int64
		for feature, n := range cat.Features {
			if n < 0 {
				return nil, permanent("load", name, fmt.Errorf("negative count %d for feature %q", n, feature))
			}
			if n == 0 {
				continue
			}
			byCat, ok := ms.counts[feature]
			if !ok {
				byCat = make(map[string]int64)
				ms.counts[feature] = byCat
			}
			byCat[name] = n
			sum += n
		}

		total := cat.Total
		if total == 0 {
			total = sum
		}
		if total < sum {
			return nil, permanent("load", name, fmt.Errorf("total %d smaller than summed counts %d", total, sum))
		}

		ms.categories = append(ms.categories, name)
		ms.totals[name] = total
	}

	sort.Strings(ms.categories)
	ms.vocabulary = int64(len(ms.counts))

	return ms, nil
}

// ReadModelFile decodes the JSON model at path
func ReadModelFile(path string) (*Model, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, permanent("load", path, fmt.Errorf("failed to open model file: %w", err))
	}
	defer file.Close()

	var model Model
	if err := json.NewDecoder(file).Decode(&model); err != nil {
		return nil, permanent("load", path, fmt.Errorf("failed to decode model: %w", err))
	}
	return &model, nil
}

// LoadModelFile reads a JSON model from path into a MemoryStore
func LoadModelFile(path string) (*MemoryStore, error) {
	model, err := ReadModelFile(path)
	if err != nil {
		return nil, err
	}

	ms, err := NewMemoryStore(model)
	if err != nil {
		return nil, err
	}
	ms.path = path
	return ms, nil
}

// SaveModel writes model to path as indented JSON
func SaveModel(model *Model, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create model file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(model); err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}
	return file.Close()
}

// Path returns the file the store was loaded from, if any
func (ms *MemoryStore) Path() string {
	return ms.path
}

func (ms *MemoryStore) Categories(ctx context.Context) ([]string, error) {
	out := make([]string, len(ms.categories))
	copy(out, ms.categories)
	return out, nil
}

func (ms *MemoryStore) FeatureCount(ctx context.Context, category, feature string) (int64, error) {
	return ms.counts[feature][category], nil
}

func (ms *MemoryStore) CategoryTotal(ctx context.Context, category string) (int64, error) {
	total, ok := ms.totals[category]
	if !ok {
		return 0, permanent("category_total", category, ErrMissingAggregate)
	}
	return total, nil
}

func (ms *MemoryStore) VocabularySize(ctx context.Context) (int64, error) {
	return ms.vocabulary, nil
}

func (ms *MemoryStore) FeatureCounts(ctx context.Context, feature string) (map[string]int64, error) {
	byCat := ms.counts[feature]
	out := make(map[string]int64, len(byCat))
	for c, n := range byCat {
		out[c] = n
	}
	return out, nil
}

var (
	_ Store          = (*MemoryStore)(nil)
	_ FeatureCounter = (*MemoryStore)(nil)
)
