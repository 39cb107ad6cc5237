package classifier

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/zpam/categorizer/pkg/algorithm"
	"github.com/zpam/categorizer/pkg/datastore"
)

// DefaultAlpha is the additive smoothing constant used when none is set
const DefaultAlpha = 1.0

// Result is the outcome of classifying one document
type Result struct {
	Label string
	Score float64

	// Evidence is false when no document feature was known to the model
	// and Label is the caller's default category
	Evidence bool
}

// Context pairs a scoring algorithm with a model store and caches the
// model aggregates read by Initialize. After Initialize it is read-only;
// one Context per worker is the intended use.
type Context struct {
	alg   algorithm.Algorithm
	store datastore.Store
	alpha float64

	mu   sync.Mutex
	snap *algorithm.Snapshot
}

// NewContext creates an uninitialized context. A non-positive alpha
// selects DefaultAlpha.
func NewContext(alg algorithm.Algorithm, store datastore.Store, alpha float64) *Context {
	if alpha <= 0 {
		alpha = DefaultAlpha
	}
	return &Context{
		alg:   alg,
		store: store,
		alpha: alpha,
	}
}

// Initialize loads the category set, per-category totals and vocabulary
// size from the store. Once it has succeeded, later calls return
// immediately without touching the store.
func (c *Context) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.snap != nil {
		return nil
	}

	cats, err := c.store.Categories(ctx)
	if err != nil {
		return fmt.Errorf("failed to load categories: %w", err)
	}
	if len(cats) == 0 {
		return &InvalidModelError{Reason: "model has no categories"}
	}
	cats = append([]string(nil), cats...)
	sort.Strings(cats)

	vocab, err := c.store.VocabularySize(ctx)
	if err != nil {
		return fmt.Errorf("failed to load vocabulary size: %w", err)
	}
	if vocab <= 0 {
		return &InvalidModelError{Reason: "model vocabulary is empty"}
	}

	snap := &algorithm.Snapshot{
		Categories: cats,
		Totals:     make([]int64, len(cats)),
		Vocabulary: vocab,
		Alpha:      c.alpha,
	}
	for i, cat := range cats {
		total, err := c.store.CategoryTotal(ctx, cat)
		if err != nil {
			return fmt.Errorf("failed to load total for category %q: %w", cat, err)
		}
		snap.Totals[i] = total
	}

	c.snap = snap
	return nil
}

// Initialized reports whether Initialize has succeeded
func (c *Context) Initialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap != nil
}

// Snapshot returns the cached aggregates, nil before Initialize
func (c *Context) Snapshot() *algorithm.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

// Algorithm returns the scoring algorithm
func (c *Context) Algorithm() algorithm.Algorithm {
	return c.alg
}

// Store returns the underlying model store
func (c *Context) Store() datastore.Store {
	return c.store
}

// Classify scores features against every category and returns the winner.
// Every feature is scored, known or not. Ties go to the category that
// sorts first. When no feature is known to any category the result is defaultCategory with the algorithm's sentinel score.
// Store failures are returned and never turned into the default category.
func (c *Context) Classify(ctx context.Context, features []string, defaultCategory string) (Result, error) {
	snap := c.Snapshot()
	if snap == nil {
		return Result{}, ErrNotInitialized
	}

	evidence, err := algorithm.Gather(ctx, c.store, snap, features)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read feature counts: %w", err)
	}
	if !algorithm.HasEvidence(evidence) {
		return Result{Label: defaultCategory, Score: c.alg.NoEvidence()}, nil
	}

	scores := c.alg.Scores(snap, evidence)
	best := 0
	for i := 1; i < len(scores); i++ {
		if c.alg.Better(scores[i], scores[best]) {
			best = i
		}
	}

	return Result{
		Label:    snap.Categories[best],
		Score:    scores[best],
		Evidence: true,
	}, nil
}
