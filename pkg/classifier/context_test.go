package classifier

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zpam/categorizer/pkg/algorithm"
	"github.com/zpam/categorizer/pkg/datastore"
	"github.com/zpam/categorizer/pkg/features"
)

func newsModel() *datastore.Model {
	return &datastore.Model{Categories: map[string]*datastore.CategoryModel{
		"money":  {Features: map[string]int64{"stock": 5, "the": 3, "price": 2}},
		"sports": {Features: map[string]int64{"game": 4, "team": 3, "the": 2}},
	}}
}

// countingStore counts aggregate reads and can fail on demand
type countingStore struct {
	datastore.Store

	categoryReads atomic.Int32
	failures      atomic.Int32 // transient failures left before Categories succeeds
	featureErr    error
	categories    []string
	vocabulary    int64
}

func newCountingStore(t *testing.T) *countingStore {
	t.Helper()
	ms, err := datastore.NewMemoryStore(newsModel())
	if err != nil {
		t.Fatalf("NewMemoryStore failed: %v", err)
	}
	return &countingStore{Store: ms, vocabulary: -1}
}

func (s *countingStore) Categories(ctx context.Context) ([]string, error) {
	s.categoryReads.Add(1)
	if s.failures.Load() > 0 {
		s.failures.Add(-1)
		return nil, &datastore.StoreError{Op: "categories", Transient: true, Err: errors.New("connection reset")}
	}
	if s.categories != nil {
		return s.categories, nil
	}
	return s.Store.Categories(ctx)
}

func (s *countingStore) VocabularySize(ctx context.Context) (int64, error) {
	if s.vocabulary >= 0 {
		return s.vocabulary, nil
	}
	return s.Store.VocabularySize(ctx)
}

func (s *countingStore) FeatureCount(ctx context.Context, category, feature string) (int64, error) {
	if s.featureErr != nil {
		return 0, s.featureErr
	}
	return s.Store.FeatureCount(ctx, category, feature)
}

func newContext(t *testing.T, kind algorithm.Kind, store datastore.Store) *Context {
	t.Helper()
	alg, err := algorithm.New(kind)
	if err != nil {
		t.Fatal(err)
	}
	c := NewContext(alg, store, 0)
	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return c
}

func TestInitializeTwiceReadsOnce(t *testing.T) {
	store := newCountingStore(t)
	c := newContext(t, algorithm.Bayes, store)
	first := c.Snapshot()

	if err := c.Initialize(context.Background()); err != nil {
		t.Fatalf("second Initialize failed: %v", err)
	}
	if c.Snapshot() != first {
		t.Error("second Initialize replaced the snapshot")
	}
	if n := store.categoryReads.Load(); n != 1 {
		t.Errorf("categories read %d times, expected 1", n)
	}

	if first.Alpha != DefaultAlpha {
		t.Errorf("Alpha = %g, expected %g", first.Alpha, DefaultAlpha)
	}
	if first.Vocabulary != 5 {
		t.Errorf("Vocabulary = %d, expected 5", first.Vocabulary)
	}
	if first.Totals[0] != 10 || first.Totals[1] != 9 {
		t.Errorf("Totals = %v, expected [10 9]", first.Totals)
	}
}

func TestInitializeInvalidModel(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*countingStore)
	}{
		{"no categories", func(s *countingStore) { s.categories = []string{} }},
		{"empty vocabulary", func(s *countingStore) { s.vocabulary = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newCountingStore(t)
			tt.setup(store)

			c := NewContext(algorithm.BayesAlgorithm{}, store, 1)
			err := c.Initialize(context.Background())
			if !IsInvalidModel(err) {
				t.Fatalf("expected InvalidModelError, got %v", err)
			}
			if c.Initialized() {
				t.Error("context should stay uninitialized")
			}
		})
	}
}

// reversedStore lists categories in reverse lexicographic order
type reversedStore struct {
	datastore.Store
}

func (s reversedStore) Categories(ctx context.Context) ([]string, error) {
	cats, err := s.Store.Categories(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(cats))
	for i, c := range cats {
		out[len(cats)-1-i] = c
	}
	return out, nil
}

func TestTiesIgnoreStoreOrder(t *testing.T) {
	ms, err := datastore.NewMemoryStore(&datastore.Model{Categories: map[string]*datastore.CategoryModel{
		"zeta":  {Features: map[string]int64{"x": 2, "y": 1}},
		"alpha": {Features: map[string]int64{"x": 2, "y": 1}},
	}})
	if err != nil {
		t.Fatal(err)
	}
	store := reversedStore{ms}
	if cats, _ := store.Categories(context.Background()); cats[0] != "zeta" {
		t.Fatalf("store order = %v, expected zeta first", cats)
	}

	for _, kind := range algorithm.Kinds {
		c := newContext(t, kind, store)
		if got := c.Snapshot().Categories; got[0] != "alpha" || got[1] != "zeta" {
			t.Errorf("%s: snapshot categories %v, expected sorted", kind, got)
		}

		res, err := c.Classify(context.Background(), []string{"x", "y"}, "misc")
		if err != nil {
			t.Fatalf("%s: Classify failed: %v", kind, err)
		}
		if res.Label != "alpha" {
			t.Errorf("%s: tie went to %s, expected alpha", kind, res.Label)
		}
	}
}

func TestClassifyScoresUnknownFeatures(t *testing.T) {
	ms, err := datastore.NewMemoryStore(&datastore.Model{Categories: map[string]*datastore.CategoryModel{
		"a": {Features: map[string]int64{"k": 500, "z": 500}},
		"b": {Features: map[string]int64{"z": 100}},
	}})
	if err != nil {
		t.Fatal(err)
	}
	c := newContext(t, algorithm.Bayes, ms)

	res, err := c.Classify(context.Background(), features.NGrams("k u u u", 1), "misc")
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}
	want := 4 * math.Log(1.0/102.0)
	if res.Label != "b" || !res.Evidence || math.Abs(res.Score-want) > 1e-9 {
		t.Errorf("got %+v, expected b with score %v", res, want)
	}
}

func TestClassifyBeforeInitialize(t *testing.T) {
	c := NewContext(algorithm.BayesAlgorithm{}, newCountingStore(t), 1)
	_, err := c.Classify(context.Background(), []string{"stock"}, "misc")
	if !errors.Is(err, ErrNotInitialized) {
		t.Errorf("expected ErrNotInitialized, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		kind algorithm.Kind
		text string
		want string
	}{
		{algorithm.Bayes, "stock price", "money"},
		{algorithm.Bayes, "game team the", "sports"},
		{algorithm.CBayes, "stock price", "money"},
		{algorithm.CBayes, "game team the", "sports"},
		{algorithm.CBayes, "the", "money"},
	}

	for _, tt := range tests {
		c := newContext(t, tt.kind, newCountingStore(t))
		res, err := c.Classify(context.Background(), features.NGrams(tt.text, 1), "misc")
		if err != nil {
			t.Fatalf("%s %q: Classify failed: %v", tt.kind, tt.text, err)
		}
		if res.Label != tt.want {
			t.Errorf("%s %q: got %s, expected %s", tt.kind, tt.text, res.Label, tt.want)
		}
		if !res.Evidence {
			t.Errorf("%s %q: expected evidence", tt.kind, tt.text)
		}
	}
}

func TestClassifyFallsBackToDefault(t *testing.T) {
	for _, kind := range algorithm.Kinds {
		c := newContext(t, kind, newCountingStore(t))

		for _, text := range []string{"", "zebra unicorn", "   "} {
			res, err := c.Classify(context.Background(), features.NGrams(text, 2), "misc")
			if err != nil {
				t.Fatalf("Classify failed: %v", err)
			}
			if res.Label != "misc" || res.Evidence {
				t.Errorf("%s %q: got %+v, expected default without evidence", kind, text, res)
			}
			if res.Score != c.Algorithm().NoEvidence() {
				t.Errorf("%s %q: score %v, expected sentinel", kind, text, res.Score)
			}
		}
	}

	c := newContext(t, algorithm.Bayes, newCountingStore(t))
	res, _ := c.Classify(context.Background(), nil, "misc")
	if !math.IsInf(res.Score, -1) {
		t.Errorf("Bayes sentinel = %v, expected -Inf", res.Score)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	c := newContext(t, algorithm.CBayes, newCountingStore(t))
	feats := features.NGrams("the stock game the team price", 2)

	first, err := c.Classify(context.Background(), feats, "misc")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 20; i++ {
		res, err := c.Classify(context.Background(), feats, "misc")
		if err != nil {
			t.Fatal(err)
		}
		if res != first {
			t.Fatalf("run %d: got %+v, expected %+v", i, res, first)
		}
	}
}

func TestClassifyStoreErrorIsNotFallback(t *testing.T) {
	store := newCountingStore(t)
	c := newContext(t, algorithm.Bayes, store)

	store.featureErr = &datastore.StoreError{Op: "feature_count", Transient: true, Err: errors.New("timeout")}

	res, err := c.Classify(context.Background(), []string{"stock"}, "misc")
	if err == nil {
		t.Fatalf("expected store error, got result %+v", res)
	}
	var se *datastore.StoreError
	if !errors.As(err, &se) {
		t.Errorf("expected StoreError in chain, got %v", err)
	}
}

func TestOpenRetriesTransientErrors(t *testing.T) {
	store := newCountingStore(t)
	store.failures.Store(2)

	opts := DefaultOptions()
	opts.InitialInterval = time.Millisecond
	opts.MaxInterval = 5 * time.Millisecond

	c, err := Open(context.Background(), algorithm.BayesAlgorithm{}, store, opts)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if !c.Initialized() {
		t.Error("Open returned an uninitialized context")
	}
	if n := store.categoryReads.Load(); n != 3 {
		t.Errorf("categories read %d times, expected 3", n)
	}
}

func TestOpenGivesUpAfterMaxTries(t *testing.T) {
	store := newCountingStore(t)
	store.failures.Store(100)

	opts := DefaultOptions()
	opts.MaxTries = 3
	opts.InitialInterval = time.Millisecond
	opts.MaxInterval = time.Millisecond

	_, err := Open(context.Background(), algorithm.BayesAlgorithm{}, store, opts)
	if !datastore.IsTransient(err) {
		t.Fatalf("expected transient store error, got %v", err)
	}
	if n := store.categoryReads.Load(); n != 3 {
		t.Errorf("categories read %d times, expected 3", n)
	}
}

func TestOpenDoesNotRetryInvalidModel(t *testing.T) {
	store := newCountingStore(t)
	store.categories = []string{}

	opts := DefaultOptions()
	opts.InitialInterval = time.Millisecond

	_, err := Open(context.Background(), algorithm.CBayesAlgorithm{}, store, opts)
	if !IsInvalidModel(err) {
		t.Fatalf("expected InvalidModelError, got %v", err)
	}
	if n := store.categoryReads.Load(); n != 1 {
		t.Errorf("categories read %d times, expected 1", n)
	}
}
