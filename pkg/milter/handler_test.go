package milter

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/zpam/categorizer/pkg/algorithm"
	"github.com/zpam/categorizer/pkg/classifier"
	"github.com/zpam/categorizer/pkg/config"
	"github.com/zpam/categorizer/pkg/datastore"
)

func testClassifier(t *testing.T) *classifier.Context {
	t.Helper()
	store, err := datastore.NewMemoryStore(&datastore.Model{Categories: map[string]*datastore.CategoryModel{
		"finance": {Features: map[string]int64{"invoice": 6, "payment": 4, "due": 3}},
		"social":  {Features: map[string]int64{"party": 5, "friday": 3, "drinks": 2}},
	}})
	if err != nil {
		t.Fatal(err)
	}
	c, err := classifier.Open(context.Background(), algorithm.BayesAlgorithm{}, store, classifier.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	return c
}

type countingObserver struct {
	classified int
	errors     int
}

func (o *countingObserver) ObserveClassification(string, bool, time.Duration) { o.classified++ }
func (o *countingObserver) ObserveError(string)                               { o.errors++ }

func TestCategorize(t *testing.T) {
	cfg := config.DefaultConfig()
	obs := &countingObserver{}
	h := NewHandler(cfg, testClassifier(t), obs, nil)

	h.Header("Subject", "Invoice reminder", nil)
	h.BodyChunk([]byte("your payment is due "), nil)
	h.BodyChunk([]byte("on friday"), nil)

	headers, err := h.Categorize(context.Background())
	if err != nil {
		t.Fatalf("Categorize failed: %v", err)
	}
	if len(headers) != 3 {
		t.Fatalf("expected 3 headers, got %d", len(headers))
	}
	if headers[0].Name != "X-ZPAM-Category" || headers[0].Value != "finance" {
		t.Errorf("unexpected category header %+v", headers[0])
	}
	if headers[1].Name != "X-ZPAM-Category-Score" {
		t.Errorf("unexpected score header %+v", headers[1])
	}
	if !strings.Contains(headers[2].Value, "evidence=yes") {
		t.Errorf("unexpected info header %+v", headers[2])
	}
	if obs.classified != 1 {
		t.Errorf("observer saw %d classifications, expected 1", obs.classified)
	}
}

func TestCategorizeUnknownMessage(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Classifier.DefaultCategory = "other"
	h := NewHandler(cfg, testClassifier(t), nil, nil)

	h.BodyChunk([]byte("lorem ipsum"), nil)
	headers, err := h.Categorize(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if headers[0].Value != "other" {
		t.Errorf("category = %s, expected other", headers[0].Value)
	}
	if !strings.Contains(headers[2].Value, "evidence=none") {
		t.Errorf("info header should flag missing evidence: %s", headers[2].Value)
	}
}

func TestBodyLimit(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Milter.MaxBodyBytes = 8
	h := NewHandler(cfg, testClassifier(t), nil, nil)

	h.BodyChunk([]byte("party "), nil)
	h.BodyChunk([]byte("invoice invoice invoice"), nil)
	h.BodyChunk([]byte("more"), nil)

	if h.body.String() != "party in" {
		t.Errorf("body = %q, expected truncated to 8 bytes", h.body.String())
	}
	if !h.truncated {
		t.Error("expected truncated flag")
	}

	h.Abort(nil)
	if h.body.Len() != 0 || h.truncated || h.subject != "" {
		t.Error("Abort did not reset message state")
	}
}

type failingClassifier struct{}

func (failingClassifier) Classify(context.Context, []string, string) (classifier.Result, error) {
	return classifier.Result{}, &datastore.StoreError{Op: "feature_counts", Transient: true, Err: errors.New("timeout")}
}

func TestCategorizeStoreError(t *testing.T) {
	h := NewHandler(config.DefaultConfig(), failingClassifier{}, nil, nil)
	h.BodyChunk([]byte("invoice"), nil)

	if _, err := h.Categorize(context.Background()); !datastore.IsTransient(err) {
		t.Errorf("expected store error, got %v", err)
	}
}

func TestNewServerRequiresEnabled(t *testing.T) {
	cfg := config.DefaultConfig()
	if _, err := NewServer(cfg, testClassifier(t), nil, nil); err == nil {
		t.Error("expected error when milter is disabled")
	}

	cfg.Milter.Enabled = true
	srv, err := NewServer(cfg, testClassifier(t), nil, nil)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	if srv.Stats().MilterCount != 0 {
		t.Errorf("MilterCount = %d, expected 0", srv.Stats().MilterCount)
	}
}

func TestCategorizeMultipartMessage(t *testing.T) {
	h := NewHandler(config.DefaultConfig(), testClassifier(t), nil, nil)

	h.Header("Subject", "Friday", nil)
	h.Header("Content-Type", `multipart/alternative; boundary="b1"`, nil)
	h.BodyChunk([]byte("--b1\r\nContent-Type: text/html\r\n\r\n"+
		"<html><head><style>invoice{}</style></head><body><p>party</p><b>drinks</b></body></html>\r\n"+
		"--b1--\r\n"), nil)

	if text := h.messageText(); strings.Contains(text, "invoice") || !strings.Contains(text, "drinks") {
		t.Errorf("unexpected decoded text %q", text)
	}

	headers, err := h.Categorize(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if headers[0].Value != "social" {
		t.Errorf("category = %s, expected social", headers[0].Value)
	}
}
