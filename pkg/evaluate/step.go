package evaluate

import (
	"context"
	"fmt"
	"time"

	"github.com/zpam/categorizer/pkg/classifier"
	"github.com/zpam/categorizer/pkg/features"
)

// OutcomeMarker tags a tuple as a classification outcome
const OutcomeMarker = "__CT"

// Outcome is the unit emitted for every classified record. Summing the
// Value of identical keys yields a confusion matrix.
type Outcome struct {
	Marker    string
	True      string
	Predicted string
	Value     float64
}

// NewOutcome returns the unit outcome for one record
func NewOutcome(trueLabel, predicted string) Outcome {
	return Outcome{
		Marker:    OutcomeMarker,
		True:      trueLabel,
		Predicted: predicted,
		Value:     1.0,
	}
}

// Key returns the tuple an aggregator groups by
func (o Outcome) Key() [3]string {
	return [3]string{o.Marker, o.True, o.Predicted}
}

// Correct reports whether the prediction matches the true label
func (o Outcome) Correct() bool {
	return o.True == o.Predicted
}

// Observer is told about every classified record
type Observer interface {
	ObserveClassification(predicted string, evidence bool, elapsed time.Duration)
	ObserveOutcome(trueLabel, predicted string)
}

// Observers fans every notification out to each non-nil member
type Observers []Observer

func (obs Observers) ObserveClassification(predicted string, evidence bool, elapsed time.Duration) {
	for _, o := range obs {
		if o != nil {
			o.ObserveClassification(predicted, evidence, elapsed)
		}
	}
}

func (obs Observers) ObserveOutcome(trueLabel, predicted string) {
	for _, o := range obs {
		if o != nil {
			o.ObserveOutcome(trueLabel, predicted)
		}
	}
}

// Step maps a labelled record to its outcome. It holds no per-record
// state; callers own one Step per classifier context.
type Step struct {
	classifier      *classifier.Context
	gramSize        int
	defaultCategory string
	observer        Observer
}

// NewStep creates a step over an initialized classifier context
func NewStep(c *classifier.Context, gramSize int, defaultCategory string) *Step {
	return &Step{
		classifier:      c,
		gramSize:        gramSize,
		defaultCategory: defaultCategory,
	}
}

// WithObserver attaches an observer and returns the step
func (s *Step) WithObserver(o Observer) *Step {
	s.observer = o
	return s
}

// Map extracts the record's features, classifies them and returns the
// outcome tuple
func (s *Step) Map(ctx context.Context, rec Record) (Outcome, error) {
	start := time.Now()

	res, err := s.classifier.Classify(ctx, features.NGrams(rec.Text, s.gramSize), s.defaultCategory)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to classify record labelled %q: %w", rec.Label, err)
	}

	if s.observer != nil {
		s.observer.ObserveClassification(res.Label, res.Evidence, time.Since(start))
		s.observer.ObserveOutcome(rec.Label, res.Label)
	}

	return NewOutcome(rec.Label, res.Label), nil
}
