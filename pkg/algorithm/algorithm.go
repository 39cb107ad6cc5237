package algorithm

import (
	"fmt"
	"strings"
)

// Algorithm turns feature evidence into one score per category
type Algorithm interface {
	// Kind identifies the algorithm
	Kind() Kind

	// Scores returns a score for every category of snap, aligned with
	// snap.Categories. At least one evidence entry is Seen.
	Scores(snap *Snapshot, evidence []Evidence) []float64

	// Better reports whether score a beats score b
	Better(a, b float64) bool

	// NoEvidence is the sentinel score reported when a document shares no
	// feature with the model
	NoEvidence() float64
}

// Kind selects a scoring algorithm
type Kind string

const (
	// Bayes is multinomial Naive Bayes, highest log-likelihood wins
	Bayes Kind = "bayes"
	// CBayes is Complementary Naive Bayes, lowest complement weight wins
	CBayes Kind = "cbayes"
)

// Kinds lists the supported algorithms
var Kinds = []Kind{Bayes, CBayes}

// ParseKind resolves an algorithm name, case-insensitively
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case Bayes:
		return Bayes, nil
	case CBayes:
		return CBayes, nil
	default:
		return "", fmt.Errorf("unrecognized classifier type: %q", s)
	}
}

// New returns the algorithm for kind
func New(kind Kind) (Algorithm, error) {
	switch kind {
	case Bayes:
		return &BayesAlgorithm{}, nil
	case CBayes:
		return &CBayesAlgorithm{}, nil
	default:
		return nil, fmt.Errorf("unrecognized classifier type: %q", string(kind))
	}
}

// Snapshot is the set of model aggregates an algorithm scores against
type Snapshot struct {
	Categories []string // sorted
	Totals     []int64  // feature occurrences per category, aligned with Categories
	Vocabulary int64
	Alpha      float64 // additive smoothing
}

// GrandTotal sums the category totals
func (s *Snapshot) GrandTotal() int64 {
	var sum int64
	for _, t := range s.Totals {
		sum += t
	}
	return sum
}

// Evidence holds the trained counts of one distinct document feature
type Evidence struct {
	Feature string
	Weight  float64 // occurrences in the document
	Counts  []int64 // aligned with Snapshot.Categories
}

// Seen reports whether any category has a non-zero count for the feature
func (e Evidence) Seen() bool {
	for _, n := range e.Counts {
		if n > 0 {
			return true
		}
	}
	return false
}
