package algorithm

import "math"

// BayesAlgorithm scores each category by the smoothed log-likelihood of the
// document under that category's feature distribution:
//
//	score(c) = Σ tf(f) · log((count(c,f) + α) / (total(c) + α·V))
type BayesAlgorithm struct{}

func (BayesAlgorithm) Kind() Kind {
	return Bayes
}

func (BayesAlgorithm) Scores(snap *Snapshot, evidence []Evidence) []float64 {
	alpha := snap.Alpha
	vocab := float64(snap.Vocabulary)

	scores := make([]float64, len(snap.Categories))
	for i := range snap.Categories {
		denom := float64(snap.Totals[i]) + alpha*vocab
		var sum float64
		for _, e := range evidence {
			sum += e.Weight * math.Log((float64(e.Counts[i])+alpha)/denom)
		}
		scores[i] = sum
	}
	return scores
}

func (BayesAlgorithm) Better(a, b float64) bool {
	return a > b
}

func (BayesAlgorithm) NoEvidence() float64 {
	return math.Inf(-1)
}
